// Package pipeline implements the cross-cutting pipeline controller
// (spec §4.5, C5): it owns the recorder, transcriber, and level
// monitor, binds global hotkeys, and routes finished transcriptions to
// the clipboard and the OS-focused window.
package pipeline

import (
	"log"
	"strings"
	"sync"
	"time"

	"skald/internal/config"
	"skald/internal/level"
	"skald/internal/recorder"
	"skald/internal/transcriber"
	"skald/pkg/skald"
)

// pasteDelay lets window focus settle after a clipboard copy before
// the paste keystroke is simulated (spec §4.5 "after a ~150 ms delay").
const pasteDelay = 150 * time.Millisecond

// Controller wires the C1-C4 components together. Grounded on the
// teacher's internal/transcriber.Transcriber (mutex/atomic
// guard-running pattern for Start/Stop) and internal/server.Server
// (Stats/observer logging pattern), generalized to the spec's three
// recording modes and single-flight drop-new transcription policy.
type Controller struct {
	rec *recorder.Recorder
	mon *level.Monitor
	tr  *transcriber.Transcriber

	hotkeys   skald.OsHotkeyBinder
	clipboard skald.ClipboardService
	keyboard  skald.KeyboardInjector
	observer  skald.Observer
	logger    *log.Logger

	device skald.DeviceDescriptor
	format skald.SampleFormat
	rate   int

	mu               sync.Mutex
	mode             skald.RecordingMode
	language         string
	energyThreshold  float64
	silenceMS        int
	autoPaste        bool
	autoCopy         bool
	recordingActive  bool
	inFlight         bool

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New builds a Controller. device/format/rate are the already-probed
// capture parameters (spec's Device Registry is the component
// responsible for resolving them; the controller just uses them).
func New(
	rec *recorder.Recorder,
	mon *level.Monitor,
	tr *transcriber.Transcriber,
	hotkeys skald.OsHotkeyBinder,
	clipboard skald.ClipboardService,
	keyboard skald.KeyboardInjector,
	observer skald.Observer,
	logger *log.Logger,
	device skald.DeviceDescriptor,
	format skald.SampleFormat,
	rate int,
) *Controller {
	return &Controller{
		rec:        rec,
		mon:        mon,
		tr:         tr,
		hotkeys:    hotkeys,
		clipboard:  clipboard,
		keyboard:   keyboard,
		observer:   observer,
		logger:     logger,
		device:     device,
		format:     format,
		rate:       rate,
		shutdownCh: make(chan struct{}),
	}
}

// ApplySettings updates mode/language/thresholds and rebinds hotkeys
// to match. Call once at startup and again whenever settings change.
func (c *Controller) ApplySettings(s *config.Settings) {
	c.mu.Lock()
	c.mode = s.RecordingMode
	c.language = s.Language
	c.energyThreshold = s.EnergyThreshold
	c.silenceMS = s.SilenceMS
	c.autoPaste = s.AutoPaste
	c.autoCopy = s.AutoCopy
	c.mu.Unlock()

	c.rebindHotkeys(s.Hotkeys, s.RecordingMode)
}

// rebindHotkeys tears down any previously bound hotkeys before
// installing new ones (spec §4.5 "Rebinding tears down old hooks
// before installing new ones. Failure to register is reported but
// non-fatal.").
func (c *Controller) rebindHotkeys(hk config.Hotkeys, mode skald.RecordingMode) {
	c.hotkeys.UnbindAll()

	switch mode {
	case skald.PushToTalk:
		if err := c.hotkeys.BindPress(hk.PushToTalk, func() { c.safeCall(c.StartManualRecording) }); err != nil {
			c.reportHotkeyError(hk.PushToTalk, err)
		}
		if err := c.hotkeys.BindRelease(lastComboToken(hk.PushToTalk), func() { c.safeCall(c.StopManualRecording) }); err != nil {
			c.reportHotkeyError(hk.PushToTalk, err)
		}
	case skald.Toggle:
		if err := c.hotkeys.BindPress(hk.Toggle, func() { c.safeCall(c.ToggleRecording) }); err != nil {
			c.reportHotkeyError(hk.Toggle, err)
		}
	case skald.Auto:
		// Auto mode is started by an external "start listening" action
		// (spec §4.5), not a hotkey; nothing to bind.
	}
}

func (c *Controller) reportHotkeyError(combo string, err error) {
	bindErr := &skald.HotkeyBindFailedError{Combo: combo, Err: err}
	c.logger.Printf("%v", bindErr)
	if c.observer != nil {
		c.observer.OnDebug(map[string]any{"event": "hotkey_bind_failed", "combo": combo, "error": bindErr.Error()})
	}
}

func (c *Controller) safeCall(fn func() error) {
	if err := fn(); err != nil {
		c.logger.Printf("pipeline action failed: %v", err)
	}
}

// lastComboToken returns the key token a combo string watches for
// release (spec §6 "the last token is the key to watch for release").
func lastComboToken(combo string) string {
	tokens := strings.Split(combo, "+")
	return strings.TrimSpace(tokens[len(tokens)-1])
}

// StartManualRecording begins push-to-talk/toggle capture.
func (c *Controller) StartManualRecording() error {
	if err := c.rec.StartManual(c.device, c.format, c.rate); err != nil {
		return err
	}
	c.mu.Lock()
	c.recordingActive = true
	c.mu.Unlock()
	c.notifyRecordingStarted()
	return nil
}

// StopManualRecording ends capture and, if the clip is long enough,
// enqueues it for transcription.
func (c *Controller) StopManualRecording() error {
	clip, ok := c.rec.StopManual()
	c.mu.Lock()
	c.recordingActive = false
	c.mu.Unlock()
	c.notifyRecordingStopped()
	if ok {
		c.enqueueClip(clip)
	}
	return nil
}

// ToggleRecording alternates between StartManualRecording and
// StopManualRecording (spec §4.5 Toggle mode).
func (c *Controller) ToggleRecording() error {
	c.mu.Lock()
	active := c.recordingActive
	c.mu.Unlock()
	if active {
		return c.StopManualRecording()
	}
	return c.StartManualRecording()
}

// StartAutoListening begins energy-gated auto-VAD capture; each
// finished clip is enqueued as it is produced.
func (c *Controller) StartAutoListening() error {
	c.mu.Lock()
	threshold, silenceMS := c.energyThreshold, c.silenceMS
	c.mu.Unlock()

	return c.rec.StartAuto(c.device, c.format, c.rate, threshold, silenceMS, recorder.AutoCallbacks{
		OnSpeechStart: c.notifyRecordingStarted,
		OnSpeechEnd:   c.notifyRecordingStopped,
		OnClipReady:   c.enqueueClip,
	})
}

// StopAutoListening ends auto-listen capture.
func (c *Controller) StopAutoListening() error {
	c.rec.StopAuto()
	return nil
}

// Cancel aborts the in-flight transcription (spec §4.5
// "the in-flight transcription exposes a cancel operation"). With no
// transcription in flight, the next clip's transcription returns an
// empty result.
func (c *Controller) Cancel() {
	c.tr.Cancel()
}

// enqueueClip implements the single-flight drop-new policy (spec
// §4.5): at most one transcription runs at a time; a clip arriving
// while one is in flight is discarded.
func (c *Controller) enqueueClip(clip skald.AudioClip) {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return
	}
	c.inFlight = true
	language := c.language
	c.mu.Unlock()

	go c.runTranscription(clip, language)
}

// doneSuppressingObserver forwards status and debug events to the
// wrapped observer but drops OnTranscriptionDone, which
// runTranscription delivers itself, once per clip.
type doneSuppressingObserver struct{ skald.Observer }

func (doneSuppressingObserver) OnTranscriptionDone(skald.TranscriptionResult) {}

func (c *Controller) runTranscription(clip skald.AudioClip, language string) {
	var trObserver skald.Observer
	if c.observer != nil {
		trObserver = doneSuppressingObserver{c.observer}
	}
	result, err := c.tr.Transcribe(clip, language, trObserver)

	c.mu.Lock()
	c.inFlight = false
	autoPaste, autoCopy := c.autoPaste, c.autoCopy
	c.mu.Unlock()

	if err != nil {
		c.logger.Printf("transcription failed: %v", err)
		if c.observer != nil {
			c.observer.OnDebug(map[string]any{"event": "transcription_error", "error": err.Error()})
		}
		return
	}

	// Always notify, even on an empty result, so the UI can surface
	// "no speech detected" (spec §4.5).
	if c.observer != nil {
		c.observer.OnTranscriptionDone(result)
	}

	if result.Text == "" {
		return
	}
	if autoCopy {
		if err := c.clipboard.SetText(result.Text); err != nil {
			c.logger.Printf("clipboard copy failed: %v", err)
			return
		}
	}
	if autoPaste {
		time.Sleep(pasteDelay)
		if err := c.keyboard.Send("paste"); err != nil {
			c.logger.Printf("paste simulation failed: %v", err)
		}
	}
}

func (c *Controller) notifyRecordingStarted() {
	if c.observer != nil {
		c.observer.OnRecordingStarted()
	}
}

func (c *Controller) notifyRecordingStopped() {
	if c.observer != nil {
		c.observer.OnRecordingStopped()
	}
}

// StartLevelMonitor streams RMS readings to cb at the given interval.
func (c *Controller) StartLevelMonitor(interval time.Duration, cb func(rms float64)) error {
	return c.mon.Start(c.device, c.format, c.rate, interval, cb)
}

// StopLevelMonitor stops the level monitor, if running.
func (c *Controller) StopLevelMonitor() {
	c.mon.Stop()
}

// Status reports a human-readable summary of the controller's state,
// used by internal/console's status command.
func (c *Controller) Status() string {
	c.mu.Lock()
	inFlight := c.inFlight
	c.mu.Unlock()

	state := string(c.rec.State())
	if inFlight {
		return state + " (transcribing)"
	}
	return state
}

// RequestShutdown signals Done and is idempotent.
func (c *Controller) RequestShutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdownCh) })
}

// Done reports when RequestShutdown has been called.
func (c *Controller) Done() <-chan struct{} {
	return c.shutdownCh
}

// Shutdown tears down hotkeys and any running capture session.
func (c *Controller) Shutdown() {
	c.hotkeys.UnbindAll()
	c.mon.Stop()
	c.rec.StopAuto()
	c.StopManualRecording()
}
