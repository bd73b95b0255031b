// Package transcriber implements the transcription engine's two-pass
// decode policy (spec §4.4, C4): lazy model load, a VAD-enabled pass
// followed by a conditional no-VAD retry, per-pass timeouts, and
// cooperative cancellation.
package transcriber

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"skald/pkg/skald"
)

// Transcriber drives a skald.ModelEngine through the spec's two-pass
// policy. Grounded on the teacher's prior continuous-mode Transcriber,
// which guarded concurrent processing with an atomic.Bool and tore
// down goroutines via context cancellation; generalized here from a
// continuous channel loop to per-clip request/response calls.
type Transcriber struct {
	engine  skald.ModelEngine
	modelID skald.ModelID

	loadMu sync.Mutex
	loaded bool

	cancelled atomic.Bool
}

// New builds a Transcriber over engine, lazily loading modelID on the
// first Transcribe call.
func New(engine skald.ModelEngine, modelID skald.ModelID) *Transcriber {
	return &Transcriber{engine: engine, modelID: modelID}
}

// Cancel aborts the in-flight Transcribe call at the next segment or
// engine-call boundary. If no call is in flight, the next Transcribe
// call returns an empty result without decoding; every Transcribe call
// clears the flag when it returns.
func (t *Transcriber) Cancel() {
	t.cancelled.Store(true)
}

func (t *Transcriber) ensureLoaded() error {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()
	if t.loaded {
		return nil
	}
	if err := t.engine.Load(t.modelID, "auto", "auto"); err != nil {
		return err
	}
	t.loaded = true
	return nil
}

// Transcribe runs the two-pass decode policy over clip and returns the
// combined result. observer may be nil. A non-nil error means a
// genuine model-load or engine decode failure (spec §4.4/§7) — it is
// always paired with an empty TranscriptionResult and is distinct from
// the legitimate "no speech detected" outcome, which has a nil error
// and an empty Text.
func (t *Transcriber) Transcribe(clip skald.AudioClip, language string, observer skald.Observer) (skald.TranscriptionResult, error) {
	defer t.cancelled.Store(false)
	empty := skald.TranscriptionResult{Language: language, ModelName: string(t.modelID)}

	if t.cancelled.Load() {
		return empty, nil
	}

	notifyStatus(observer, "Loading model…")
	if err := t.ensureLoaded(); err != nil {
		emitDebug(observer, map[string]any{"event": "load_error", "error": err.Error()})
		return empty, err
	}
	if t.cancelled.Load() {
		return empty, nil
	}

	audioRMS := clip.RMS()
	audioPeak := clip.Peak()
	emitDebug(observer, map[string]any{
		"event":      "audio",
		"duration_s": clip.Duration(),
		"rms":        audioRMS,
		"peak":       audioPeak,
	})

	notifyStatus(observer, "Transcribing…")

	start := time.Now()
	totalBudget := skald.TotalBudgetS(clip.Duration())
	emitDebug(observer, map[string]any{
		"event":            "timeout_budget",
		"audio_duration_s": clip.Duration(),
		"total_budget_s":   totalBudget,
	})

	passTimeout := math.Min(skald.TranscribeTimeoutS, totalBudget)
	selected, err := t.runPass(clip, language, true, passTimeout, observer, "vad_on")
	if err != nil {
		return empty, err
	}
	allPasses := []skald.PassDebugInfo{selected.debug}

	if len(selected.texts) == 0 && audioRMS >= skald.MinRMSForFallbackPass && !t.cancelled.Load() {
		remaining := math.Max(5.0, totalBudget-time.Since(start).Seconds())
		retry, err := t.runPass(clip, language, false, remaining, observer, "vad_off")
		if err != nil {
			return empty, err
		}
		allPasses = append(allPasses, retry.debug)
		if len(retry.texts) > 0 {
			selected = retry
		}
	}

	processingMS := time.Since(start).Seconds() * 1000
	result := skald.TranscriptionResult{
		Text:               strings.Join(selected.texts, " "),
		Language:           selected.language,
		LanguageConfidence: selected.languageConfidence,
		AudioDurationS:     clip.Duration(),
		ProcessingTimeMS:   processingMS,
		Segments:           selected.segments,
		ModelName:          string(t.modelID),
		DebugInfo: skald.DebugInfo{
			Audio:            map[string]float64{"duration_s": clip.Duration(), "rms": audioRMS, "peak": audioPeak},
			Passes:           allPasses,
			SelectedPass:     selected.debug.Name,
			ProcessingTimeMS: processingMS,
		},
	}
	if observer != nil {
		observer.OnTranscriptionDone(result)
	}
	return result, nil
}

type passResult struct {
	texts              []string
	segments           []skald.TranscriptionSegment
	debug              skald.PassDebugInfo
	language           string
	languageConfidence float64
}

// Hard-coded VAD knobs for the decode pass; the spec names no
// alternative values for these.
const (
	decodeVADThreshold    = 0.35
	decodeVADMinSpeechMS  = 200
	decodeVADMinSilenceMS = 300
	decodeVADSpeechPadMS  = 250
)

func (t *Transcriber) runPass(clip skald.AudioClip, language string, useVAD bool, timeoutS float64, observer skald.Observer, passName string) (passResult, error) {
	start := time.Now()
	opts := skald.DecodeOptions{
		Language:                  language,
		BeamSize:                  5,
		ConditionOnPreviousText:   false,
		Temperature:               0,
		NoSpeechThreshold:         skald.NoSpeechThreshold,
		CompressionRatioThreshold: 2.4,
		LogProbThreshold:          -1.0,
		VADFilter:                 useVAD,
		VADThreshold:              decodeVADThreshold,
		VADMinSpeechDurationMS:    decodeVADMinSpeechMS,
		VADMinSilenceDurationMS:   decodeVADMinSilenceMS,
		VADSpeechPadMS:            decodeVADSpeechPadMS,
	}

	emitDebug(observer, map[string]any{"event": "pass_start", "pass_name": passName, "use_vad": useVAD})
	emitDebug(observer, map[string]any{"event": "engine_call_start", "pass_name": passName, "timeout_s": timeoutS})

	deadline := time.After(time.Duration(timeoutS * float64(time.Second)))
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type decodeOutcome struct {
		stream skald.SegmentStream
		info   skald.ModelEngineInfo
		err    error
	}
	outcomeCh := make(chan decodeOutcome, 1)
	go func() {
		stream, info, err := t.engine.Transcribe(clip.Samples, opts)
		outcomeCh <- decodeOutcome{stream, info, err}
	}()

	var stream skald.SegmentStream
	var info skald.ModelEngineInfo
	select {
	case o := <-outcomeCh:
		if o.err != nil {
			emitDebug(observer, map[string]any{"event": "engine_error", "pass_name": passName, "error": o.err.Error()})
			return passResult{}, o.err
		}
		stream, info = o.stream, o.info
	case <-deadline:
		cancel()
		return t.timedOutPass(passName, useVAD, timeoutS, skald.StopReasonPassTimeout, observer, language), nil
	}

	var texts []string
	var segments []skald.TranscriptionSegment
	stopReason := skald.StopReasonEOF

loop:
	for {
		if t.cancelled.Load() {
			stopReason = skald.StopReasonCancelled
			break
		}
		if len(segments) >= skald.MaxSegments {
			stopReason = skald.StopReasonSegmentCap
			break
		}
		if time.Since(start).Seconds() > timeoutS {
			stopReason = skald.StopReasonHardTimeout
			break
		}

		select {
		case <-deadline:
			stopReason = skald.StopReasonPassTimeout
			break loop
		default:
		}

		seg, ok, err := stream.Next(cancelCtx)
		if err != nil || !ok {
			break
		}
		text := strings.TrimSpace(seg.Text())
		if text != "" {
			texts = append(texts, text)
			segments = append(segments, skald.TranscriptionSegment{
				Text:       text,
				StartS:     seg.Start(),
				EndS:       seg.End(),
				AvgLogProb: seg.AvgLogProb(),
			})
		}
	}

	elapsedMS := time.Since(start).Seconds() * 1000
	debug := skald.PassDebugInfo{
		Name:         passName,
		UseVAD:       useVAD,
		SegmentCount: len(segments),
		StopReason:   stopReason,
		ElapsedMS:    elapsedMS,
	}
	emitDebug(observer, map[string]any{
		"event": "pass_end", "pass_name": passName, "use_vad": useVAD,
		"stop_reason": stopReason, "segment_count": len(segments), "elapsed_ms": elapsedMS,
	})
	emitDebug(observer, map[string]any{"event": "engine_call_end", "pass_name": passName})

	lang := language
	var conf float64
	if info != nil {
		if l := info.Language(); l != "" {
			lang = l
		}
		conf = info.LanguageProbability()
	}

	return passResult{
		texts:              texts,
		segments:           segments,
		debug:              debug,
		language:           lang,
		languageConfidence: conf,
	}, nil
}

func (t *Transcriber) timedOutPass(passName string, useVAD bool, timeoutS float64, stopReason string, observer skald.Observer, language string) passResult {
	elapsedMS := timeoutS * 1000
	debug := skald.PassDebugInfo{
		Name:       passName,
		UseVAD:     useVAD,
		StopReason: stopReason,
		ElapsedMS:  elapsedMS,
	}
	emitDebug(observer, map[string]any{
		"event": "pass_end", "pass_name": passName, "use_vad": useVAD,
		"stop_reason": stopReason, "segment_count": 0, "elapsed_ms": elapsedMS,
	})
	return passResult{debug: debug, language: language}
}

func notifyStatus(observer skald.Observer, msg string) {
	if observer == nil {
		return
	}
	defer func() { recover() }()
	observer.OnStatus(msg)
}

// emitDebug swallows observer panics — a misbehaving UI callback must
// not abort an in-flight transcription.
func emitDebug(observer skald.Observer, event map[string]any) {
	if observer == nil {
		return
	}
	defer func() { recover() }()
	observer.OnDebug(event)
}
