// Package recorder implements the recorder (spec §4.3, C3): manual
// push-to-talk/toggle capture and energy-gated auto-listen capture,
// both producing a finished skald.AudioClip.
package recorder

import (
	"sync"
	"time"

	"skald/pkg/skald"
)

const (
	manualChunkSeconds = 0.5
	autoChunkSeconds   = 0.1
)

// Recorder owns one capture stream at a time and assembles finished
// clips from it, grounded on tiltedvoice's VoiceRecorder re-expressed
// in the teacher's callback/channel capture idiom
// (internal/audio/recorder.go): instead of a blocking sd.rec() loop,
// the backend stream's Read is itself the blocking call here, pulled
// from a dedicated goroutine per recording session exactly like the
// teacher's malgo Data callback handing frames to a channel consumer.
type Recorder struct {
	backend skald.AudioBackend

	mu      sync.Mutex
	state   skald.RecorderState
	stream  skald.InputStream
	stop    chan struct{}
	done    chan struct{}
	buf     *CircularBuffer
	rate    int
	format  skald.SampleFormat
}

// New wraps a backend for recording.
func New(backend skald.AudioBackend) *Recorder {
	return &Recorder{backend: backend, state: skald.Idle}
}

// State reports the recorder's current position in its state machine.
func (r *Recorder) State() skald.RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Recorder) maxSamples(rate int) int {
	return int(skald.MaxDurationS*float64(rate)) + rate
}

// StartManual begins push-to-talk/toggle capture. Call StopManual to
// finish. A MAX_DURATION_S hard cap stops the underlying capture
// loop automatically; the clip collected up to that point is still
// returned by a subsequent StopManual call.
func (r *Recorder) StartManual(dev skald.DeviceDescriptor, format skald.SampleFormat, rate int) error {
	r.mu.Lock()
	if r.state != skald.Idle {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	stream, err := r.backend.OpenInputStream(dev, format, rate, 1)
	if err != nil {
		return &skald.DeviceOpenFailedError{Index: dev.Index, Err: err}
	}

	r.mu.Lock()
	r.state = skald.ManualRecording
	r.stream = stream
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.buf = NewCircularBuffer(r.maxSamples(rate))
	r.rate = rate
	r.format = format
	stopCh, doneCh := r.stop, r.done
	r.mu.Unlock()

	chunkFrames := int(float64(rate) * manualChunkSeconds)
	go r.manualLoop(stream, format, chunkFrames, stopCh, doneCh)
	return nil
}

func (r *Recorder) manualLoop(stream skald.InputStream, format skald.SampleFormat, chunkFrames int, stop, done chan struct{}) {
	defer close(done)
	start := time.Now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		raw, err := stream.Read(chunkFrames)
		if len(raw) > 0 {
			samples := skald.DecodeSamples(raw, format)
			r.mu.Lock()
			_, overflowed := r.buf.Write(samples)
			r.mu.Unlock()
			if overflowed {
				return
			}
		}
		if err != nil {
			return
		}
		if time.Since(start).Seconds() > skald.MaxDurationS {
			return
		}
	}
}

// StopManual ends capture and returns the clip, if it meets
// MIN_DURATION_S. ok is false for a too-short or empty recording.
func (r *Recorder) StopManual() (clip skald.AudioClip, ok bool) {
	r.mu.Lock()
	if r.state != skald.ManualRecording {
		r.mu.Unlock()
		return skald.AudioClip{}, false
	}
	stream, stop, done, buf, rate := r.stream, r.stop, r.done, r.buf, r.rate
	r.state = skald.Idle
	r.mu.Unlock()

	close(stop)
	stream.Stop()
	<-done

	samples := buf.Read(buf.Available())
	clip = skald.AudioClip{Samples: samples, SampleRate: rate}
	if clip.Duration() < skald.MinDurationS {
		return skald.AudioClip{}, false
	}
	return clip, true
}

// AutoCallbacks are the speech-boundary hooks auto-listen fires.
// None may block; the pipeline controller is expected to hand work
// off rather than process it inline.
type AutoCallbacks struct {
	OnSpeechStart func()
	OnSpeechEnd   func()
	OnClipReady   func(skald.AudioClip)
}

// StartAuto begins energy-gated auto-listen: speech above
// energyThreshold RMS opens a clip, and silenceMS of continued
// low-energy audio closes and delivers it, matching
// VoiceRecorder.start_auto_listen/_finalize_auto.
func (r *Recorder) StartAuto(dev skald.DeviceDescriptor, format skald.SampleFormat, rate int, energyThreshold float64, silenceMS int, cb AutoCallbacks) error {
	r.mu.Lock()
	if r.state != skald.Idle {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	stream, err := r.backend.OpenInputStream(dev, format, rate, 1)
	if err != nil {
		return &skald.DeviceOpenFailedError{Index: dev.Index, Err: err}
	}

	r.mu.Lock()
	r.state = skald.AutoWaiting
	r.stream = stream
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.buf = NewCircularBuffer(r.maxSamples(rate))
	r.rate = rate
	r.format = format
	stopCh, doneCh := r.stop, r.done
	r.mu.Unlock()

	chunkFrames := int(float64(rate) * autoChunkSeconds)
	go r.autoLoop(stream, format, chunkFrames, energyThreshold, silenceMS, cb, stopCh, doneCh)
	return nil
}

func (r *Recorder) autoLoop(stream skald.InputStream, format skald.SampleFormat, chunkFrames int, energyThreshold float64, silenceMS int, cb AutoCallbacks, stop, done chan struct{}) {
	defer close(done)

	var speechActive bool
	var speechStart time.Time
	var silenceStart time.Time
	var haveSilenceStart bool
	var consecutiveSilent int

	finalize := func() {
		r.mu.Lock()
		r.state = skald.AutoWaiting
		samples := r.buf.Read(r.buf.Available())
		rate := r.rate
		r.mu.Unlock()

		speechActive = false
		haveSilenceStart = false
		consecutiveSilent = 0
		if cb.OnSpeechEnd != nil {
			cb.OnSpeechEnd()
		}

		clip := skald.AudioClip{Samples: samples, SampleRate: rate}
		if clip.Duration() < skald.MinDurationS {
			return
		}
		if cb.OnClipReady != nil {
			cb.OnClipReady(clip)
		}
	}

	for {
		select {
		case <-stop:
			return
		default:
		}

		raw, err := stream.Read(chunkFrames)
		if len(raw) == 0 {
			if err != nil {
				return
			}
			continue
		}

		samples := skald.DecodeSamples(raw, format)
		// isSilent's hysteresis band (2x threshold once already
		// silent) keeps a continuing utterance from chattering
		// between AutoSpeech and AutoTrailingSilence at the
		// threshold edge.
		silent := isSilent(samples, energyThreshold, consecutiveSilent)
		now := time.Now()

		if !silent {
			consecutiveSilent = 0
			if !speechActive {
				speechActive = true
				speechStart = now
				haveSilenceStart = false
				r.mu.Lock()
				r.buf.Clear()
				r.state = skald.AutoSpeech
				r.mu.Unlock()
				if cb.OnSpeechStart != nil {
					cb.OnSpeechStart()
				}
			} else {
				haveSilenceStart = false
				r.mu.Lock()
				r.state = skald.AutoSpeech
				r.mu.Unlock()
			}

			r.mu.Lock()
			_, overflowed := r.buf.Write(samples)
			r.mu.Unlock()

			if overflowed || now.Sub(speechStart).Seconds() > skald.MaxDurationS {
				finalize()
			}
		} else if speechActive {
			consecutiveSilent++
			r.mu.Lock()
			_, overflowed := r.buf.Write(samples)
			r.mu.Unlock()

			if overflowed {
				finalize()
				continue
			}

			if !haveSilenceStart {
				haveSilenceStart = true
				silenceStart = now
				r.mu.Lock()
				r.state = skald.AutoTrailingSilence
				r.mu.Unlock()
			} else if now.Sub(silenceStart).Milliseconds() >= int64(silenceMS) {
				finalize()
			}
		}

		if err != nil {
			return
		}
	}
}

// StopAuto ends auto-listen capture, discarding any in-progress clip.
func (r *Recorder) StopAuto() {
	r.mu.Lock()
	if r.state == skald.Idle {
		r.mu.Unlock()
		return
	}
	stream, stop, done := r.stream, r.stop, r.done
	r.state = skald.Idle
	r.mu.Unlock()

	close(stop)
	stream.Stop()
	<-done
}
