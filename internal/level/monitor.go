// Package level implements the level monitor (spec §4.2, C2): a
// background sampler that reports RMS input level for a device at a
// fixed interval, for a live input-level meter in the UI.
package level

import (
	"sync"
	"time"

	"skald/pkg/skald"
)

const minChunkFrames = 800

// Monitor runs at most one background sampling loop at a time,
// mirroring MicrophoneManager.start_level_monitor/stop_level_monitor
// in the original source, re-expressed as a goroutine plus a stop
// channel rather than a threading.Event — the teacher's own
// goroutine-with-done-channel idiom (internal/server goroutines).
type Monitor struct {
	backend skald.AudioBackend

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// New wraps a backend for level monitoring.
func New(backend skald.AudioBackend) *Monitor {
	return &Monitor{backend: backend}
}

// Start begins sampling RMS level on dev at the given interval and
// delivers each sample to callback from the monitor's own goroutine —
// callback must not block. Each read is at least minChunkFrames (800)
// frames, so an interval shorter than that at rate is lengthened to
// it. Calling Start while already running stops
// the previous loop first, per spec's single-monitor semantics.
func (m *Monitor) Start(dev skald.DeviceDescriptor, format skald.SampleFormat, rate int, interval time.Duration, callback func(rms float64)) error {
	m.Stop()

	chunkFrames := int(float64(rate) * interval.Seconds())
	if chunkFrames < minChunkFrames {
		chunkFrames = minChunkFrames
	}

	stream, err := m.backend.OpenInputStream(dev, format, rate, 1)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.running = true
	stopCh := m.stop
	doneCh := m.done
	m.mu.Unlock()

	go m.run(stream, format, chunkFrames, callback, stopCh, doneCh)
	return nil
}

func (m *Monitor) run(stream skald.InputStream, format skald.SampleFormat, chunkFrames int, callback func(rms float64), stop, done chan struct{}) {
	defer close(done)
	defer stream.Stop()

	for {
		select {
		case <-stop:
			return
		default:
		}

		raw, err := stream.Read(chunkFrames)
		if err != nil && len(raw) == 0 {
			return
		}

		samples := skald.DecodeSamples(raw, format)
		clip := skald.AudioClip{Samples: samples, SampleRate: 1}
		rms := 0.0
		if clip.IsValid() {
			rms = clip.RMS()
		}

		select {
		case <-stop:
			return
		default:
			callback(rms)
		}
	}
}

// Stop ends the running sampling loop, if any, and waits for its
// goroutine to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	stop := m.stop
	done := m.done
	running := m.running
	m.running = false
	m.stop = nil
	m.done = nil
	m.mu.Unlock()

	if !running {
		return
	}
	close(stop)
	<-done
}
