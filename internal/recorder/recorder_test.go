package recorder

import (
	"math"
	"sync"
	"testing"
	"time"

	"skald/pkg/skald"
)

func floatsToBytes(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

// scriptedStream replays a queue of sample slices (as float32 RMS
// levels held constant across a chunk), one per Read call.
// maxFrames, when non-zero, caps the samples a Read returns, the way a
// stream stopped mid-block hands back a partial tail. readDelay, when
// non-zero, paces each chunk like a live capture device.
type scriptedStream struct {
	mu        sync.Mutex
	levels    []float32
	stopped   bool
	maxFrames int
	readDelay time.Duration
}

func (s *scriptedStream) Read(frames int) ([]byte, error) {
	s.mu.Lock()
	if s.stopped || len(s.levels) == 0 {
		s.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}
	level := s.levels[0]
	s.levels = s.levels[1:]
	s.mu.Unlock()

	time.Sleep(s.readDelay)
	if s.maxFrames > 0 && frames > s.maxFrames {
		frames = s.maxFrames
	}
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = level
	}
	return floatsToBytes(samples), nil
}

func (s *scriptedStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

type fakeRecorderBackend struct {
	stream *scriptedStream
}

func (b *fakeRecorderBackend) ListDevices() ([]skald.DeviceDescriptor, error) { return nil, nil }

func (b *fakeRecorderBackend) OpenInputStream(dev skald.DeviceDescriptor, format skald.SampleFormat, rate, channels int) (skald.InputStream, error) {
	return b.stream, nil
}

func TestManualRecordingDiscardsTooShortClip(t *testing.T) {
	// A single 20 ms read (320 frames at 16 kHz), well under MinDurationS.
	backend := &fakeRecorderBackend{stream: &scriptedStream{levels: []float32{0.5}, maxFrames: 320}}
	rec := New(backend)

	if err := rec.StartManual(skald.DeviceDescriptor{Index: 0}, skald.FormatFloat32, 16000); err != nil {
		t.Fatalf("StartManual failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	clip, ok := rec.StopManual()
	if ok {
		t.Errorf("expected too-short clip to be discarded, got %v", clip)
	}
}

func TestManualRecordingReturnsLongEnoughClip(t *testing.T) {
	levels := make([]float32, 40)
	for i := range levels {
		levels[i] = 0.5
	}
	backend := &fakeRecorderBackend{stream: &scriptedStream{levels: levels}}
	rec := New(backend)

	if err := rec.StartManual(skald.DeviceDescriptor{Index: 0}, skald.FormatFloat32, 16000); err != nil {
		t.Fatalf("StartManual failed: %v", err)
	}
	time.Sleep(600 * time.Millisecond)

	clip, ok := rec.StopManual()
	if !ok {
		t.Fatal("expected a valid clip")
	}
	if clip.Duration() < skald.MinDurationS {
		t.Errorf("expected clip duration >= %.2f, got %.2f", skald.MinDurationS, clip.Duration())
	}
}

func TestAutoListenFinalizesOnSilence(t *testing.T) {
	levels := []float32{
		0.01, 0.01, // waiting
		0.5, 0.5, 0.5, 0.5, // speech
		0.001, 0.001, 0.001, 0.001, 0.001, 0.001, // trailing silence
	}
	// The recorder times trailing silence by the wall clock, so each
	// 100 ms chunk is delivered in real time.
	backend := &fakeRecorderBackend{stream: &scriptedStream{levels: levels, readDelay: 100 * time.Millisecond}}
	rec := New(backend)

	var mu sync.Mutex
	var clips []skald.AudioClip
	var speechStarted, speechEnded bool

	cb := AutoCallbacks{
		OnSpeechStart: func() { mu.Lock(); speechStarted = true; mu.Unlock() },
		OnSpeechEnd:   func() { mu.Lock(); speechEnded = true; mu.Unlock() },
		OnClipReady: func(c skald.AudioClip) {
			mu.Lock()
			clips = append(clips, c)
			mu.Unlock()
		},
	}

	if err := rec.StartAuto(skald.DeviceDescriptor{Index: 0}, skald.FormatFloat32, 16000, 0.05, 300, cb); err != nil {
		t.Fatalf("StartAuto failed: %v", err)
	}
	defer rec.StopAuto()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := speechStarted && speechEnded
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if !speechStarted {
		t.Error("expected OnSpeechStart to fire")
	}
	if !speechEnded {
		t.Error("expected OnSpeechEnd to fire")
	}
}

func TestStartManualWhileRecordingIsNoOp(t *testing.T) {
	backend := &fakeRecorderBackend{stream: &scriptedStream{levels: []float32{0.5, 0.5, 0.5}}}
	rec := New(backend)

	if err := rec.StartManual(skald.DeviceDescriptor{Index: 0}, skald.FormatFloat32, 16000); err != nil {
		t.Fatalf("StartManual failed: %v", err)
	}
	defer rec.StopManual()

	if err := rec.StartManual(skald.DeviceDescriptor{Index: 1}, skald.FormatFloat32, 16000); err != nil {
		t.Fatalf("second StartManual returned error instead of no-op: %v", err)
	}
	if rec.State() != skald.ManualRecording {
		t.Errorf("expected state to remain ManualRecording, got %v", rec.State())
	}
}
