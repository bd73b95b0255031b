package device

import (
	"fmt"
	"math"
	"testing"

	"skald/pkg/skald"
)

// fakeStream replays a fixed set of byte chunks, one per Read call,
// then returns an error.
type fakeStream struct {
	chunks [][]byte
	pos    int
	stopped bool
}

func (s *fakeStream) Read(frames int) ([]byte, error) {
	if s.pos >= len(s.chunks) {
		return nil, fmt.Errorf("fakeStream: no more chunks")
	}
	out := s.chunks[s.pos]
	s.pos++
	return out, nil
}

func (s *fakeStream) Stop() error {
	s.stopped = true
	return nil
}

// fakeBackend serves a fixed device list. Devices marked working
// stream a constant 0.5 signal; any other device fails to open.
type fakeBackend struct {
	devices         []skald.DeviceDescriptor
	workingByIndex  map[int]bool
	openCalls       int
}

func (b *fakeBackend) ListDevices() ([]skald.DeviceDescriptor, error) {
	return b.devices, nil
}

func (b *fakeBackend) OpenInputStream(dev skald.DeviceDescriptor, format skald.SampleFormat, rate, channels int) (skald.InputStream, error) {
	b.openCalls++
	if !b.workingByIndex[dev.Index] {
		return nil, fmt.Errorf("fake device %d produces no audio", dev.Index)
	}
	frames := int(float64(rate) * probeTestFrameSeconds)
	raw := make([]byte, frames*4)
	bits := math.Float32bits(0.5)
	for i := 0; i < frames; i++ {
		raw[i*4] = byte(bits)
		raw[i*4+1] = byte(bits >> 8)
		raw[i*4+2] = byte(bits >> 16)
		raw[i*4+3] = byte(bits >> 24)
	}
	return &fakeStream{chunks: [][]byte{raw}}, nil
}

func TestScorePrefersMicrophoneOverVirtual(t *testing.T) {
	mic := skald.DeviceDescriptor{Name: "USB Microphone", Channels: 1}
	virt := skald.DeviceDescriptor{Name: "Virtual Output Mix", Channels: 2}
	if score(mic) <= score(virt) {
		t.Errorf("expected microphone to outscore virtual device: mic=%d virt=%d", score(mic), score(virt))
	}
}

func TestRankedDevicesOrdersBestFirst(t *testing.T) {
	backend := &fakeBackend{devices: []skald.DeviceDescriptor{
		{Index: 0, Name: "Stereo Mix", Channels: 2},
		{Index: 1, Name: "Headset Microphone", Channels: 1},
	}}
	reg := NewRegistry(backend)

	ranked, err := reg.RankedDevices()
	if err != nil {
		t.Fatalf("RankedDevices failed: %v", err)
	}
	if ranked[0].Name != "Headset Microphone" {
		t.Errorf("expected headset microphone ranked first, got %q", ranked[0].Name)
	}
}

func TestProbeCachesResult(t *testing.T) {
	dev := skald.DeviceDescriptor{Index: 0, Name: "Mic", Channels: 1, NativeRate: 16000}
	backend := &fakeBackend{
		devices:        []skald.DeviceDescriptor{dev},
		workingByIndex: map[int]bool{0: true},
	}
	reg := NewRegistry(backend)

	result, ok := reg.Probe(dev, 16000)
	if !ok {
		t.Fatal("expected probe to succeed")
	}
	if result.Format != skald.FormatFloat32 || result.Rate != 16000 {
		t.Errorf("unexpected probe result: %+v", result)
	}

	callsBefore := backend.openCalls
	if _, ok := reg.Probe(dev, 16000); !ok {
		t.Fatal("expected cached probe to still report success")
	}
	if backend.openCalls != callsBefore {
		t.Errorf("expected cached probe to skip opening a new stream, calls went from %d to %d", callsBefore, backend.openCalls)
	}
}

func TestBestWorkingDeviceFallsBackToDefault(t *testing.T) {
	backend := &fakeBackend{
		devices: []skald.DeviceDescriptor{
			{Index: 0, Name: "Broken Microphone", Channels: 1, NativeRate: 16000},
		},
		workingByIndex: map[int]bool{},
	}
	reg := NewRegistry(backend)

	best, err := reg.BestWorkingDevice(16000)
	if err != nil {
		t.Fatalf("BestWorkingDevice failed: %v", err)
	}
	if best == nil || best.Name != "Broken Microphone" {
		t.Errorf("expected fallback to the only available device, got %+v", best)
	}
}

func TestTestDeviceReturnsPeakAmplitude(t *testing.T) {
	dev := skald.DeviceDescriptor{Index: 0, Name: "Mic", Channels: 1, NativeRate: 16000}
	backend := &fakeBackend{
		devices:        []skald.DeviceDescriptor{dev},
		workingByIndex: map[int]bool{0: true},
	}
	reg := NewRegistry(backend)

	peak := reg.TestDevice(dev, 16000, 0.25)
	if peak <= 0 {
		t.Errorf("expected a positive peak amplitude, got %f", peak)
	}
}
