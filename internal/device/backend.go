// Package device implements the device registry (spec §4.1, C1) on top
// of malgo, the same cross-platform capture library the teacher uses
// for recording (internal/audio/recorder.go, pkg/skald/audio/capture.go).
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/gen2brain/malgo"

	"skald/pkg/skald"
)

// MalgoBackend implements skald.AudioBackend over malgo. Unlike
// sounddevice/PortAudio, miniaudio selects a single backend (ALSA,
// WASAPI, CoreAudio, ...) for the whole process rather than exposing
// several host APIs at once, so every DeviceDescriptor this backend
// produces carries the same HostAPI string.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext

	mu  sync.Mutex
	ids map[int]malgo.DeviceID
}

// NewMalgoBackend initializes the underlying malgo context.
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &skald.DeviceEnumerationFailedError{Err: err}
	}
	return &MalgoBackend{
		ctx: ctx,
		ids: make(map[int]malgo.DeviceID),
	}, nil
}

// Close releases the malgo context. No further calls may be made.
func (b *MalgoBackend) Close() error {
	if b.ctx != nil {
		b.ctx.Uninit()
		b.ctx = nil
	}
	return nil
}

// ListDevices enumerates capture-capable devices. The returned
// DeviceDescriptor.Index is positional within this call and is the
// value OpenInputStream expects back; it is re-assigned on every call
// so callers must not cache it across a second ListDevices call.
func (b *MalgoBackend) ListDevices() ([]skald.DeviceDescriptor, error) {
	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, &skald.DeviceEnumerationFailedError{Err: err}
	}

	backendName := b.ctx.Context.Backend.String()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = make(map[int]malgo.DeviceID, len(infos))

	result := make([]skald.DeviceDescriptor, 0, len(infos))
	for i, info := range infos {
		b.ids[i] = info.ID
		channels := int(info.MaxChannels)
		if channels == 0 {
			channels = 1
		}
		result = append(result, skald.DeviceDescriptor{
			Index:      i,
			Name:       info.Name(),
			HostAPI:    backendName,
			Channels:   channels,
			NativeRate: int(info.MaxSampleRate),
		})
	}
	return result, nil
}

// OpenInputStream opens a capture stream for the device at the given
// index (as returned by the most recent ListDevices call).
func (b *MalgoBackend) OpenInputStream(dev skald.DeviceDescriptor, format skald.SampleFormat, rate, channels int) (skald.InputStream, error) {
	b.mu.Lock()
	id, ok := b.ids[dev.Index]
	b.mu.Unlock()
	if !ok {
		return nil, &skald.DeviceOpenFailedError{Index: dev.Index, Err: fmt.Errorf("unknown device index, call ListDevices first")}
	}

	malgoFormat, bytesPerSample, err := formatToMalgo(format)
	if err != nil {
		return nil, &skald.DeviceOpenFailedError{Index: dev.Index, Err: err}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgoFormat
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.Capture.DeviceID = id.Pointer()
	deviceConfig.SampleRate = uint32(rate)
	deviceConfig.Alsa.NoMMap = 1

	stream := &malgoStream{
		bytesPerFrame: bytesPerSample * channels,
	}
	stream.cond = sync.NewCond(&stream.mu)

	malgoDevice, err := malgo.InitDevice(b.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: stream.onData,
	})
	if err != nil {
		return nil, &skald.DeviceOpenFailedError{Index: dev.Index, Err: err}
	}
	stream.device = malgoDevice

	if err := malgoDevice.Start(); err != nil {
		malgoDevice.Uninit()
		return nil, &skald.DeviceOpenFailedError{Index: dev.Index, Err: err}
	}

	return stream, nil
}

func formatToMalgo(format skald.SampleFormat) (malgo.FormatType, int, error) {
	switch format {
	case skald.FormatFloat32:
		return malgo.FormatF32, 4, nil
	case skald.FormatInt16:
		return malgo.FormatS16, 2, nil
	case skald.FormatInt32:
		return malgo.FormatS32, 4, nil
	default:
		return 0, 0, fmt.Errorf("unsupported sample format %q", format)
	}
}

// malgoStream adapts malgo's callback-driven capture into the
// blocking-read skald.InputStream contract, the same handoff shape the
// teacher uses when bridging its capture callback onto a Go channel
// (internal/audio/recorder.go).
type malgoStream struct {
	device        *malgo.Device
	bytesPerFrame int

	mu      sync.Mutex
	cond    *sync.Cond
	buf     []byte
	stopped bool
}

func (s *malgoStream) onData(_ []byte, input []byte, _ uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.buf = append(s.buf, input...)
	s.cond.Signal()
}

// Read blocks until frames frames are available or the stream stops.
func (s *malgoStream) Read(frames int) ([]byte, error) {
	want := frames * s.bytesPerFrame

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.buf) < want && !s.stopped {
		s.cond.Wait()
	}

	if len(s.buf) >= want {
		out := make([]byte, want)
		copy(out, s.buf[:want])
		s.buf = s.buf[want:]
		return out, nil
	}

	// Stopped with a partial (possibly empty) tail.
	out := s.buf
	s.buf = nil
	if len(out) == 0 {
		return nil, io.EOF
	}
	return out, io.EOF
}

func (s *malgoStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.device != nil {
		s.device.Uninit()
		s.device = nil
	}
	return nil
}
