package device

import (
	"strings"
	"sync"

	"skald/pkg/skald"
)

// Registry ranks and probes devices exposed by an skald.AudioBackend.
// Probe results are cached per device index for the registry's
// lifetime, mirroring MicrophoneManager's _probed_dtypes/_probed_rates
// cache in the original source — a device index never needs probing
// twice.
type Registry struct {
	backend skald.AudioBackend

	mu    sync.Mutex
	probe map[int]skald.ProbeResult
}

// NewRegistry wraps a backend with ranking and probing.
func NewRegistry(backend skald.AudioBackend) *Registry {
	return &Registry{
		backend: backend,
		probe:   make(map[int]skald.ProbeResult),
	}
}

// preferredKeywords/avoidKeywords/preferredAPIs/dtypeFallback mirror
// MicrophoneManager's class constants verbatim.
var (
	preferredKeywords = []string{"microphone", "headset", "mic"}
	avoidKeywords     = []string{"sound mapper", "stereo mix", "virtual", "output"}
	preferredAPIs     = []string{"wasapi", "directsound", "mme", "wdm"}
	dtypeFallback     = []skald.SampleFormat{skald.FormatFloat32, skald.FormatInt16, skald.FormatInt32}
	rateFallback      = []int{44100, 48000, 16000}
)

// ListDevices enumerates input devices via the backend.
func (r *Registry) ListDevices() ([]skald.DeviceDescriptor, error) {
	return r.backend.ListDevices()
}

// score ranks a device the way get_default_device/get_best_working_device
// do: +10 for a preferred keyword, -20 for an avoided one, a
// host-API bonus weighted by preference rank, +2 for mono/stereo.
//
// malgo binds one backend for the whole process, so every descriptor
// here shares the same HostAPI string and the API bonus becomes a
// constant offset rather than a differentiator — kept anyway so the
// scoring formula matches its origin exactly and still discriminates
// correctly on any platform where HostAPI does vary per device.
func score(d skald.DeviceDescriptor) int {
	nameLower := strings.ToLower(d.Name)
	apiLower := strings.ToLower(d.HostAPI)

	s := 0
	for _, kw := range preferredKeywords {
		if strings.Contains(nameLower, kw) {
			s += 10
			break
		}
	}
	for _, kw := range avoidKeywords {
		if strings.Contains(nameLower, kw) {
			s -= 20
			break
		}
	}
	for rank := len(preferredAPIs) - 1; rank >= 0; rank-- {
		if strings.Contains(apiLower, preferredAPIs[rank]) {
			s += (len(preferredAPIs) - rank) * 3
			break
		}
	}
	if d.Channels == 1 || d.Channels == 2 {
		s += 2
	}
	return s
}

// RankedDevices returns ListDevices sorted best-first by score,
// highest score winning ties by keeping the earlier enumeration order
// (stable sort).
func (r *Registry) RankedDevices() ([]skald.DeviceDescriptor, error) {
	devices, err := r.ListDevices()
	if err != nil {
		return nil, err
	}
	ranked := make([]skald.DeviceDescriptor, len(devices))
	copy(ranked, devices)
	stableSortByScoreDesc(ranked)
	return ranked, nil
}

func stableSortByScoreDesc(devices []skald.DeviceDescriptor) {
	for i := 1; i < len(devices); i++ {
		j := i
		for j > 0 && score(devices[j-1]) < score(devices[j]) {
			devices[j-1], devices[j] = devices[j], devices[j-1]
			j--
		}
	}
}

// DefaultDevice returns the single highest-scoring device without
// probing it, matching get_default_device.
func (r *Registry) DefaultDevice() (*skald.DeviceDescriptor, error) {
	ranked, err := r.RankedDevices()
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		return nil, nil
	}
	return &ranked[0], nil
}

const probeTestFrameSeconds = 0.25

// Probe tries the dtype/rate fallback order for a device and caches
// the first combination that yields a valid test clip. requestedRate,
// if non-zero, is tried before the device's native rate and the
// common-rate fallback list, per probe_device.
func (r *Registry) Probe(dev skald.DeviceDescriptor, requestedRate int) (skald.ProbeResult, bool) {
	r.mu.Lock()
	if cached, ok := r.probe[dev.Index]; ok {
		r.mu.Unlock()
		return cached, true
	}
	r.mu.Unlock()

	rates := make([]int, 0, len(rateFallback)+2)
	seen := make(map[int]bool)
	addRate := func(rate int) {
		if rate > 0 && !seen[rate] {
			seen[rate] = true
			rates = append(rates, rate)
		}
	}
	addRate(requestedRate)
	if dev.NativeRate > 0 {
		addRate(dev.NativeRate)
	}
	for _, rate := range rateFallback {
		addRate(rate)
	}

	for _, rate := range rates {
		for _, format := range dtypeFallback {
			if r.tryFormat(dev, format, rate) {
				result := skald.ProbeResult{Format: format, Rate: rate}
				r.mu.Lock()
				r.probe[dev.Index] = result
				r.mu.Unlock()
				return result, true
			}
		}
	}
	return skald.ProbeResult{}, false
}

func (r *Registry) tryFormat(dev skald.DeviceDescriptor, format skald.SampleFormat, rate int) bool {
	clip, err := r.recordTestClip(dev, format, rate, probeTestFrameSeconds)
	if err != nil {
		return false
	}
	return clip.IsValid()
}

func (r *Registry) recordTestClip(dev skald.DeviceDescriptor, format skald.SampleFormat, rate int, seconds float64) (skald.AudioClip, error) {
	stream, err := r.backend.OpenInputStream(dev, format, rate, 1)
	if err != nil {
		return skald.AudioClip{}, err
	}
	defer stream.Stop()

	frames := int(float64(rate) * seconds)
	raw, err := stream.Read(frames)
	if err != nil && len(raw) == 0 {
		return skald.AudioClip{}, err
	}

	samples := skald.DecodeSamples(raw, format)
	return skald.AudioClip{Samples: samples, SampleRate: rate}, nil
}

// BestWorkingDevice probes ranked candidates in order and returns the
// first that produces valid audio, falling back to DefaultDevice if
// none do, matching get_best_working_device.
func (r *Registry) BestWorkingDevice(requestedRate int) (*skald.DeviceDescriptor, error) {
	ranked, err := r.RankedDevices()
	if err != nil {
		return nil, err
	}
	for i := range ranked {
		if _, ok := r.Probe(ranked[i], requestedRate); ok {
			return &ranked[i], nil
		}
	}
	return r.DefaultDevice()
}

// TestDevice records a short clip from dev and returns its peak
// amplitude, matching test_device. It prefers the cached probe result
// and falls back to probing if the default format produces nothing
// usable.
func (r *Registry) TestDevice(dev skald.DeviceDescriptor, rate int, seconds float64) float64 {
	format := skald.FormatFloat32
	r.mu.Lock()
	cached, ok := r.probe[dev.Index]
	r.mu.Unlock()
	if ok {
		format = cached.Format
		rate = cached.Rate
	}

	clip, err := r.recordTestClip(dev, format, rate, seconds)
	if err == nil && clip.IsValid() {
		return clip.Peak()
	}

	if result, ok := r.Probe(dev, rate); ok && result.Format != format {
		clip, err := r.recordTestClip(dev, result.Format, result.Rate, seconds)
		if err == nil && clip.IsValid() {
			return clip.Peak()
		}
	}
	return 0.0
}
