package skald

import "context"

// AudioBackend is the OS audio service the device registry, level
// monitor, and recorder are built on (spec §6).
type AudioBackend interface {
	// ListDevices enumerates input-capable devices.
	ListDevices() ([]DeviceDescriptor, error)
	// OpenInputStream opens a blocking-read capture stream for a device
	// at the given format/rate/channel count.
	OpenInputStream(device DeviceDescriptor, format SampleFormat, rate, channels int) (InputStream, error)
}

// InputStream is a single open blocking-read capture stream.
type InputStream interface {
	// Read blocks until frames samples (interleaved per channel) have
	// been captured, or the stream is stopped, in which case it
	// returns io.EOF.
	Read(frames int) ([]byte, error)
	Stop() error
}

// ClipboardService places text on the OS clipboard.
type ClipboardService interface {
	SetText(text string) error
}

// KeyboardInjector simulates keystrokes, used to trigger an OS-level
// paste after a clip is transcribed.
type KeyboardInjector interface {
	Send(combo string) error
}

// OsHotkeyBinder registers global OS hotkeys (spec §4.5/§6).
type OsHotkeyBinder interface {
	BindPress(combo string, fn func()) error
	BindRelease(key string, fn func()) error
	UnbindAll()
}

// ModelEngineInfo exposes what the engine learned about the audio
// during a decode pass.
type ModelEngineInfo interface {
	Language() string
	LanguageProbability() float64
	Duration() float64
}

// EngineSegment is one segment yielded by a ModelEngine decode stream.
type EngineSegment interface {
	Text() string
	Start() float64
	End() float64
	AvgLogProb() float64
}

// DecodeOptions configures one ModelEngine decode pass (spec §4.4).
type DecodeOptions struct {
	Language                  string
	BeamSize                  int
	ConditionOnPreviousText   bool
	Temperature               float64
	NoSpeechThreshold         float64
	CompressionRatioThreshold float64
	LogProbThreshold          float64
	VADFilter                 bool
	VADThreshold              float64
	VADMinSpeechDurationMS    int
	VADMinSilenceDurationMS   int
	VADSpeechPadMS            int
	WordTimestamps            bool
}

// SegmentStream yields decoded segments one at a time.
type SegmentStream interface {
	// Next returns the next segment, or ok=false at end of stream.
	Next(ctx context.Context) (seg EngineSegment, ok bool, err error)
}

// ModelEngine owns the Whisper model lifecycle (spec §6).
type ModelEngine interface {
	// Load loads the given model for the given device/compute-type.
	// device/computeType of "auto" let the engine resolve both.
	Load(model ModelID, device, computeType string) error
	// Transcribe starts a decode pass over audio and returns a segment
	// stream plus engine-reported info about the pass.
	Transcribe(audio []float32, opts DecodeOptions) (SegmentStream, ModelEngineInfo, error)
	// Device/ComputeType report what Load actually resolved to.
	Device() string
	ComputeType() string
	Unload()
}

// Observer receives pipeline events (spec §6). Implementations must
// not block; the pipeline controller delivers events from whichever
// worker goroutine produced them.
type Observer interface {
	OnStatus(msg string)
	OnDebug(event map[string]any)
	OnRecordingStarted()
	OnRecordingStopped()
	OnTranscriptionDone(result TranscriptionResult)
}