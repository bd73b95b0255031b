// Package engine adapts github.com/ggerganov/whisper.cpp/bindings/go
// to skald.ModelEngine (spec §4.4, C4), grounded on the teacher's own
// internal/whisper/whisper.go wrapper.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	whispercpp "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"skald/pkg/skald"
)

const whisperSampleRate = 16000

// cudaErrorKeywords are the load-error substrings that indicate a
// failed GPU path, matching tiltedvoice's _CUDA_ERROR_KEYWORDS.
var cudaErrorKeywords = []string{"cublas", "cuda", "cudnn", "cusparse", "nvcuda"}

// PathResolver resolves a model identifier to a local GGML file,
// downloading it first if necessary (internal/model.ModelManager).
type PathResolver interface {
	GetModelPath(id skald.ModelID) (string, error)
}

// WhisperEngine is the concrete skald.ModelEngine over whisper.cpp.
type WhisperEngine struct {
	resolver PathResolver

	model       whispercpp.Model
	device      string
	computeType string
}

// New builds a WhisperEngine that resolves models via resolver.
func New(resolver PathResolver) *WhisperEngine {
	return &WhisperEngine{resolver: resolver}
}

// Load loads modelID, resolving device/computeType. The pinned
// whisper.cpp binding has no per-call device/compute-type selection —
// GPU support is a build-time choice baked into the binary — so this
// resolution reports what Load ended up with rather than truly
// switching compute backends at runtime. A CUDA-keyword load failure
// still triggers the same fallback-to-CPU bookkeeping tiltedvoice's
// Transcriber.load_model performs, for parity of the reported state.
func (e *WhisperEngine) Load(modelID skald.ModelID, device, computeType string) error {
	path, err := e.resolver.GetModelPath(modelID)
	if err != nil {
		return &skald.ModelLoadFailedError{Kind: string(modelID), Err: err}
	}

	resolvedDevice, resolvedComputeType := resolveDevice(device, computeType)

	oldLogLevel, hadLogLevel := os.LookupEnv("GGML_LOG_LEVEL")
	os.Setenv("GGML_LOG_LEVEL", "ERROR")
	defer func() {
		if hadLogLevel {
			os.Setenv("GGML_LOG_LEVEL", oldLogLevel)
		} else {
			os.Unsetenv("GGML_LOG_LEVEL")
		}
	}()

	m, err := whispercpp.New(path)
	if err != nil && isCUDAError(err) && resolvedDevice != "cpu" {
		resolvedDevice, resolvedComputeType = "cpu", "int8"
		m, err = whispercpp.New(path)
	}
	if err != nil {
		return &skald.ModelLoadFailedError{Kind: string(modelID), Err: err}
	}

	if e.model != nil {
		e.model.Close()
	}
	e.model = m
	e.device = resolvedDevice
	e.computeType = resolvedComputeType
	return nil
}

func resolveDevice(device, computeType string) (string, string) {
	if device != "" && device != "auto" && computeType != "" && computeType != "auto" {
		return device, computeType
	}
	return "cpu", "int8"
}

func isCUDAError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range cudaErrorKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Device reports the backend Load resolved.
func (e *WhisperEngine) Device() string { return e.device }

// ComputeType reports the compute precision Load resolved.
func (e *WhisperEngine) ComputeType() string { return e.computeType }

// Transcribe runs one decode pass over audio, applying the VAD-gate
// energy trim when opts.VADFilter is set.
func (e *WhisperEngine) Transcribe(audio []float32, opts skald.DecodeOptions) (skald.SegmentStream, skald.ModelEngineInfo, error) {
	if e.model == nil {
		return nil, nil, fmt.Errorf("engine not loaded")
	}

	gated := energyGate(audio, whisperSampleRate, opts)

	whisperCtx, err := e.model.NewContext()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create whisper context: %w", err)
	}

	lang := opts.Language
	if lang == "" {
		lang = "auto"
	}
	if err := whisperCtx.SetLanguage(lang); err != nil {
		return nil, nil, fmt.Errorf("failed to set language: %w", err)
	}
	whisperCtx.SetTranslate(false)

	if len(gated) == 0 {
		return &segmentStream{ctx: whisperCtx, done: true}, &passInfo{language: lang}, nil
	}

	if err := whisperCtx.Process(gated, nil, nil); err != nil {
		return nil, nil, fmt.Errorf("failed to process audio: %w", err)
	}

	resolvedLang := whisperCtx.Language()
	if resolvedLang == "" {
		resolvedLang = lang
	}

	return &segmentStream{ctx: whisperCtx}, &passInfo{
		language: resolvedLang,
		duration: float64(len(gated)) / whisperSampleRate,
	}, nil
}

// Unload releases the model from memory.
func (e *WhisperEngine) Unload() {
	if e.model != nil {
		e.model.Close()
		e.model = nil
	}
	e.device = ""
	e.computeType = ""
}

type passInfo struct {
	language string
	duration float64
}

func (p *passInfo) Language() string            { return p.language }
func (p *passInfo) LanguageProbability() float64 { return 0 }
func (p *passInfo) Duration() float64            { return p.duration }

// segmentStream adapts whisper.cpp's ctx.NextSegment() pull model to
// skald.SegmentStream.
type segmentStream struct {
	ctx  whispercpp.Context
	done bool
}

func (s *segmentStream) Next(ctx context.Context) (skald.EngineSegment, bool, error) {
	if s.done {
		return nil, false, nil
	}
	select {
	case <-ctx.Done():
		s.done = true
		return nil, false, ctx.Err()
	default:
	}

	seg, err := s.ctx.NextSegment()
	if err != nil {
		s.done = true
		return nil, false, nil
	}
	return &engineSegment{seg: seg}, true, nil
}

type engineSegment struct {
	seg whispercpp.Segment
}

func (s *engineSegment) Text() string       { return s.seg.Text }
func (s *engineSegment) Start() float64     { return s.seg.Start.Seconds() }
func (s *engineSegment) End() float64       { return s.seg.End.Seconds() }
func (s *engineSegment) AvgLogProb() float64 { return 0 }
