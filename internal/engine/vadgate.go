package engine

import (
	"math"

	"skald/pkg/skald"
)

const windowSeconds = 0.03

// energyGate approximates a neural VAD filter with the RMS-window
// energy gate the teacher already uses for silence detection
// (internal/audio/processor.go isSilent): the pinned whisper.cpp
// binding has no vad_filter/vad_parameters equivalent to
// faster-whisper's, so leading/trailing low-energy windows are
// trimmed directly from the clip before the "vad_on" pass instead of
// being filtered inside the decoder.
func energyGate(samples []float32, sampleRate int, opts skald.DecodeOptions) []float32 {
	if !opts.VADFilter || sampleRate <= 0 || len(samples) == 0 {
		return samples
	}

	windowFrames := int(float64(sampleRate) * windowSeconds)
	if windowFrames < 1 {
		windowFrames = 1
	}
	minSpeechWindows := max(1, opts.VADMinSpeechDurationMS*sampleRate/1000/windowFrames)
	minSilenceWindows := max(1, opts.VADMinSilenceDurationMS*sampleRate/1000/windowFrames)
	padFrames := opts.VADSpeechPadMS * sampleRate / 1000

	threshold := opts.VADThreshold
	if threshold <= 0 {
		threshold = 0.02
	}

	numWindows := (len(samples) + windowFrames - 1) / windowFrames
	voiced := make([]bool, numWindows)
	for w := 0; w < numWindows; w++ {
		start := w * windowFrames
		end := min(start+windowFrames, len(samples))
		voiced[w] = windowRMS(samples[start:end]) >= threshold
	}

	// Smooth out speech runs shorter than the minimum speech duration.
	runs := voicedRuns(voiced)
	for _, r := range runs {
		if r.value && (r.end-r.start) < minSpeechWindows {
			for w := r.start; w < r.end; w++ {
				voiced[w] = false
			}
		}
	}
	// Bridge silence gaps shorter than the minimum silence duration.
	runs = voicedRuns(voiced)
	for i, r := range runs {
		if !r.value && i > 0 && i < len(runs)-1 && (r.end-r.start) < minSilenceWindows {
			for w := r.start; w < r.end; w++ {
				voiced[w] = true
			}
		}
	}

	first, last := -1, -1
	for w, v := range voiced {
		if v {
			if first == -1 {
				first = w
			}
			last = w
		}
	}
	if first == -1 {
		return nil
	}

	startFrame := max(0, first*windowFrames-padFrames)
	endFrame := min(len(samples), (last+1)*windowFrames+padFrames)
	return samples[startFrame:endFrame]
}

func windowRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

type boolRun struct {
	value      bool
	start, end int
}

func voicedRuns(voiced []bool) []boolRun {
	var runs []boolRun
	if len(voiced) == 0 {
		return runs
	}
	start := 0
	for i := 1; i <= len(voiced); i++ {
		if i == len(voiced) || voiced[i] != voiced[start] {
			runs = append(runs, boolRun{value: voiced[start], start: start, end: i})
			start = i
		}
	}
	return runs
}
