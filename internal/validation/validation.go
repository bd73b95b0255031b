// Package validation checks a downloaded Whisper model file before the
// engine is allowed to load it: the path resolves safely and the file
// is plausibly the GGML model it claims to be, not a truncated
// download or an HTML error page saved under the expected name.
package validation

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"skald/pkg/skald"
)

const ggmlMagic = 0x67676d6c // "ggml" in hex

// minHeaderBytes is the floor for any file claiming to be a GGML
// model: magic number plus at least 11 int32 header parameters.
const minHeaderBytes = 48

// minSizeFraction is how small a model file is allowed to be relative
// to its variant's known size before it's rejected as truncated. Model
// files are large and compressed; a clean download rarely lands far
// under its published size.
const minSizeFraction = 0.5

// ValidateModelPath cleans path, confirms it names a GGML file
// consistent with id's expected size, and returns its absolute form.
func ValidateModelPath(path string, id skald.ModelID) (string, error) {
	cleanPath := filepath.Clean(path)

	if _, err := os.Stat(cleanPath); err != nil {
		return "", fmt.Errorf("model file not found: %s", cleanPath)
	}

	if err := ValidateGGMLHeader(cleanPath, id); err != nil {
		return "", fmt.Errorf("invalid model file: %w", err)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve model path: %w", err)
	}

	return absPath, nil
}

// ValidateGGMLHeader checks path's magic number and confirms its size
// is plausible for the ModelID it's supposed to hold — id.SizeMB()
// sets the expected order of magnitude, catching a truncated or
// wrong-variant download that a bare minimum-size floor would miss.
func ValidateGGMLHeader(path string, id skald.ModelID) error {
	fileInfo, err := checkGGMLMagic(path)
	if err != nil {
		return err
	}

	if !id.Valid() {
		return fmt.Errorf("unknown model id %q, cannot validate expected size", id)
	}
	expectedBytes := int64(id.SizeMB()) * 1024 * 1024
	minBytes := int64(float64(expectedBytes) * minSizeFraction)
	if fileInfo.Size() < minBytes {
		return fmt.Errorf("model file too small for %s: %d bytes, expected at least %d", id, fileInfo.Size(), minBytes)
	}

	return nil
}

// checkGGMLMagic verifies the magic number and the bare minimum header
// size a GGML file must have, independent of which model variant it
// is supposed to be.
func checkGGMLMagic(path string) (os.FileInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var magic uint32
	if err := binary.Read(file, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("failed to read magic bytes: %w", err)
	}
	if magic != ggmlMagic {
		return nil, fmt.Errorf("invalid GGML magic number: got 0x%x, expected 0x%x", magic, ggmlMagic)
	}

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	if fileInfo.Size() < minHeaderBytes {
		return nil, fmt.Errorf("model file too small to be valid GGML format: %d bytes", fileInfo.Size())
	}
	return fileInfo, nil
}

// ValidateModelPathStrict resolves path and, when allowedDirs is
// non-empty, rejects any path that does not resolve inside one of
// them — containment for contexts (a user-supplied models directory,
// for instance) where the caller has no specific ModelID to size-check
// against, only a directory it trusts.
func ValidateModelPathStrict(path string, allowedDirs []string) (string, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve model path: %w", err)
	}

	if len(allowedDirs) > 0 {
		contained := false
		for _, dir := range allowedDirs {
			absDir, err := filepath.Abs(dir)
			if err != nil {
				continue
			}
			if absPath == absDir || strings.HasPrefix(absPath, absDir+string(os.PathSeparator)) {
				contained = true
				break
			}
		}
		if !contained {
			return "", fmt.Errorf("model path %s is outside the allowed directories", absPath)
		}
	}

	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("model file not found: %s", absPath)
	}
	if _, err := checkGGMLMagic(absPath); err != nil {
		return "", fmt.Errorf("invalid model file: %w", err)
	}
	return absPath, nil
}
