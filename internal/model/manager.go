// Package model resolves a skald.ModelID to a local GGML model file,
// downloading and checksum-verifying it on first use.
package model

import (
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"skald/internal/validation"
	"skald/pkg/skald"
)

// modelInfo is the download source and expected checksum for a model
// variant. SHA256 is left blank where not known; EnsureModelExists
// skips checksum verification in that case, same as the teacher.
type modelInfo struct {
	URL    string
	SHA256 string
}

var modelRegistry = map[skald.ModelID]modelInfo{
	skald.TinyEn:   {URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin"},
	skald.BaseEn:   {URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin"},
	skald.SmallEn:  {URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin"},
	skald.MediumEn: {URL: "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.en.bin"},
}

// ModelManager ensures a model's GGML file is present and valid
// locally, downloading it into modelsDir on first use.
type ModelManager struct {
	modelsDir string
	logger    *log.Logger
}

// New creates a ModelManager rooted at modelsDir (created on demand).
func New(modelsDir string, logger *log.Logger) *ModelManager {
	return &ModelManager{
		modelsDir: modelsDir,
		logger:    logger,
	}
}

// GetModelPath ensures model is downloaded and returns its validated
// absolute path, resolving the skald.ModelEngine Load contract's
// model-path lookup.
func (m *ModelManager) GetModelPath(id skald.ModelID) (string, error) {
	if !id.Valid() {
		return "", &skald.ModelLoadFailedError{Kind: string(id), Err: fmt.Errorf("unknown model id")}
	}

	if err := m.EnsureModelExists(id); err != nil {
		return "", &skald.ModelLoadFailedError{Kind: string(id), Err: err}
	}

	path := filepath.Join(m.modelsDir, fmt.Sprintf("ggml-%s.bin", id))
	if _, err := validation.ValidateModelPathStrict(path, []string{m.modelsDir}); err != nil {
		return "", &skald.ModelLoadFailedError{Kind: string(id), Err: err}
	}
	absPath, err := validation.ValidateModelPath(path, id)
	if err != nil {
		return "", &skald.ModelLoadFailedError{Kind: string(id), Err: err}
	}
	return absPath, nil
}

func (m *ModelManager) downloadModel(url, destPath, expectedSHA256 string) error {
	// Create a temporary file first
	tmpPath := destPath + ".tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		out.Close()
		os.Remove(tmpPath) // Clean up temp file if still exists
	}()

	// Create HTTP client with secure TLS config
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	
	// For testing, allow self-signed certificates from test servers
	if strings.HasPrefix(url, "https://127.0.0.1") || strings.HasPrefix(url, "https://localhost") {
		transport.TLSClientConfig.InsecureSkipVerify = true
	}
	
	client := &http.Client{
		Timeout: 30 * time.Minute, // Large models may take time
		Transport: transport,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	// Create SHA256 hasher
	hasher := sha256.New()

	counter := &WriteCounter{
		Total:    resp.ContentLength,
		progress: new(int),
		logger:   m.logger,
	}

	// Write to both file and hasher
	multiWriter := io.MultiWriter(out, hasher, counter)
	_, err = io.Copy(multiWriter, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}

	// Close the file before moving
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Verify checksum if provided
	if expectedSHA256 != "" {
		actualSHA256 := hex.EncodeToString(hasher.Sum(nil))
		if actualSHA256 != expectedSHA256 {
			return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedSHA256, actualSHA256)
		}
		m.logger.Printf("Checksum verified: %s", actualSHA256)
	}

	// Move temp file to final destination
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to move file to final destination: %w", err)
	}

	// Set restrictive permissions on the model file
	if err := os.Chmod(destPath, 0644); err != nil {
		m.logger.Printf("Warning: failed to set permissions on model file: %v", err)
	}

	return nil
}

type WriteCounter struct {
	Total    int64
	progress *int
	logger   *log.Logger
}

func (wc *WriteCounter) Write(p []byte) (int, error) {
	n := len(p)
	current := int(*wc.progress+n) * 100 / int(wc.Total)
	if current != *wc.progress {
		*wc.progress = current
		wc.logger.Printf("Downloading... %d%%", current)
	}
	return n, nil
}

// EnsureModelExists downloads id's GGML file into modelsDir if it is
// missing, and re-downloads it if a known checksum no longer matches.
func (m *ModelManager) EnsureModelExists(id skald.ModelID) error {
	info, exists := modelRegistry[id]
	if !exists {
		return fmt.Errorf("model %s not found in registry", id)
	}

	if err := os.MkdirAll(m.modelsDir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	modelPath := filepath.Join(m.modelsDir, fmt.Sprintf("ggml-%s.bin", id))

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		m.logger.Printf("Model %s not found locally, downloading from %s...", id, info.URL)
		if err := m.downloadModel(info.URL, modelPath, info.SHA256); err != nil {
			return fmt.Errorf("failed to download model: %w", err)
		}
		m.logger.Printf("Model %s downloaded successfully", id)
	} else if info.SHA256 != "" {
		if err := m.verifyModelChecksum(modelPath, info.SHA256); err != nil {
			m.logger.Printf("Warning: %v. Re-downloading model...", err)
			if err := m.downloadModel(info.URL, modelPath, info.SHA256); err != nil {
				return fmt.Errorf("failed to re-download model: %w", err)
			}
		}
	}

	return nil
}

// verifyModelChecksum verifies the SHA256 checksum of a model file
func (m *ModelManager) verifyModelChecksum(filePath, expectedSHA256 string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file for checksum verification: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}

	actualSHA256 := hex.EncodeToString(hasher.Sum(nil))
	if actualSHA256 != expectedSHA256 {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedSHA256, actualSHA256)
	}

	return nil
}
