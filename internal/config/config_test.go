package config

import (
	"os"
	"path/filepath"
	"testing"

	"skald/pkg/skald"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default settings failed validation: %v", err)
	}
}

func TestValidateRejectsUnknownModel(t *testing.T) {
	cfg := Default()
	cfg.ModelID = skald.ModelID("large.en")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown model_id")
	}
}

func TestValidateRejectsUnknownRecordingMode(t *testing.T) {
	cfg := Default()
	cfg.RecordingMode = skald.RecordingMode("continuous")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown recording_mode")
	}
}

func TestValidateRejectsEnergyThresholdOutOfBounds(t *testing.T) {
	cfg := Default()
	cfg.EnergyThreshold = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for energy_threshold > 1")
	}
	cfg.EnergyThreshold = -0.1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for energy_threshold < 0")
	}
}

func TestValidateRejectsSilenceMSOutOfBounds(t *testing.T) {
	cfg := Default()
	cfg.SilenceMS = 50
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for silence_ms below 100")
	}
	cfg.SilenceMS = 20000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for silence_ms above 10000")
	}
}

func TestValidateRejectsEmptyHotkeys(t *testing.T) {
	cfg := Default()
	cfg.Hotkeys.PushToTalk = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty push_to_talk hotkey")
	}
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ModelID != skald.BaseEn {
		t.Errorf("expected default model_id, got %q", cfg.ModelID)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected settings file to be created: %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	cfg := Default()
	cfg.ModelID = skald.SmallEn
	cfg.Language = "fr"
	cfg.RecordingMode = skald.Toggle
	cfg.Hotkeys.Toggle = "ctrl+alt+t"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.ModelID != skald.SmallEn || loaded.Language != "fr" || loaded.RecordingMode != skald.Toggle {
		t.Errorf("round trip mismatch: %+v", loaded)
	}
	if loaded.Hotkeys.Toggle != "ctrl+alt+t" {
		t.Errorf("expected hotkey round trip, got %q", loaded.Hotkeys.Toggle)
	}
}

func TestLoadRejectsCorruptSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	if err := os.WriteFile(path, []byte(`{"model_id":"large.en"}`), 0640); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected Load to reject invalid model_id")
	}
}

func TestLoadToleratesMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")

	if err := os.WriteFile(path, []byte(`{"language":"de"}`), 0640); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Language != "de" {
		t.Errorf("expected language from file, got %q", cfg.Language)
	}
	if cfg.ModelID != skald.BaseEn {
		t.Errorf("expected default model_id to fill in, got %q", cfg.ModelID)
	}
}
