// Package config holds the core's read-only settings view (spec §6)
// and its JSON persistence, following the validate-at-the-boundary
// shape of the teacher's own config package.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"skald/pkg/skald"
)

// InvalidSettingError is returned by Validate for a single bad field.
// Per spec Design Note "Dynamic settings dict", invalid settings are
// rejected at the boundary and the pipeline controller is never
// constructed from them.
type InvalidSettingError struct {
	Field  string
	Reason string
}

func (e *InvalidSettingError) Error() string {
	return fmt.Sprintf("invalid setting %s: %s", e.Field, e.Reason)
}

// Hotkeys holds the two combo strings the controller binds (spec §4.5).
type Hotkeys struct {
	PushToTalk string `json:"push_to_talk"`
	Toggle     string `json:"toggle"`
}

// Settings is the core's read-only settings view (spec §6).
type Settings struct {
	ModelID             skald.ModelID      `json:"model_id"`
	Language            string             `json:"language"`
	RecordingMode       skald.RecordingMode `json:"recording_mode"`
	Hotkeys             Hotkeys            `json:"hotkeys"`
	AutoPaste           bool               `json:"auto_paste"`
	AutoCopy            bool               `json:"auto_copy"`
	EnergyThreshold     float64            `json:"energy_threshold"`
	SilenceMS           int                `json:"silence_ms"`
	SelectedDeviceName  string             `json:"selected_device_name"`
}

// Default returns the settings the app ships with.
func Default() *Settings {
	return &Settings{
		ModelID:       skald.BaseEn,
		Language:      "en",
		RecordingMode: skald.PushToTalk,
		Hotkeys: Hotkeys{
			PushToTalk: "ctrl+shift+space",
			Toggle:     "ctrl+shift+r",
		},
		AutoPaste:          true,
		AutoCopy:           true,
		EnergyThreshold:    0.01,
		SilenceMS:          1200,
		SelectedDeviceName: "",
	}
}

// Validate checks the invariants spec §6 names for the settings
// schema. A settings value that fails validation must never be used
// to construct the pipeline controller.
func (s *Settings) Validate() error {
	if !s.ModelID.Valid() {
		return &InvalidSettingError{"model_id", fmt.Sprintf("unknown model %q", s.ModelID)}
	}
	switch s.RecordingMode {
	case skald.PushToTalk, skald.Toggle, skald.Auto:
	default:
		return &InvalidSettingError{"recording_mode", fmt.Sprintf("unknown mode %q", s.RecordingMode)}
	}
	if s.EnergyThreshold < 0 || s.EnergyThreshold > 1 {
		return &InvalidSettingError{"energy_threshold", "must be between 0 and 1"}
	}
	if s.SilenceMS < 100 || s.SilenceMS > 10000 {
		return &InvalidSettingError{"silence_ms", "must be between 100 and 10000"}
	}
	if s.Hotkeys.PushToTalk == "" {
		return &InvalidSettingError{"hotkeys.push_to_talk", "must not be empty"}
	}
	if s.Hotkeys.Toggle == "" {
		return &InvalidSettingError{"hotkeys.toggle", "must not be empty"}
	}
	return nil
}

// Load reads settings from a JSON file, tolerating missing keys (each
// falls back to the shipped default) the way tiltedvoice's
// AppSettings.from_dict does — but, unlike that permissive reader,
// still runs Validate before returning so a corrupt file never
// silently produces an unusable controller.
func Load(path string) (*Settings, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve settings path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if err := Save(absPath, cfg); err != nil {
				return nil, fmt.Errorf("failed to create default settings: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return cfg, nil
}

// Save writes settings to a JSON file.
func Save(path string, cfg *Settings) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}
