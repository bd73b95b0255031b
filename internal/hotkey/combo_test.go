package hotkey

import "testing"

func TestParseComboResolvesModifiersAndKey(t *testing.T) {
	spec, err := parseCombo("ctrl+shift+space")
	if err != nil {
		t.Fatalf("parseCombo failed: %v", err)
	}
	if len(spec.modifiers) != 2 {
		t.Errorf("expected 2 modifiers, got %d", len(spec.modifiers))
	}
	if spec.terminalKeyName != "space" {
		t.Errorf("expected terminal key %q, got %q", "space", spec.terminalKeyName)
	}
}

func TestParseComboRejectsUnknownModifier(t *testing.T) {
	if _, err := parseCombo("meta+r"); err == nil {
		t.Error("expected an error for an unknown modifier")
	}
}

func TestParseComboRejectsUnknownKey(t *testing.T) {
	if _, err := parseCombo("ctrl+nonsense"); err == nil {
		t.Error("expected an error for an unknown key")
	}
}

func TestParseComboRejectsEmpty(t *testing.T) {
	if _, err := parseCombo(""); err == nil {
		t.Error("expected an error for an empty combo")
	}
}

func TestParseComboWithoutModifiers(t *testing.T) {
	spec, err := parseCombo("r")
	if err != nil {
		t.Fatalf("parseCombo failed: %v", err)
	}
	if len(spec.modifiers) != 0 {
		t.Errorf("expected no modifiers, got %d", len(spec.modifiers))
	}
	if spec.terminalKeyName != "r" {
		t.Errorf("expected terminal key %q, got %q", "r", spec.terminalKeyName)
	}
}

func TestNormalizeKeyNameMatchesComboTerminalKey(t *testing.T) {
	spec, err := parseCombo("ctrl+shift+R")
	if err != nil {
		t.Fatalf("parseCombo failed: %v", err)
	}
	if normalizeKeyName("R") != spec.terminalKeyName {
		t.Errorf("expected normalized key to match terminal key, got %q vs %q", normalizeKeyName("R"), spec.terminalKeyName)
	}
}
