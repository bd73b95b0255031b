package hotkey

import (
	"fmt"
	"strings"

	gohotkey "golang.design/x/hotkey"
)

// comboSpec is a parsed hotkey string: combo := (modifier "+")* key
// (spec §6 hotkey grammar).
type comboSpec struct {
	modifiers       []gohotkey.Modifier
	key             gohotkey.Key
	terminalKeyName string
}

var modifierByName = map[string]gohotkey.Modifier{
	"ctrl":    gohotkey.ModCtrl,
	"control": gohotkey.ModCtrl,
	"shift":   gohotkey.ModShift,
	"alt":     gohotkey.ModOption,
	"option":  gohotkey.ModOption,
	"cmd":     gohotkey.ModCmd,
	"command": gohotkey.ModCmd,
	"win":     gohotkey.ModCmd,
	"super":   gohotkey.ModCmd,
}

var letterKeys = map[string]gohotkey.Key{
	"a": gohotkey.KeyA, "b": gohotkey.KeyB, "c": gohotkey.KeyC, "d": gohotkey.KeyD,
	"e": gohotkey.KeyE, "f": gohotkey.KeyF, "g": gohotkey.KeyG, "h": gohotkey.KeyH,
	"i": gohotkey.KeyI, "j": gohotkey.KeyJ, "k": gohotkey.KeyK, "l": gohotkey.KeyL,
	"m": gohotkey.KeyM, "n": gohotkey.KeyN, "o": gohotkey.KeyO, "p": gohotkey.KeyP,
	"q": gohotkey.KeyQ, "r": gohotkey.KeyR, "s": gohotkey.KeyS, "t": gohotkey.KeyT,
	"u": gohotkey.KeyU, "v": gohotkey.KeyV, "w": gohotkey.KeyW, "x": gohotkey.KeyX,
	"y": gohotkey.KeyY, "z": gohotkey.KeyZ,
}

var digitKeys = map[string]gohotkey.Key{
	"0": gohotkey.Key0, "1": gohotkey.Key1, "2": gohotkey.Key2, "3": gohotkey.Key3,
	"4": gohotkey.Key4, "5": gohotkey.Key5, "6": gohotkey.Key6, "7": gohotkey.Key7,
	"8": gohotkey.Key8, "9": gohotkey.Key9,
}

var namedKeys = map[string]gohotkey.Key{
	"space":  gohotkey.KeySpace,
	"return": gohotkey.KeyReturn,
	"enter":  gohotkey.KeyReturn,
	"tab":    gohotkey.KeyTab,
	"escape": gohotkey.KeyEscape,
	"esc":    gohotkey.KeyEscape,
	"up":     gohotkey.KeyUp,
	"down":   gohotkey.KeyDown,
	"left":   gohotkey.KeyLeft,
	"right":  gohotkey.KeyRight,
	"f1":     gohotkey.KeyF1,
	"f2":     gohotkey.KeyF2,
	"f3":     gohotkey.KeyF3,
	"f4":     gohotkey.KeyF4,
	"f5":     gohotkey.KeyF5,
	"f6":     gohotkey.KeyF6,
	"f7":     gohotkey.KeyF7,
	"f8":     gohotkey.KeyF8,
	"f9":     gohotkey.KeyF9,
	"f10":    gohotkey.KeyF10,
	"f11":    gohotkey.KeyF11,
	"f12":    gohotkey.KeyF12,
}

// parseCombo validates and resolves a hotkey string like
// "ctrl+shift+space" into registerable modifiers and a terminal key.
func parseCombo(combo string) (comboSpec, error) {
	tokens := strings.Split(strings.ToLower(strings.TrimSpace(combo)), "+")
	if len(tokens) == 0 || tokens[len(tokens)-1] == "" {
		return comboSpec{}, fmt.Errorf("empty hotkey combo")
	}

	keyToken := strings.TrimSpace(tokens[len(tokens)-1])
	key, err := lookupKey(keyToken)
	if err != nil {
		return comboSpec{}, err
	}

	var mods []gohotkey.Modifier
	seen := make(map[string]bool)
	for _, tok := range tokens[:len(tokens)-1] {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return comboSpec{}, fmt.Errorf("empty modifier token in combo %q", combo)
		}
		mod, ok := modifierByName[tok]
		if !ok {
			return comboSpec{}, fmt.Errorf("unknown modifier %q in combo %q", tok, combo)
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		mods = append(mods, mod)
	}

	return comboSpec{modifiers: mods, key: key, terminalKeyName: keyToken}, nil
}

func lookupKey(token string) (gohotkey.Key, error) {
	if k, ok := letterKeys[token]; ok {
		return k, nil
	}
	if k, ok := digitKeys[token]; ok {
		return k, nil
	}
	if k, ok := namedKeys[token]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown key %q", token)
}

// normalizeKeyName makes a bare key token (as passed to BindRelease)
// comparable to a combo's terminal key token.
func normalizeKeyName(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
