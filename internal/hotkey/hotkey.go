// Package hotkey implements skald.OsHotkeyBinder (spec §4.5/§6) over
// golang.design/x/hotkey, new to the domain stack: the teacher only
// reads terminal keystrokes (github.com/eiannone/keyboard, see
// internal/console), it never registers OS-global hotkeys.
package hotkey

import (
	"fmt"
	"sync"
	"time"

	gohotkey "golang.design/x/hotkey"

	"skald/pkg/skald"
)

// maxHoldDuration bounds how long BindRelease waits for a key-up event
// before firing the release handler anyway, guarding push-to-talk
// against a lost or unsupported key-up notification (spec §9 Open
// Questions: "Hotkey release-key fallback").
const maxHoldDuration = 5 * time.Second

type binding struct {
	hk      *gohotkey.Hotkey
	keyDown chan struct{}
}

// Binder is the skald.OsHotkeyBinder over golang.design/x/hotkey.
type Binder struct {
	mu            sync.Mutex
	pressByCombo  map[string]*binding
	byTerminalKey map[string]*binding
}

// New builds an empty Binder.
func New() *Binder {
	return &Binder{
		pressByCombo:  make(map[string]*binding),
		byTerminalKey: make(map[string]*binding),
	}
}

// BindPress registers combo and calls fn on every key-down.
func (b *Binder) BindPress(combo string, fn func()) error {
	spec, err := parseCombo(combo)
	if err != nil {
		return &skald.HotkeyBindFailedError{Combo: combo, Err: err}
	}

	hk := gohotkey.New(spec.modifiers, spec.key)
	if err := hk.Register(); err != nil {
		return &skald.HotkeyBindFailedError{Combo: combo, Err: err}
	}

	bnd := &binding{hk: hk, keyDown: make(chan struct{}, 1)}

	b.mu.Lock()
	b.pressByCombo[combo] = bnd
	b.byTerminalKey[spec.terminalKeyName] = bnd
	b.mu.Unlock()

	go func() {
		for range hk.Keydown() {
			select {
			case bnd.keyDown <- struct{}{}:
			default:
			}
			fn()
		}
	}()
	return nil
}

// BindRelease calls fn when key (the bare terminal key of a combo
// already registered via BindPress) is released. A watchdog fires fn
// after maxHoldDuration even without a key-up event.
func (b *Binder) BindRelease(key string, fn func()) error {
	b.mu.Lock()
	bnd, ok := b.byTerminalKey[normalizeKeyName(key)]
	b.mu.Unlock()
	if !ok {
		return &skald.HotkeyBindFailedError{Combo: key, Err: fmt.Errorf("no press binding registered for release key %q", key)}
	}

	go func() {
		keyup := bnd.hk.Keyup()
		for range bnd.keyDown {
			select {
			case _, open := <-keyup:
				if open {
					fn()
				}
			case <-time.After(maxHoldDuration):
				fn()
			}
		}
	}()
	return nil
}

// UnbindAll unregisters every hotkey this Binder holds.
func (b *Binder) UnbindAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bnd := range b.pressByCombo {
		bnd.hk.Unregister()
	}
	b.pressByCombo = make(map[string]*binding)
	b.byTerminalKey = make(map[string]*binding)
}
