package clipboard

import (
	"fmt"
	"os/exec"
	"runtime"
)

// PasteInjector is the skald.KeyboardInjector that simulates a paste
// keystroke, grounded on the teacher's pasteLinux/pasteDarwin/
// pasteWindows (pkg/utils.ClipboardManager.Paste). Only the "paste"
// combo is supported, and it is the only one the pipeline controller
// sends; Send returns an error for any other combo.
type PasteInjector struct{}

// NewPasteInjector builds a PasteInjector.
func NewPasteInjector() *PasteInjector {
	return &PasteInjector{}
}

// Send simulates combo. Only "paste" is currently used by the pipeline.
func (p *PasteInjector) Send(combo string) error {
	if combo != "paste" {
		return fmt.Errorf("unsupported key combo: %s", combo)
	}
	switch runtime.GOOS {
	case "linux":
		return pasteLinux()
	case "darwin":
		return pasteDarwin()
	case "windows":
		return pasteWindows()
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

func pasteLinux() error {
	xdotool, err := exec.LookPath("xdotool")
	if err != nil {
		return fmt.Errorf("xdotool not found: %w", err)
	}
	return exec.Command(xdotool, "key", "ctrl+v").Run()
}

func pasteDarwin() error {
	script := `tell application "System Events" to keystroke "v" using command down`
	return exec.Command("osascript", "-e", script).Run()
}

func pasteWindows() error {
	script := `Add-Type -AssemblyName System.Windows.Forms; [System.Windows.Forms.SendKeys]::SendWait("^v")`
	return exec.Command("powershell.exe", "-command", script).Run()
}
