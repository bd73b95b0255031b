// Package clipboard implements the pipeline's clipboard and paste side
// effects (spec §4.5/§6), grounded on the teacher's pkg/utils.ClipboardManager.
package clipboard

import (
	"github.com/atotto/clipboard"

	"skald/pkg/skald"
)

// SystemClipboard is the skald.ClipboardService backed by the OS
// clipboard via github.com/atotto/clipboard.
type SystemClipboard struct{}

// New builds a SystemClipboard.
func New() *SystemClipboard {
	return &SystemClipboard{}
}

// SetText places text on the system clipboard. Empty text is a no-op,
// matching the teacher's Copy guard against clobbering the clipboard
// with nothing to show for a failed transcription.
func (c *SystemClipboard) SetText(text string) error {
	if text == "" {
		return nil
	}
	return clipboard.WriteAll(text)
}
