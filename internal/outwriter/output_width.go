package outwriter

import (
	"os"

	"github.com/huangsam/digitaldiary/internal/contract"
	"golang.org/x/term"
)

// GetMaxTableURLWidth calculates the maximum width for URLs in the entries
// table based on terminal width and the fixed columns.
func GetMaxTableURLWidth(cfg *contract.Config) int {
	var termWidth int

	// Check for absolute width override from flag/env
	if cfg.Width > 0 {
		termWidth = cfg.Width
	}

	if termWidth == 0 { // Not set by override
		detectedWidth, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil || detectedWidth <= 0 {
			// Fallback to conservative default if terminal size can't be detected
			termWidth = 80
		} else {
			termWidth = detectedWidth
		}
	}

	// Method + Status + Type + Size + Stored with borders/padding
	baseWidth := 70

	available := termWidth - baseWidth
	if available < 20 {
		return 20
	}
	if available > 90 {
		return 90
	}
	return available
}

// truncateURL shortens a URL to maxWidth runes, keeping its tail.
func truncateURL(u string, maxWidth int) string {
	runes := []rune(u)
	if len(runes) <= maxWidth || maxWidth < 4 {
		return u
	}
	return "..." + string(runes[len(runes)-(maxWidth-3):])
}
