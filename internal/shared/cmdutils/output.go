package cmdutils

import (
	"fmt"
	"io"
)

const logo = "🐬"

// PrintResponse writes an assistant reply with the companion banner.
func PrintResponse(w io.Writer, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(w, "\n%s companion\n%s\n\n", logo, text)
}

// PrintNotice writes a dimmed status line.
func PrintNotice(w io.Writer, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(w, "  ↳ %s\n", text)
}
