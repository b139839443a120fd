package client

import "github.com/charmbracelet/glamour"

// NewMarkdownRenderer returns a glamour renderer. With tty false it uses the
// notty style so output carries no escape codes.
func NewMarkdownRenderer(tty bool, wordWrap int) (Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wordWrap)}
	if tty {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	}
	return glamour.NewTermRenderer(opts...)
}
