// Package render turns bot markdown into terminal or HTML output.
package render

import (
	"bytes"
	"html/template"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/term"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML converts markdown to an HTML fragment. Raw HTML in the input is
// not passed through.
func HTML(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Terminal renders markdown for a terminal, or passes it through unchanged
// when output is not a TTY.
type Terminal struct {
	r *glamour.TermRenderer
}

// NewTerminal returns a renderer for f. Styling is enabled only when f is
// a terminal.
func NewTerminal(f *os.File, width int) *Terminal {
	if f == nil || !IsTTY(f) {
		return &Terminal{}
	}
	return newStyled(width)
}

func newStyled(width int) *Terminal {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return &Terminal{}
	}
	return &Terminal{r: r}
}

// Styled reports whether output is rendered rather than passed through.
func (t *Terminal) Styled() bool {
	return t.r != nil
}

// Render returns the displayable form of src. Rendering failures fall back
// to the raw markdown.
func (t *Terminal) Render(src string) string {
	if t.r == nil {
		return src
	}
	out, err := t.r.Render(src)
	if err != nil {
		return src
	}
	return out
}

// IsTTY reports whether f is attached to a terminal.
func IsTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
