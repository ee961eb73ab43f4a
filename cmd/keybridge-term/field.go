package main

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"keybridge/internal/ime"
)

// field is a single-line text input. It is the FocusTarget the session
// writes into.
type field struct {
	label   string
	text    string
	preedit string
	attrs   ime.Attributes
}

func (f *field) NotifyCommit(text string) {
	f.preedit = ""
	f.attrs = nil
	f.text += text
}

func (f *field) NotifyPreview(text string, attrs ime.Attributes) {
	f.preedit = text
	f.attrs = attrs
}

// fallback applies the terminal's own handling for a key the session did
// not consume.
func (f *field) fallback(ev *tcell.EventKey) {
	switch normalizeKey(ev.Key()) {
	case tcell.KeyRune:
		f.text += string(ev.Rune())
	case tcell.KeyBackspace:
		f.text = trimLastGrapheme(f.text)
	}
}

// trimLastGrapheme drops the last user-perceived character, so a base
// letter with combining marks goes in one press.
func trimLastGrapheme(s string) string {
	end, state := 0, -1
	for rest := s; rest != ""; {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if rest == "" {
			end = len(s) - len(cluster)
		}
	}
	return s[:end]
}

func (f *field) String() string {
	return f.text
}

// preeditStyle maps preedit attributes onto a terminal style.
func preeditStyle(base tcell.Style, attrs ime.Attributes) tcell.Style {
	s := base
	for _, a := range attrs {
		switch a.Kind {
		case ime.AttrUnderline:
			s = s.Underline(a.Value != ime.UnderlineNone)
		case ime.AttrForeground:
			s = s.Foreground(tcell.NewHexColor(int32(a.Value)))
		case ime.AttrBackground:
			s = s.Background(tcell.NewHexColor(int32(a.Value)))
		}
	}
	return s
}

// drawString writes s at (x, y) one grapheme cluster per cell group and
// returns the column after it.
func drawString(screen tcell.Screen, x, y int, s string, style tcell.Style) int {
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		runes := g.Runes()
		screen.SetContent(x, y, runes[0], runes[1:], style)
		x += g.Width()
	}
	return x
}

// draw renders the field on row y and returns the cursor column.
func (f *field) draw(screen tcell.Screen, y int, focused bool) int {
	labelStyle := tcell.StyleDefault.Bold(focused)
	x := drawString(screen, 0, y, f.label+": ", labelStyle)
	x = drawString(screen, x, y, f.text, tcell.StyleDefault)
	return drawString(screen, x, y, f.preedit, preeditStyle(tcell.StyleDefault, f.attrs))
}
