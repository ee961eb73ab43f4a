package main

import (
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"

	"keybridge/internal/config"
	"keybridge/internal/ime"
)

// X11 keycodes for the named keys a terminal reports.
const (
	codeEnter  uint16 = 36
	codeF1     uint16 = 67
	codeUp     uint16 = 111
	codeLeft   uint16 = 113
	codeRight  uint16 = 114
	codeDown   uint16 = 116
	codeDelete uint16 = 119
)

var namedKeys = map[tcell.Key]uint16{
	tcell.KeyEscape:    config.KeyEscape,
	tcell.KeyBackspace: config.KeyBackSpace,
	tcell.KeyEnter:     codeEnter,
	tcell.KeyF1:        codeF1,
	tcell.KeyF2:        config.KeyHangul,
	tcell.KeyUp:        codeUp,
	tcell.KeyLeft:      codeLeft,
	tcell.KeyRight:     codeRight,
	tcell.KeyDown:      codeDown,
	tcell.KeyDelete:    codeDelete,
}

type keyPos struct {
	code  uint16
	shift bool
}

// keyMapper recovers scan codes from the characters a terminal delivers by
// inverting the configured keymap.
type keyMapper struct {
	runes map[rune]keyPos
}

func newKeyMapper(keys []config.KeyBinding) *keyMapper {
	m := &keyMapper{runes: make(map[rune]keyPos)}
	for _, k := range keys {
		if r, ok := onlyRune(k.ShiftChar); ok {
			if _, dup := m.runes[r]; !dup {
				m.runes[r] = keyPos{k.Code, true}
			}
		}
		if r, ok := onlyRune(k.Char); ok {
			m.runes[r] = keyPos{k.Code, false}
		}
	}
	return m
}

func onlyRune(s string) (rune, bool) {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || size != len(s) {
		return 0, false
	}
	return r, true
}

// translate converts a terminal key event into a raw key press with X11
// modifier state. It reports false for keys with no scan code.
func (m *keyMapper) translate(ev *tcell.EventKey) (ime.RawKeyEvent, bool) {
	var state uint32
	mods := ev.Modifiers()
	if mods&tcell.ModShift != 0 {
		state |= ime.X11ShiftMask
	}
	if mods&tcell.ModCtrl != 0 {
		state |= ime.X11ControlMask
	}
	if mods&tcell.ModAlt != 0 {
		state |= ime.X11Mod1Mask
	}
	if mods&tcell.ModMeta != 0 {
		state |= ime.X11Mod4Mask
	}

	key := normalizeKey(ev.Key())
	if code, ok := namedKeys[key]; ok {
		return ime.RawKeyEvent{Kind: ime.EventKeyPress, ScanCode: code, State: state}, true
	}

	var r rune
	switch {
	case key == tcell.KeyRune:
		r = ev.Rune()
	case key >= tcell.KeyCtrlA && key <= tcell.KeyCtrlZ:
		r = 'a' + rune(key-tcell.KeyCtrlA)
		state |= ime.X11ControlMask
	case mods&tcell.ModCtrl != 0 && ev.Rune() >= 'a' && ev.Rune() <= 'z':
		r = ev.Rune()
	default:
		return ime.RawKeyEvent{}, false
	}

	pos, ok := m.runes[r]
	if !ok {
		return ime.RawKeyEvent{}, false
	}
	if pos.shift {
		state |= ime.X11ShiftMask
	}
	return ime.RawKeyEvent{Kind: ime.EventKeyPress, ScanCode: pos.code, State: state}, true
}

// normalizeKey folds the two backspace codes terminals send into one.
func normalizeKey(k tcell.Key) tcell.Key {
	if k == tcell.KeyBackspace2 {
		return tcell.KeyBackspace
	}
	return k
}

// isCtrl reports whether ev is Ctrl plus the letter c. Terminals deliver
// these either as a control key or as a rune with ModCtrl.
func isCtrl(ev *tcell.EventKey, c rune) bool {
	if ev.Key() == tcell.KeyCtrlA+tcell.Key(c-'a') {
		return true
	}
	return ev.Modifiers()&tcell.ModCtrl != 0 && ev.Rune() == c
}
