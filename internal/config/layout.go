package config

import (
	"fmt"
	"unicode/utf8"
)

// Layout is the compiled, read-only form of an EngineConfig. Engines look
// keys up here on every press. A nil *Layout behaves as an empty layout.
type Layout struct {
	startEnabled bool
	toggles      []Hotkey
	clear        map[uint16]bool
	keys         map[uint16][2]rune
	compose      map[[2]rune]rune
	starters     map[rune]bool
}

// Compile validates the engine tables and builds a Layout.
func (e *EngineConfig) Compile() (*Layout, error) {
	l := &Layout{
		startEnabled: e.StartEnabled,
		toggles:      append([]Hotkey(nil), e.Toggle...),
		clear:        make(map[uint16]bool, len(e.ClearKeys)),
		keys:         make(map[uint16][2]rune, len(e.Keys)),
		compose:      make(map[[2]rune]rune, len(e.Compose)),
		starters:     make(map[rune]bool),
	}

	for _, code := range e.ClearKeys {
		l.clear[code] = true
	}

	for i, k := range e.Keys {
		plain, err := singleRune(k.Char)
		if err != nil {
			return nil, fmt.Errorf("engine.keys[%d].char: %w", i, err)
		}
		shifted := plain
		if k.ShiftChar != "" {
			if shifted, err = singleRune(k.ShiftChar); err != nil {
				return nil, fmt.Errorf("engine.keys[%d].shift_char: %w", i, err)
			}
		}
		if _, dup := l.keys[k.Code]; dup {
			return nil, fmt.Errorf("engine.keys[%d]: code %d bound twice", i, k.Code)
		}
		l.keys[k.Code] = [2]rune{plain, shifted}
	}

	for i, c := range e.Compose {
		seq := []rune(c.Sequence)
		if len(seq) != 2 {
			return nil, fmt.Errorf("engine.compose[%d].sequence: want 2 characters, got %d", i, len(seq))
		}
		out, err := singleRune(c.Result)
		if err != nil {
			return nil, fmt.Errorf("engine.compose[%d].result: %w", i, err)
		}
		key := [2]rune{seq[0], seq[1]}
		if _, dup := l.compose[key]; dup {
			return nil, fmt.Errorf("engine.compose[%d]: sequence %q defined twice", i, c.Sequence)
		}
		l.compose[key] = out
		l.starters[seq[0]] = true
	}

	return l, nil
}

func singleRune(s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("want exactly one character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || r == 0 {
		return 0, fmt.Errorf("invalid character %q", s)
	}
	return r, nil
}

// StartEnabled reports the initial input mode.
func (l *Layout) StartEnabled() bool {
	return l != nil && l.startEnabled
}

// Lookup returns the character bound to code.
func (l *Layout) Lookup(code uint16, shift bool) (rune, bool) {
	if l == nil {
		return 0, false
	}
	pair, ok := l.keys[code]
	if !ok {
		return 0, false
	}
	if shift {
		return pair[1], true
	}
	return pair[0], true
}

// Compose returns the result of typing first then second.
func (l *Layout) Compose(first, second rune) (rune, bool) {
	if l == nil {
		return 0, false
	}
	r, ok := l.compose[[2]rune{first, second}]
	return r, ok
}

// IsComposeStart reports whether r begins at least one compose sequence.
func (l *Layout) IsComposeStart(r rune) bool {
	return l != nil && l.starters[r]
}

// IsClear reports whether code discards a pending composition.
func (l *Layout) IsClear(code uint16) bool {
	return l != nil && l.clear[code]
}

// IsToggle reports whether code with exactly these modifiers is a mode
// toggle hotkey.
func (l *Layout) IsToggle(code uint16, control, shift, super bool) bool {
	if l == nil {
		return false
	}
	for _, h := range l.toggles {
		if h.Code == code && h.Control == control && h.Shift == shift && h.Super == super {
			return true
		}
	}
	return false
}

// KeyCount returns the number of bound scan codes.
func (l *Layout) KeyCount() int {
	if l == nil {
		return 0
	}
	return len(l.keys)
}
