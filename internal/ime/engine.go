package ime

import (
	"strings"

	"keybridge/internal/config"
)

// NoChar is the sentinel scalar meaning "no character".
const NoChar rune = 0

// Engine is the key-processing engine a Session drives.
//
// Both calls mutate engine-internal composition state. They never fail from
// the caller's point of view: an engine that hits an internal problem must
// report Bypass (or NoChar from Reset) instead.
type Engine interface {
	// PressKey feeds one key press to the engine using the given layout.
	PressKey(layout *config.Layout, code uint16, mods ModifierFlags) Result

	// Reset drops the pending composition and returns the character it
	// finalizes to, or NoChar.
	Reset() rune
}

// ModifierFlags is the normalized modifier state handed to the engine.
// Only Control, Shift and Super exist; every other host modifier is ignored.
type ModifierFlags uint8

const (
	ModShift ModifierFlags = 1 << iota
	ModControl
	ModSuper // Meta/Windows/Command
)

// Has reports whether all bits of m are set in f.
func (f ModifierFlags) Has(m ModifierFlags) bool {
	return f&m == m
}

func (f ModifierFlags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f.Has(ModControl) {
		parts = append(parts, "ctrl")
	}
	if f.Has(ModShift) {
		parts = append(parts, "shift")
	}
	if f.Has(ModSuper) {
		parts = append(parts, "super")
	}
	return strings.Join(parts, "+")
}

// ModifierMasks tells a Session which bits of a host's raw modifier state
// mean Control, Shift and Super. A mask may cover several raw bits.
type ModifierMasks struct {
	Shift   uint32
	Control uint32
	Super   uint32
}

// X11 core protocol state bits.
const (
	X11ShiftMask   uint32 = 1 << 0
	X11LockMask    uint32 = 1 << 1
	X11ControlMask uint32 = 1 << 2
	X11Mod1Mask    uint32 = 1 << 3 // Alt
	X11Mod4Mask    uint32 = 1 << 6 // Super
)

// IBus key event state bits.
const (
	IBusShiftMask   uint32 = 1 << 0
	IBusLockMask    uint32 = 1 << 1
	IBusControlMask uint32 = 1 << 2
	IBusMod1Mask    uint32 = 1 << 3 // Alt
	IBusMod4Mask    uint32 = 1 << 6 // Super on most keymaps
	IBusSuperMask   uint32 = 1 << 26
	IBusHyperMask   uint32 = 1 << 27
	IBusMetaMask    uint32 = 1 << 28
	IBusReleaseMask uint32 = 1 << 30
)

// X11ModifierMasks decodes X11 core key event state.
var X11ModifierMasks = ModifierMasks{
	Shift:   X11ShiftMask,
	Control: X11ControlMask,
	Super:   X11Mod4Mask,
}

// IBusModifierMasks decodes IBus ProcessKeyEvent state.
var IBusModifierMasks = ModifierMasks{
	Shift:   IBusShiftMask,
	Control: IBusControlMask,
	Super:   IBusMod4Mask | IBusSuperMask | IBusMetaMask,
}

// Normalize extracts the Control, Shift and Super flags from raw state.
func (m ModifierMasks) Normalize(state uint32) ModifierFlags {
	var f ModifierFlags
	if state&m.Control != 0 {
		f |= ModControl
	}
	if state&m.Shift != 0 {
		f |= ModShift
	}
	if state&m.Super != 0 {
		f |= ModSuper
	}
	return f
}

// KeyEvent is a single normalized key press.
type KeyEvent struct {
	// ScanCode is the physical key identifier (X11 keycode numbering).
	ScanCode uint16

	// Modifiers is the normalized modifier state at the time of the press.
	Modifiers ModifierFlags
}

// EventKind classifies events arriving at the top-level filter.
type EventKind uint8

const (
	EventOther EventKind = iota
	EventKeyPress
	EventKeyRelease
)

func (k EventKind) String() string {
	switch k {
	case EventKeyPress:
		return "key-press"
	case EventKeyRelease:
		return "key-release"
	default:
		return "other"
	}
}

// RawKeyEvent is an event as delivered by the host, before filtering and
// modifier normalization.
type RawKeyEvent struct {
	Kind     EventKind
	ScanCode uint16
	State    uint32
}
