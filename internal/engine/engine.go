// Package engine provides the key-processing engines keybridge ships with.
//
// Engines hold the pending composition for one input context and answer
// every key press with an ime.Result. All key and sequence tables come from
// the compiled config.Layout passed on each call, so the same engine works
// for any keymap a user configures.
package engine

import (
	"fmt"
	"sort"

	"keybridge/internal/config"
	"keybridge/internal/ime"
)

// Factory builds a fresh engine for one input context.
type Factory func(layout *config.Layout) ime.Engine

var registry = map[string]Factory{
	"compose": func(l *config.Layout) ime.Engine { return NewCompose(l.StartEnabled()) },
	"passthrough": func(*config.Layout) ime.Engine {
		return Passthrough{}
	},
}

// New returns a new engine of the named kind.
func New(name string, layout *config.Layout) (ime.Engine, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown engine %q (available: %v)", name, Names())
	}
	return f(layout), nil
}

// Names lists the registered engine names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Passthrough never composes. Every key goes to the host.
type Passthrough struct{}

// PressKey implements ime.Engine.
func (Passthrough) PressKey(*config.Layout, uint16, ime.ModifierFlags) ime.Result {
	return ime.Bypass{}
}

// Reset implements ime.Engine.
func (Passthrough) Reset() rune { return ime.NoChar }
