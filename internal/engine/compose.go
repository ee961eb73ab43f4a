package engine

import (
	"sync"

	"keybridge/internal/config"
	"keybridge/internal/ime"
)

// Compose is a two-key composition engine. A character that starts a
// compose sequence is held as preedit; the next key either completes the
// sequence or flushes the held character.
//
// Compose is safe for concurrent use, though a Session only ever calls it
// from one goroutine at a time.
type Compose struct {
	mu      sync.Mutex
	enabled bool
	pending rune
}

// NewCompose creates a Compose engine in the given input mode.
func NewCompose(enabled bool) *Compose {
	return &Compose{enabled: enabled}
}

// Enabled reports whether composition is active. When disabled every key
// except a toggle hotkey bypasses the engine.
func (c *Compose) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Pending returns the held character, or ime.NoChar.
func (c *Compose) Pending() rune {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// PressKey implements ime.Engine.
func (c *Compose) PressKey(layout *config.Layout, code uint16, mods ime.ModifierFlags) ime.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctrl := mods.Has(ime.ModControl)
	shift := mods.Has(ime.ModShift)
	super := mods.Has(ime.ModSuper)

	if layout.IsToggle(code, ctrl, shift, super) {
		c.enabled = !c.enabled
		if p := c.take(); p != ime.NoChar {
			return ime.Commit{Char: p}
		}
		return ime.ToggleHangul{}
	}

	if !c.enabled {
		return ime.Bypass{}
	}

	// Shortcuts go to the application, after the composition is finished.
	if ctrl || super {
		return c.flushBypass()
	}

	if c.pending != ime.NoChar && layout.IsClear(code) {
		c.pending = ime.NoChar
		return ime.ClearPreedit{}
	}

	r, ok := layout.Lookup(code, shift)
	if !ok {
		return c.flushBypass()
	}

	if p := c.take(); p != ime.NoChar {
		if out, ok := layout.Compose(p, r); ok {
			return ime.Commit{Char: out}
		}
		if layout.IsComposeStart(r) {
			c.pending = r
			return ime.CommitPreedit{Commit: p, Preedit: r}
		}
		return ime.CommitCommit{First: p, Second: r}
	}

	if layout.IsComposeStart(r) {
		c.pending = r
		return ime.Preedit{Char: r}
	}
	return ime.Commit{Char: r}
}

// Reset implements ime.Engine.
func (c *Compose) Reset() rune {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.take()
}

func (c *Compose) take() rune {
	p := c.pending
	c.pending = ime.NoChar
	return p
}

func (c *Compose) flushBypass() ime.Result {
	if p := c.take(); p != ime.NoChar {
		return ime.CommitBypass{Char: p}
	}
	return ime.Bypass{}
}
