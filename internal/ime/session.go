package ime

import (
	"fmt"
	"time"

	"keybridge/internal/config"
	"keybridge/internal/logging"
)

// Debug turns precondition violations into panics. Release builds leave it
// off, in which case a violation is logged and ignored.
var Debug = false

// ActionKind is a side effect produced for one key press.
type ActionKind uint8

const (
	ActionCommit ActionKind = iota + 1
	ActionPreview
)

func (k ActionKind) String() string {
	switch k {
	case ActionCommit:
		return "commit"
	case ActionPreview:
		return "preview"
	default:
		return fmt.Sprintf("ActionKind(%d)", uint8(k))
	}
}

// Action is a single commit or preview against the focused target.
type Action struct {
	Kind ActionKind
	Char rune
}

// Plan maps an engine result to the ordered actions it requires and the
// consumed verdict. Unknown results plan nothing and are not consumed.
func Plan(res Result) ([]Action, bool) {
	switch r := res.(type) {
	case Bypass:
		return nil, false
	case ToggleHangul:
		return nil, true
	case ClearPreedit:
		return []Action{{ActionCommit, NoChar}}, true
	case Commit:
		return []Action{{ActionCommit, r.Char}}, true
	case CommitPreedit:
		return []Action{{ActionCommit, r.Commit}, {ActionPreview, r.Preedit}}, true
	case Preedit:
		return []Action{{ActionPreview, r.Char}}, true
	case CommitCommit:
		return []Action{{ActionCommit, r.First}, {ActionCommit, r.Second}}, true
	case CommitBypass:
		return []Action{{ActionCommit, r.Char}}, false
	default:
		return nil, false
	}
}

// Session translates key presses for one host input context into commit and
// preview notifications. It keeps no composition state of its own; between
// events it only remembers which target has focus.
//
// A Session is not safe for concurrent use. Hosts call it from a single
// event loop or serialize calls themselves.
type Session struct {
	engine  Engine
	layout  *config.Layout
	targets Targets
	masks   ModifierMasks
	attrs   Attributes
	log     *logging.Logger
	obs     Observer

	focus FocusID
}

// Observer is told about every key press and every blur flush. Calls are
// made synchronously from the Session's caller.
type Observer interface {
	ObserveKey(t ResultType, consumed bool, elapsed time.Duration)
	ObserveFlush(committed bool)
}

type nopObserver struct{}

func (nopObserver) ObserveKey(ResultType, bool, time.Duration) {}
func (nopObserver) ObserveFlush(bool)                          {}

// Option configures a Session.
type Option func(*Session)

// WithModifierMasks sets how FilterEvent decodes raw modifier state.
// The default is X11ModifierMasks.
func WithModifierMasks(m ModifierMasks) Option {
	return func(s *Session) { s.masks = m }
}

// WithAttributes sets the attribute list passed along with every preview.
func WithAttributes(attrs Attributes) Option {
	return func(s *Session) { s.attrs = attrs }
}

// WithLogger sets the session logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithObserver sets the observer. A nil observer is ignored.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.obs = o
		}
	}
}

// NewSession binds a session to one engine and one layout. A nil targets
// resolves no handle, so every action is dropped.
func NewSession(engine Engine, layout *config.Layout, targets Targets, opts ...Option) *Session {
	if targets == nil {
		targets = NewTargetTable()
	}
	s := &Session{
		engine:  engine,
		layout:  layout,
		targets: targets,
		masks:   X11ModifierMasks,
		obs:     nopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logging.Default().WithComponent("ime")
	}
	return s
}

// Focus returns the current focus handle.
func (s *Session) Focus() FocusID {
	return s.focus
}

// FilterEvent is the entry point for raw host events. Anything other than a
// key press is declined without reaching the engine.
func (s *Session) FilterEvent(ev RawKeyEvent) bool {
	if ev.Kind != EventKeyPress {
		return false
	}
	return s.HandleKeyPress(KeyEvent{
		ScanCode:  ev.ScanCode,
		Modifiers: s.masks.Normalize(ev.State),
	})
}

// HandleKeyPress runs one key press through the engine, applies the
// resulting actions in order and reports whether the host should suppress
// its default handling of the key.
func (s *Session) HandleKeyPress(ev KeyEvent) bool {
	start := time.Now()
	res := s.engine.PressKey(s.layout, ev.ScanCode, ev.Modifiers)

	s.log.Debug("key press",
		"code", ev.ScanCode,
		"mods", ev.Modifiers.String(),
		"result", res.Type().String(),
	)

	actions, consumed := Plan(res)
	for _, a := range actions {
		switch a.Kind {
		case ActionCommit:
			s.commit(a.Char)
		case ActionPreview:
			s.preview(a.Char)
		}
	}
	s.obs.ObserveKey(res.Type(), consumed, time.Since(start))
	return consumed
}

// SetFocus moves focus to id. Gaining focus leaves the engine alone; losing
// it (NoFocus) flushes the pending composition into the target that is
// being left.
func (s *Session) SetFocus(id FocusID) {
	if id != NoFocus {
		s.focus = id
		return
	}
	s.obs.ObserveFlush(s.Reset())
	s.focus = NoFocus
}

// Reset asks the engine to drop its composition and commits whatever
// character that yields to the current target. It reports whether the
// engine had a pending character.
func (s *Session) Reset() bool {
	ch := s.engine.Reset()
	if ch == NoChar {
		return false
	}
	s.commit(ch)
	return true
}

func (s *Session) target() (FocusTarget, bool) {
	t, ok := s.targets.Target(s.focus)
	if !ok {
		s.log.Debug("no focus target, dropping action", "focus", uint64(s.focus))
	}
	return t, ok
}

// commit sends ch as committed text. NoChar commits the empty string, which
// clears the preedit without inserting anything.
func (s *Session) commit(ch rune) {
	t, ok := s.target()
	if !ok {
		return
	}
	var text string
	if ch != NoChar {
		text = string(ch)
	}
	t.NotifyCommit(text)
}

func (s *Session) preview(ch rune) {
	if ch == NoChar {
		s.violation("preview called with no character")
		return
	}
	t, ok := s.target()
	if !ok {
		return
	}
	t.NotifyPreview(string(ch), s.attrs)
}

func (s *Session) violation(msg string) {
	if Debug {
		panic("ime: " + msg)
	}
	s.log.Warn(msg)
}
