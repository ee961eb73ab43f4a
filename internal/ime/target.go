package ime

import (
	"sync"

	"keybridge/internal/config"
)

// FocusTarget is the host object that currently receives input. Its lifetime
// belongs to the host; a Session only routes notifications to it.
type FocusTarget interface {
	// NotifyCommit finalizes text into the target and ends any preedit.
	// An empty text only clears the preedit.
	NotifyCommit(text string)

	// NotifyPreview shows text as the uncommitted composition, styled with
	// attrs.
	NotifyPreview(text string, attrs Attributes)
}

// FocusID is a non-owning handle to a FocusTarget. NoFocus means nothing is
// focused.
type FocusID uint64

// NoFocus is the absent handle.
const NoFocus FocusID = 0

// Targets resolves focus handles. A handle whose target has gone away
// resolves to false.
type Targets interface {
	Target(id FocusID) (FocusTarget, bool)
}

// TargetTable is a Targets implementation hosts can register their input
// contexts in. It is safe for concurrent use.
type TargetTable struct {
	mu      sync.RWMutex
	next    FocusID
	targets map[FocusID]FocusTarget
}

// NewTargetTable creates an empty table.
func NewTargetTable() *TargetTable {
	return &TargetTable{targets: make(map[FocusID]FocusTarget)}
}

// Register adds t and returns its handle. Handles are never reused.
func (tt *TargetTable) Register(t FocusTarget) FocusID {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.next++
	tt.targets[tt.next] = t
	return tt.next
}

// Unregister drops the target behind id. Later lookups of id fail.
func (tt *TargetTable) Unregister(id FocusID) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	delete(tt.targets, id)
}

// Target implements Targets.
func (tt *TargetTable) Target(id FocusID) (FocusTarget, bool) {
	if id == NoFocus {
		return nil, false
	}
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	t, ok := tt.targets[id]
	return t, ok
}

// Len returns the number of registered targets.
func (tt *TargetTable) Len() int {
	tt.mu.RLock()
	defer tt.mu.RUnlock()
	return len(tt.targets)
}

// AttrKind identifies a preedit attribute. Values follow IBus numbering.
type AttrKind uint32

const (
	AttrUnderline  AttrKind = 1
	AttrForeground AttrKind = 2
	AttrBackground AttrKind = 3
)

// Underline styles for AttrUnderline.
const (
	UnderlineNone   uint32 = 0
	UnderlineSingle uint32 = 1
	UnderlineDouble uint32 = 2
	UnderlineLow    uint32 = 3
	UnderlineError  uint32 = 4
)

// Attribute styles the whole preedit string.
type Attribute struct {
	Kind  AttrKind
	Value uint32
}

// Attributes is the attribute list handed to NotifyPreview. The Session
// never inspects it.
type Attributes []Attribute

var underlineStyles = map[string]uint32{
	"none":   UnderlineNone,
	"single": UnderlineSingle,
	"double": UnderlineDouble,
	"low":    UnderlineLow,
	"error":  UnderlineError,
}

// AttributesFromConfig builds the preedit attribute list.
func AttributesFromConfig(p config.PreeditConfig) Attributes {
	var attrs Attributes
	if style, ok := underlineStyles[p.Underline]; ok && style != UnderlineNone {
		attrs = append(attrs, Attribute{Kind: AttrUnderline, Value: style})
	}
	if rgb, ok := p.ForegroundRGB(); ok {
		attrs = append(attrs, Attribute{Kind: AttrForeground, Value: rgb})
	}
	if rgb, ok := p.BackgroundRGB(); ok {
		attrs = append(attrs, Attribute{Kind: AttrBackground, Value: rgb})
	}
	return attrs
}

// ContextSetup is everything a new host input context is bound to.
type ContextSetup struct {
	Engine Engine
	Layout *config.Layout
	Attrs  Attributes
}

// SetupFunc builds the setup for one new input context. Hosts call it once
// per context, so a reloaded configuration reaches new contexts only.
type SetupFunc func() (ContextSetup, error)
