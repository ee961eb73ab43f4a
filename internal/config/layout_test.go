package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngineConfig() EngineConfig {
	return EngineConfig{
		Name:         "compose",
		StartEnabled: true,
		Toggle:       []Hotkey{{Code: KeyHangul}, {Code: KeySpace, Shift: true}},
		ClearKeys:    []uint16{KeyEscape},
		Keys: []KeyBinding{
			{Code: 38, Char: "a", ShiftChar: "A"},
			{Code: 48, Char: "'", ShiftChar: "\""},
			{Code: 65, Char: " "},
		},
		Compose: []ComposeRule{
			{Sequence: "'a", Result: "á"},
			{Sequence: "\"a", Result: "ä"},
		},
	}
}

func TestCompileLookup(t *testing.T) {
	ec := testEngineConfig()
	l, err := ec.Compile()
	require.NoError(t, err)

	assert.True(t, l.StartEnabled())
	assert.Equal(t, 3, l.KeyCount())

	r, ok := l.Lookup(38, false)
	assert.True(t, ok)
	assert.Equal(t, 'a', r)

	r, ok = l.Lookup(38, true)
	assert.True(t, ok)
	assert.Equal(t, 'A', r)

	// No shift char falls back to the plain one.
	r, ok = l.Lookup(65, true)
	assert.True(t, ok)
	assert.Equal(t, ' ', r)

	_, ok = l.Lookup(99, false)
	assert.False(t, ok)
}

func TestCompileCompose(t *testing.T) {
	ec := testEngineConfig()
	l, err := ec.Compile()
	require.NoError(t, err)

	r, ok := l.Compose('\'', 'a')
	assert.True(t, ok)
	assert.Equal(t, 'á', r)

	_, ok = l.Compose('a', '\'')
	assert.False(t, ok)

	assert.True(t, l.IsComposeStart('\''))
	assert.True(t, l.IsComposeStart('"'))
	assert.False(t, l.IsComposeStart('a'))
}

func TestCompileHotkeys(t *testing.T) {
	ec := testEngineConfig()
	l, err := ec.Compile()
	require.NoError(t, err)

	assert.True(t, l.IsToggle(KeyHangul, false, false, false))
	assert.False(t, l.IsToggle(KeyHangul, true, false, false))
	assert.True(t, l.IsToggle(KeySpace, false, true, false))
	assert.False(t, l.IsToggle(KeySpace, false, false, false))

	assert.True(t, l.IsClear(KeyEscape))
	assert.False(t, l.IsClear(KeyBackSpace))
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
		errMsg string
	}{
		{
			name:   "multi-rune char",
			mutate: func(e *EngineConfig) { e.Keys[0].Char = "ab" },
			errMsg: "engine.keys[0].char",
		},
		{
			name:   "empty char",
			mutate: func(e *EngineConfig) { e.Keys[1].Char = "" },
			errMsg: "engine.keys[1].char",
		},
		{
			name:   "multi-rune shift char",
			mutate: func(e *EngineConfig) { e.Keys[0].ShiftChar = "AB" },
			errMsg: "engine.keys[0].shift_char",
		},
		{
			name:   "duplicate code",
			mutate: func(e *EngineConfig) { e.Keys[2].Code = 38 },
			errMsg: "bound twice",
		},
		{
			name:   "short sequence",
			mutate: func(e *EngineConfig) { e.Compose[0].Sequence = "'" },
			errMsg: "want 2 characters",
		},
		{
			name:   "long result",
			mutate: func(e *EngineConfig) { e.Compose[1].Result = "ae" },
			errMsg: "engine.compose[1].result",
		},
		{
			name:   "duplicate sequence",
			mutate: func(e *EngineConfig) { e.Compose[1].Sequence = "'a" },
			errMsg: "defined twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := testEngineConfig()
			tt.mutate(&ec)
			_, err := ec.Compile()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNilLayout(t *testing.T) {
	var l *Layout

	assert.False(t, l.StartEnabled())
	assert.Zero(t, l.KeyCount())
	_, ok := l.Lookup(38, false)
	assert.False(t, ok)
	_, ok = l.Compose('\'', 'a')
	assert.False(t, ok)
	assert.False(t, l.IsComposeStart('\''))
	assert.False(t, l.IsClear(KeyEscape))
	assert.False(t, l.IsToggle(KeyHangul, false, false, false))
}

func TestDefaultTablesCompile(t *testing.T) {
	ec := DefaultConfig().Engine
	l, err := ec.Compile()
	require.NoError(t, err)

	assert.Equal(t, len(DefaultKeymap()), l.KeyCount())
	r, ok := l.Compose('\'', 'e')
	assert.True(t, ok)
	assert.Equal(t, 'é', r)
}
