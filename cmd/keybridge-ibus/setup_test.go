package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/config"
	"keybridge/internal/engine"
	"keybridge/internal/ime"
)

func TestSetupSourceBuildsFreshEngines(t *testing.T) {
	src, err := newSetupSource(config.DefaultConfig())
	require.NoError(t, err)

	a, err := src.Setup()
	require.NoError(t, err)
	b, err := src.Setup()
	require.NoError(t, err)

	require.IsType(t, &engine.Compose{}, a.Engine)
	assert.NotSame(t, a.Engine, b.Engine, "each context gets its own composition state")
	assert.Same(t, a.Layout, b.Layout)
	assert.Equal(t, ime.Attributes{{Kind: ime.AttrUnderline, Value: ime.UnderlineSingle}}, a.Attrs)
}

func TestSetupSourceUpdate(t *testing.T) {
	src, err := newSetupSource(config.DefaultConfig())
	require.NoError(t, err)
	before, err := src.Setup()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Engine.Name = "passthrough"
	cfg.Preedit.Underline = "none"
	require.NoError(t, src.Update(cfg))

	after, err := src.Setup()
	require.NoError(t, err)
	assert.Equal(t, engine.Passthrough{}, after.Engine)
	assert.Empty(t, after.Attrs)

	// Setups handed out earlier are untouched.
	assert.IsType(t, &engine.Compose{}, before.Engine)
}

func TestSetupSourceRejectsBadConfig(t *testing.T) {
	src, err := newSetupSource(config.DefaultConfig())
	require.NoError(t, err)

	bad := config.DefaultConfig()
	bad.Engine.Name = "hangul3"
	assert.Error(t, src.Update(bad))

	bad = config.DefaultConfig()
	bad.Engine.Keys = append(bad.Engine.Keys, config.KeyBinding{Code: 38, Char: "x"})
	assert.Error(t, src.Update(bad))

	s, err := src.Setup()
	require.NoError(t, err)
	assert.IsType(t, &engine.Compose{}, s.Engine, "previous setup stays in effect")
	assert.Error(t, src.LastError())

	require.NoError(t, src.Update(config.DefaultConfig()))
	assert.NoError(t, src.LastError())

	_, err = newSetupSource(bad)
	assert.Error(t, err)
}
