package ime

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/config"
)

func testPlatformConfig(dir string) PlatformConfig {
	c := PlatformConfigFromConfig(config.DefaultConfig().IBus)
	c.ExecPath = "/opt/keybridge/keybridge-ibus"
	c.ComponentDir = dir
	return c
}

func TestPlatformConfigFromConfig(t *testing.T) {
	c := PlatformConfigFromConfig(config.DefaultConfig().IBus)
	assert.Equal(t, "org.freedesktop.IBus.Keybridge", c.BusName)
	assert.Equal(t, "keybridge", c.EngineName)
	assert.NotEmpty(t, c.ExecPath)
	assert.True(t, strings.HasSuffix(c.ComponentDir, "ibus/component"))
}

func TestComponentXML(t *testing.T) {
	c := testPlatformConfig("/tmp/components")
	assert.Equal(t, "/tmp/components/keybridge.xml", c.ComponentPath())

	data, err := ComponentXML(c)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), xml.Header))

	var comp ibusComponent
	require.NoError(t, xml.Unmarshal(data, &comp))
	assert.Equal(t, "org.freedesktop.IBus.Keybridge", comp.Name)
	assert.Equal(t, "/opt/keybridge/keybridge-ibus --ibus", comp.Exec)
	require.Len(t, comp.Engines, 1)

	e := comp.Engines[0]
	assert.Equal(t, "keybridge", e.Name)
	assert.Equal(t, "Keybridge", e.LongName)
	assert.Equal(t, "us", e.Layout)
	assert.Equal(t, "K", e.Symbol)
}
