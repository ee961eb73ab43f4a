//go:build linux

package ime

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIBusCLI struct {
	calls  []string
	engine string
	fail   bool
}

func (f *fakeIBusCLI) run(args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	if f.fail {
		return nil, errors.New("ibus: command not found")
	}
	if len(args) == 1 && args[0] == "engine" {
		return []byte(f.engine + "\n"), nil
	}
	return nil, nil
}

func TestLinuxPlatformInstall(t *testing.T) {
	cli := &fakeIBusCLI{}
	cfg := testPlatformConfig(t.TempDir() + "/ibus/component")
	p := &LinuxPlatform{config: cfg, run: cli.run}

	assert.Equal(t, "ibus", p.Name())
	assert.False(t, p.IsInstalled())

	require.NoError(t, p.Install())
	assert.True(t, p.IsInstalled())
	assert.Equal(t, []string{"restart"}, cli.calls)

	data, err := os.ReadFile(cfg.ComponentPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "<name>keybridge</name>")

	require.NoError(t, p.Uninstall())
	assert.False(t, p.IsInstalled())

	// Removing twice is fine.
	require.NoError(t, p.Uninstall())
}

func TestLinuxPlatformInstallToleratesMissingDaemon(t *testing.T) {
	cli := &fakeIBusCLI{fail: true}
	p := &LinuxPlatform{config: testPlatformConfig(t.TempDir()), run: cli.run}
	require.NoError(t, p.Install())
	assert.True(t, p.IsInstalled())
}

func TestLinuxPlatformActivate(t *testing.T) {
	cli := &fakeIBusCLI{engine: "xkb:us::eng"}
	p := &LinuxPlatform{config: testPlatformConfig(t.TempDir()), run: cli.run}

	assert.False(t, p.IsActive())
	require.NoError(t, p.Activate())
	assert.Equal(t, "engine keybridge", cli.calls[len(cli.calls)-1])

	cli.engine = "keybridge"
	assert.True(t, p.IsActive())

	cli.fail = true
	assert.False(t, p.IsActive())
	assert.Error(t, p.Activate())
}
