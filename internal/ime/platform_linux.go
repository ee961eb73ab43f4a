//go:build linux

package ime

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// LinuxPlatform registers keybridge as an IBus component.
type LinuxPlatform struct {
	config PlatformConfig

	// run executes an ibus command line and returns its output.
	run func(args ...string) ([]byte, error)
}

// NewPlatform returns the platform integration for this OS.
func NewPlatform(config PlatformConfig) Platform {
	return &LinuxPlatform{config: config, run: runIBus}
}

func runIBus(args ...string) ([]byte, error) {
	return exec.Command("ibus", args...).Output()
}

func (p *LinuxPlatform) Name() string {
	return "ibus"
}

func (p *LinuxPlatform) Available() bool {
	if _, err := exec.LookPath("ibus-daemon"); err == nil {
		return true
	}
	_, err := os.Stat("/usr/share/ibus/component")
	return err == nil
}

// Install writes the component file and asks ibus-daemon to rescan.
func (p *LinuxPlatform) Install() error {
	data, err := ComponentXML(p.config)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(p.config.ComponentDir, 0755); err != nil {
		return fmt.Errorf("create component directory: %w", err)
	}
	if err := os.WriteFile(p.config.ComponentPath(), data, 0644); err != nil {
		return fmt.Errorf("write component: %w", err)
	}
	p.restart()
	return nil
}

// Uninstall removes the component file. A missing file is not an error.
func (p *LinuxPlatform) Uninstall() error {
	if err := os.Remove(p.config.ComponentPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove component: %w", err)
	}
	p.restart()
	return nil
}

func (p *LinuxPlatform) restart() {
	// ibus-daemon may not be running; the component is picked up on its
	// next start either way.
	p.run("restart")
}

func (p *LinuxPlatform) IsInstalled() bool {
	_, err := os.Stat(p.config.ComponentPath())
	return err == nil
}

func (p *LinuxPlatform) IsActive() bool {
	out, err := p.run("engine")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == p.config.EngineName
}

func (p *LinuxPlatform) Activate() error {
	if _, err := p.run("engine", p.config.EngineName); err != nil {
		return fmt.Errorf("select %s in your input source settings: %w", p.config.LongName, err)
	}
	return nil
}

var _ Platform = (*LinuxPlatform)(nil)
