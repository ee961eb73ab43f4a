package ime

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"

	"keybridge/internal/config"
)

// Platform registers keybridge with the desktop input method framework.
type Platform interface {
	// Name returns the framework name, e.g. "ibus".
	Name() string

	// Available reports whether the framework is present.
	Available() bool

	// Install registers the input method for the current user.
	Install() error

	// Uninstall removes the registration.
	Uninstall() error

	// IsInstalled reports whether the registration exists.
	IsInstalled() bool

	// IsActive reports whether keybridge is the active input method.
	IsActive() bool

	// Activate makes keybridge the active input method.
	Activate() error
}

// PlatformConfig describes the input method to the framework.
type PlatformConfig struct {
	// ExecPath is the engine binary the framework launches.
	ExecPath string

	// ComponentDir is where the component description is written.
	ComponentDir string

	BusName    string
	EngineName string
	LongName   string
	Language   string
	Layout     string
	Symbol     string
	Version    string
}

// PlatformConfigFromConfig fills a PlatformConfig from the [ibus] section.
// ExecPath defaults to the running executable.
func PlatformConfigFromConfig(c config.IBusConfig) PlatformConfig {
	exe, err := os.Executable()
	if err != nil {
		exe = "/usr/local/bin/keybridge-ibus"
	}
	return PlatformConfig{
		ExecPath:     exe,
		ComponentDir: defaultComponentDir(),
		BusName:      c.BusName,
		EngineName:   c.EngineName,
		LongName:     c.LongName,
		Language:     c.Language,
		Layout:       c.Layout,
		Symbol:       c.Symbol,
		Version:      "1.0",
	}
}

func defaultComponentDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "ibus", "component")
}

// ComponentPath is the file Install writes.
func (c PlatformConfig) ComponentPath() string {
	return filepath.Join(c.ComponentDir, c.EngineName+".xml")
}

type ibusComponent struct {
	XMLName     xml.Name     `xml:"component"`
	Name        string       `xml:"name"`
	Description string       `xml:"description"`
	Exec        string       `xml:"exec"`
	Version     string       `xml:"version"`
	Author      string       `xml:"author"`
	License     string       `xml:"license"`
	Textdomain  string       `xml:"textdomain"`
	Engines     []ibusEngine `xml:"engines>engine"`
}

type ibusEngine struct {
	Name        string `xml:"name"`
	Language    string `xml:"language"`
	License     string `xml:"license"`
	Author      string `xml:"author"`
	Layout      string `xml:"layout"`
	LongName    string `xml:"longname"`
	Description string `xml:"description"`
	Rank        int    `xml:"rank"`
	Symbol      string `xml:"symbol"`
}

// ComponentXML renders the IBus component description. IBus launches Exec
// with --ibus when the engine is first selected.
func ComponentXML(c PlatformConfig) ([]byte, error) {
	comp := ibusComponent{
		Name:        c.BusName,
		Description: c.LongName + " input method",
		Exec:        c.ExecPath + " --ibus",
		Version:     c.Version,
		Author:      "keybridge",
		License:     "MIT",
		Textdomain:  c.EngineName,
		Engines: []ibusEngine{{
			Name:        c.EngineName,
			Language:    c.Language,
			License:     "MIT",
			Author:      "keybridge",
			Layout:      c.Layout,
			LongName:    c.LongName,
			Description: "Configurable compose input method",
			Rank:        0,
			Symbol:      c.Symbol,
		}},
	}

	out, err := xml.MarshalIndent(comp, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal component: %w", err)
	}
	return append([]byte(xml.Header), append(out, '\n')...), nil
}
