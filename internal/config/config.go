// Package config handles configuration loading, validation, and management for keybridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete keybridge configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Engine selects and parameterizes the key-processing engine.
	Engine EngineConfig `toml:"engine" json:"engine" yaml:"engine"`

	// Preedit controls how uncommitted text is styled by the host.
	Preedit PreeditConfig `toml:"preedit" json:"preedit" yaml:"preedit"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IBus registration settings.
	IBus IBusConfig `toml:"ibus" json:"ibus" yaml:"ibus"`

	// Metrics endpoint settings.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// EngineConfig holds the engine selection and its data tables.
type EngineConfig struct {
	// Name is the engine implementation: "compose" or "passthrough".
	Name string `toml:"name" json:"name" yaml:"name"`

	// StartEnabled sets the input mode of a fresh engine.
	StartEnabled bool `toml:"start_enabled" json:"start_enabled" yaml:"start_enabled"`

	// Toggle lists the hotkeys that switch the input mode.
	Toggle []Hotkey `toml:"toggle" json:"toggle" yaml:"toggle"`

	// ClearKeys are scan codes that discard a pending composition.
	ClearKeys []uint16 `toml:"clear_keys" json:"clear_keys" yaml:"clear_keys"`

	// Keys maps scan codes to characters.
	Keys []KeyBinding `toml:"keys" json:"keys" yaml:"keys"`

	// Compose lists two-key sequences and what they produce.
	Compose []ComposeRule `toml:"compose" json:"compose" yaml:"compose"`
}

// Hotkey is a scan code plus the exact modifier combination that must be held.
type Hotkey struct {
	Code    uint16 `toml:"code" json:"code" yaml:"code"`
	Control bool   `toml:"control" json:"control" yaml:"control"`
	Shift   bool   `toml:"shift" json:"shift" yaml:"shift"`
	Super   bool   `toml:"super" json:"super" yaml:"super"`
}

// KeyBinding maps one scan code to the character it types.
type KeyBinding struct {
	Code uint16 `toml:"code" json:"code" yaml:"code"`

	// Char is typed without Shift.
	Char string `toml:"char" json:"char" yaml:"char"`

	// ShiftChar is typed with Shift. Empty means Char.
	ShiftChar string `toml:"shift_char,omitempty" json:"shift_char,omitempty" yaml:"shift_char,omitempty"`
}

// ComposeRule turns the two-character Sequence into Result.
type ComposeRule struct {
	Sequence string `toml:"sequence" json:"sequence" yaml:"sequence"`
	Result   string `toml:"result" json:"result" yaml:"result"`
}

// PreeditConfig holds preedit styling.
type PreeditConfig struct {
	// Underline is "none", "single", "double", "low" or "error".
	Underline string `toml:"underline" json:"underline" yaml:"underline"`

	// Foreground is an optional "#rrggbb" text color.
	Foreground string `toml:"foreground" json:"foreground" yaml:"foreground"`

	// Background is an optional "#rrggbb" background color.
	Background string `toml:"background" json:"background" yaml:"background"`
}

// ForegroundRGB returns the foreground color as 0xRRGGBB.
func (p PreeditConfig) ForegroundRGB() (uint32, bool) {
	return parseColor(p.Foreground)
}

// BackgroundRGB returns the background color as 0xRRGGBB.
func (p PreeditConfig) BackgroundRGB() (uint32, bool) {
	return parseColor(p.Background)
}

func parseColor(s string) (uint32, bool) {
	if len(s) != 7 || s[0] != '#' {
		return 0, false
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file" or "both").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB is the maximum log file size before rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of old log files to keep.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`

	// MaxAgeDays is the maximum age of log files in days.
	MaxAgeDays int `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`

	// Compress determines whether to compress rotated logs.
	Compress bool `toml:"compress" json:"compress" yaml:"compress"`
}

// IBusConfig holds the IBus component description.
type IBusConfig struct {
	// BusName is the well-known D-Bus name requested by the engine process.
	BusName string `toml:"bus_name" json:"bus_name" yaml:"bus_name"`

	// EngineName is the engine name IBus passes to CreateEngine.
	EngineName string `toml:"engine_name" json:"engine_name" yaml:"engine_name"`

	// LongName is shown in input source pickers.
	LongName string `toml:"long_name" json:"long_name" yaml:"long_name"`

	// Language is the ISO 639 code the engine is listed under.
	Language string `toml:"language" json:"language" yaml:"language"`

	// Layout is the XKB layout IBus activates alongside the engine.
	Layout string `toml:"layout" json:"layout" yaml:"layout"`

	// Symbol is the short indicator label.
	Symbol string `toml:"symbol" json:"symbol" yaml:"symbol"`

	// Address overrides bus address discovery.
	Address string `toml:"address" json:"address" yaml:"address"`
}

// MetricsConfig holds the metrics endpoint configuration.
type MetricsConfig struct {
	// Listen is the host:port serving /metrics and the health endpoints.
	// Empty disables the HTTP server.
	Listen string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Engine: EngineConfig{
			Name:         "compose",
			StartEnabled: true,
			Toggle:       DefaultToggleKeys(),
			ClearKeys:    DefaultClearKeys(),
			Keys:         DefaultKeymap(),
			Compose:      DefaultComposeRules(),
		},
		Preedit: PreeditConfig{
			Underline: "single",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(PlatformStateDir(), "keybridge.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		IBus: IBusConfig{
			BusName:    "org.freedesktop.IBus.Keybridge",
			EngineName: "keybridge",
			LongName:   "Keybridge",
			Language:   "other",
			Layout:     "us",
			Symbol:     "K",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(KeybridgeDir(), "config.toml")
}

// KeybridgeDir returns the configuration directory.
// KEYBRIDGE_CONFIG_DIR overrides the platform default.
func KeybridgeDir() string {
	if envDir := os.Getenv("KEYBRIDGE_CONFIG_DIR"); envDir != "" {
		return envDir
	}
	return PlatformConfigDir()
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns the default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	if c.Logging.FilePath == "" {
		return nil
	}
	dir := filepath.Dir(c.Logging.FilePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables are prefixed with KEYBRIDGE_ and use underscores.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("KEYBRIDGE_ENGINE"); v != "" {
		c.Engine.Name = v
	}
	if v := os.Getenv("KEYBRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("KEYBRIDGE_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}
	if v := os.Getenv("KEYBRIDGE_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("IBUS_ADDRESS"); v != "" && c.IBus.Address == "" {
		c.IBus.Address = v
	}
	if v := os.Getenv("KEYBRIDGE_METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
	if v := os.Getenv("KEYBRIDGE_START_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Engine.StartEnabled = b
		}
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.Engine.Toggle = append([]Hotkey(nil), c.Engine.Toggle...)
	clone.Engine.ClearKeys = append([]uint16(nil), c.Engine.ClearKeys...)
	clone.Engine.Keys = append([]KeyBinding(nil), c.Engine.Keys...)
	clone.Engine.Compose = append([]ComposeRule(nil), c.Engine.Compose...)

	return &clone
}
