package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if cfg.Version != Version {
		t.Errorf("expected version %d, got %d", Version, cfg.Version)
	}
	if cfg.Engine.Name != "compose" {
		t.Errorf("expected compose engine, got %q", cfg.Engine.Name)
	}
	if !cfg.Engine.StartEnabled {
		t.Error("expected engine to start enabled")
	}
	if cfg.Preedit.Underline != "single" {
		t.Errorf("expected single underline, got %q", cfg.Preedit.Underline)
	}
	if !strings.Contains(cfg.Logging.FilePath, "keybridge") {
		t.Errorf("log path should contain keybridge: %s", cfg.Logging.FilePath)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.HasSuffix(path, "config.toml") {
		t.Errorf("expected path ending with config.toml, got %s", path)
	}
	if !strings.Contains(path, "keybridge") {
		t.Errorf("config path should contain keybridge: %s", path)
	}
}

func TestKeybridgeDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KEYBRIDGE_CONFIG_DIR", dir)

	if got := KeybridgeDir(); got != dir {
		t.Errorf("expected %s, got %s", dir, got)
	}
	if got := ConfigPath(); got != filepath.Join(dir, "config.toml") {
		t.Errorf("unexpected config path %s", got)
	}
}

func TestLoadNonexistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.Name != "compose" {
		t.Errorf("expected defaults, got engine %q", cfg.Engine.Name)
	}
}

func TestLoadValidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	content := `
version = 1

[engine]
name = "compose"
start_enabled = false
clear_keys = [9]

[[engine.toggle]]
code = 108

[[engine.keys]]
code = 38
char = "a"
shift_char = "A"

[[engine.keys]]
code = 48
char = "'"

[[engine.compose]]
sequence = "'a"
result = "á"

[preedit]
underline = "double"
foreground = "#ff0000"

[logging]
level = "debug"
output = "stderr"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.StartEnabled {
		t.Error("expected start_enabled = false")
	}
	if len(cfg.Engine.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(cfg.Engine.Keys))
	}
	if len(cfg.Engine.Toggle) != 1 || cfg.Engine.Toggle[0].Code != 108 {
		t.Errorf("unexpected toggle keys: %+v", cfg.Engine.Toggle)
	}
	if cfg.Preedit.Underline != "double" {
		t.Errorf("expected double underline, got %q", cfg.Preedit.Underline)
	}
	if rgb, ok := cfg.Preedit.ForegroundRGB(); !ok || rgb != 0xff0000 {
		t.Errorf("expected foreground 0xff0000, got %#x (%v)", rgb, ok)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Logging.Level)
	}
}

func TestLoadPartialConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"warn\"\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected warn, got %q", cfg.Logging.Level)
	}
	if len(cfg.Engine.Keys) != len(DefaultKeymap()) {
		t.Errorf("expected default keymap to survive, got %d keys", len(cfg.Engine.Keys))
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte("this is not [valid toml"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestValidateInvalidEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Name = "hangul2"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "engine.name") {
		t.Errorf("error should name engine.name: %v", err)
	}
}

func TestValidateBadLogging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	cfg.Logging.Output = "file"
	cfg.Logging.FilePath = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Errorf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}
}

func TestValidateBadColor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Preedit.Background = "red"

	if err := cfg.Validate(); err == nil {
		t.Error("expected error for non-hex color")
	}
}

func TestValidateMetricsListen(t *testing.T) {
	for _, listen := range []string{"", "127.0.0.1:9464", ":9464"} {
		cfg := DefaultConfig()
		cfg.Metrics.Listen = listen
		if err := cfg.Validate(); err != nil {
			t.Errorf("listen %q: unexpected error: %v", listen, err)
		}
	}
	for _, listen := range []string{"9464", "localhost", "localhost:"} {
		cfg := DefaultConfig()
		cfg.Metrics.Listen = listen
		if err := cfg.Validate(); err == nil {
			t.Errorf("listen %q: expected error", listen)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEYBRIDGE_METRICS_LISTEN", "127.0.0.1:9000")
	t.Setenv("KEYBRIDGE_ENGINE", "passthrough")
	t.Setenv("KEYBRIDGE_LOG_LEVEL", "error")
	t.Setenv("KEYBRIDGE_START_ENABLED", "false")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Engine.Name != "passthrough" {
		t.Errorf("expected passthrough, got %q", cfg.Engine.Name)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("expected error level, got %q", cfg.Logging.Level)
	}
	if cfg.Engine.StartEnabled {
		t.Error("expected start_enabled overridden to false")
	}
	if cfg.Metrics.Listen != "127.0.0.1:9000" {
		t.Errorf("expected metrics listen override, got %q", cfg.Metrics.Listen)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.Engine.Keys[0].Char = "x"
	clone.Engine.ClearKeys[0] = 99

	if cfg.Engine.Keys[0].Char == "x" {
		t.Error("clone shares keymap with original")
	}
	if cfg.Engine.ClearKeys[0] == 99 {
		t.Error("clone shares clear keys with original")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Logging.FilePath = filepath.Join(dir, "nested", "logs", "keybridge.log")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "nested", "logs")); err != nil {
		t.Errorf("log directory not created: %v", err)
	}
}

func TestDefaultKeymapCodes(t *testing.T) {
	want := map[uint16]string{
		10: "1",
		24: "q",
		38: "a",
		48: "'",
		52: "z",
		61: "/",
		65: " ",
	}

	got := make(map[uint16]string)
	for _, k := range DefaultKeymap() {
		got[k.Code] = k.Char
	}
	for code, ch := range want {
		if got[code] != ch {
			t.Errorf("code %d: expected %q, got %q", code, ch, got[code])
		}
	}
}
