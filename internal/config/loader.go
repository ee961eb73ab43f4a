package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading, watching, and hot-reloading.
type Loader struct {
	path     string
	config   *Config
	mu       sync.RWMutex
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	ctx      context.Context
	cancel   context.CancelFunc
	errChan  chan error

	errMu  sync.Mutex
	closed bool
}

// NewLoader creates a new configuration loader.
func NewLoader(path string) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		path:    path,
		errChan: make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Load reads and parses the configuration file.
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := loadConfigFromFile(l.path)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	l.config = cfg
	return cfg, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// Watch starts watching the configuration file for changes.
// When changes are detected, the configuration is reloaded and
// registered callbacks are invoked.
func (l *Loader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	l.watcher = watcher

	// Editors replace files on save, so watch the directory.
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch directory: %w", err)
	}

	go l.watchLoop()

	return nil
}

// watchLoop handles file system events.
func (l *Loader) watchLoop() {
	var debounceTimer *time.Timer
	debounceDelay := 100 * time.Millisecond

	for {
		select {
		case <-l.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(l.path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDelay, l.reload)

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.reportError(err)
		}
	}
}

func (l *Loader) reportError(err error) {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.errChan <- err:
	default:
	}
}

// reload attempts to reload the configuration. A file that fails to parse
// or validate leaves the previous configuration in place.
func (l *Loader) reload() {
	if l.ctx.Err() != nil {
		return
	}
	newCfg, err := loadConfigFromFile(l.path)
	if err != nil {
		l.reportError(fmt.Errorf("reload config: %w", err))
		return
	}

	newCfg.ApplyEnvOverrides()

	if err := newCfg.Validate(); err != nil {
		l.reportError(fmt.Errorf("validate new config: %w", err))
		return
	}

	l.mu.Lock()
	l.config = newCfg
	callbacks := append([]func(*Config){}, l.onChange...)
	l.mu.Unlock()

	for _, cb := range callbacks {
		cb(newCfg)
	}
}

// OnChange registers a callback to be invoked when the configuration changes.
func (l *Loader) OnChange(cb func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, cb)
}

// Errors returns a channel for receiving errors that occur during watching.
// It is closed by Close.
func (l *Loader) Errors() <-chan error {
	return l.errChan
}

// Close stops the watcher and releases resources. It is safe to call more
// than once.
func (l *Loader) Close() error {
	l.cancel()

	l.errMu.Lock()
	if !l.closed {
		l.closed = true
		close(l.errChan)
	}
	l.errMu.Unlock()

	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// loadConfigFromFile reads and parses a config file based on its extension.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := Decode(filepath.Ext(path), data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode parses data in the format named by ext (".toml", ".json", ".yaml",
// ".yml"; anything else is auto-detected), checks it against the schema and
// decodes it over cfg. Values absent from data keep cfg's values.
func Decode(ext string, data []byte, cfg *Config) error {
	switch ext {
	case ".toml":
		return decodeTOML(data, cfg)
	case ".json":
		return decodeJSON(data, cfg)
	case ".yaml", ".yml":
		return decodeYAML(data, cfg)
	default:
		return autoDetectAndParse(data, cfg)
	}
}

func decodeTOML(data []byte, cfg *Config) error {
	doc := map[string]any{}
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return fmt.Errorf("decode TOML: %w", err)
	}
	if err := validateRaw(doc); err != nil {
		return err
	}
	resetListedTables(doc, cfg)
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return fmt.Errorf("decode TOML: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, cfg *Config) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	if err := validateRaw(doc); err != nil {
		return err
	}
	resetListedTables(doc, cfg)
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode YAML: %w", err)
	}
	if err := validateRaw(doc); err != nil {
		return err
	}
	resetListedTables(doc, cfg)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode YAML: %w", err)
	}
	return nil
}

func validateRaw(doc any) error {
	if doc == nil {
		doc = map[string]any{}
	}
	return ValidateDocument(doc)
}

// resetListedTables drops the default engine tables that the document
// redefines. Decoders reuse existing slice elements and would otherwise
// merge file entries with default ones field by field.
func resetListedTables(doc any, cfg *Config) {
	root, ok := doc.(map[string]any)
	if !ok {
		return
	}
	engine, ok := root["engine"].(map[string]any)
	if !ok {
		return
	}
	if _, ok := engine["toggle"]; ok {
		cfg.Engine.Toggle = nil
	}
	if _, ok := engine["clear_keys"]; ok {
		cfg.Engine.ClearKeys = nil
	}
	if _, ok := engine["keys"]; ok {
		cfg.Engine.Keys = nil
	}
	if _, ok := engine["compose"]; ok {
		cfg.Engine.Compose = nil
	}
}

// autoDetectAndParse attempts to parse the config in multiple formats.
func autoDetectAndParse(data []byte, cfg *Config) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return decodeJSON(data, cfg)
	}

	var probe map[string]any
	if _, err := toml.Decode(string(data), &probe); err == nil {
		return decodeTOML(data, cfg)
	}

	var yprobe any
	if err := yaml.Unmarshal(data, &yprobe); err == nil {
		return decodeYAML(data, cfg)
	}

	return fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

// LoadOrCreate loads the configuration from the specified path,
// creating a default configuration file if it doesn't exist.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		return cfg, true, nil
	}

	loader := NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return nil, false, err
	}

	return cfg, false, nil
}

// SaveConfig saves the configuration to a file.
func SaveConfig(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)

	switch filepath.Ext(path) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		var buf bytes.Buffer
		buf.WriteString("# keybridge configuration\n\n")
		err = toml.NewEncoder(&buf).Encode(cfg)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
