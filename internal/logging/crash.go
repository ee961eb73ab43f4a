package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"keybridge/internal/config"
)

// CrashReport describes a recovered panic.
type CrashReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version,omitempty"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumGoroutine int               `json:"num_goroutine"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Component    string            `json:"component,omitempty"`
	Context      map[string]string `json:"context,omitempty"`
}

// CrashHandler recovers panics raised while handling host callbacks, writes
// a report to disk and logs it. A panic inside an input method would
// otherwise take every application's keyboard input down with it.
type CrashHandler struct {
	mu        sync.Mutex
	crashDir  string
	version   string
	component string
	log       *Logger
	onCrash   func(CrashReport)
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir is the directory to write crash reports to.
	CrashDir string

	// Version is the application version.
	Version string

	// Component is the component name.
	Component string

	// Logger receives a one-line summary per crash.
	Logger *Logger

	// OnCrash is called after a crash is recorded.
	OnCrash func(CrashReport)
}

// DefaultCrashDir returns the platform state directory's crashes folder.
func DefaultCrashDir() string {
	return filepath.Join(config.PlatformStateDir(), "crashes")
}

// NewCrashHandler creates a new CrashHandler.
func NewCrashHandler(cfg *CrashHandlerConfig) *CrashHandler {
	if cfg == nil {
		cfg = &CrashHandlerConfig{}
	}
	h := &CrashHandler{
		crashDir:  cfg.CrashDir,
		version:   cfg.Version,
		component: cfg.Component,
		log:       cfg.Logger,
		onCrash:   cfg.OnCrash,
	}
	if h.crashDir == "" {
		h.crashDir = DefaultCrashDir()
	}
	if h.log == nil {
		h.log = Default()
	}
	return h
}

// Recover runs fn and converts a panic into a crash report. It reports
// whether fn returned normally.
func (h *CrashHandler) Recover(contextInfo map[string]string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.HandlePanic(r, contextInfo)
			ok = false
		}
	}()
	fn()
	return true
}

// HandlePanic records a panic value.
func (h *CrashHandler) HandlePanic(panicValue any, contextInfo map[string]string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprint(panicValue),
		StackTrace:   string(debug.Stack()),
		Component:    h.component,
		Context:      contextInfo,
	}

	path, err := h.writeCrashDump(report)
	if err != nil {
		h.log.Error("recovered panic, crash report not written",
			"panic", report.PanicValue,
			"error", err,
		)
	} else {
		h.log.Error("recovered panic",
			"panic", report.PanicValue,
			"report", path,
		)
	}

	if h.onCrash != nil {
		h.onCrash(report)
	}
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash directory: %w", err)
	}

	name := fmt.Sprintf("crash-%s-%s.json",
		report.Component,
		report.Timestamp.Format("20060102-150405.000000000"))
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// CrashReports reads back the reports in the crash directory.
func (h *CrashHandler) CrashReports() ([]CrashReport, error) {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// CleanupOldCrashReports removes crash reports older than maxAge.
func (h *CrashHandler) CleanupOldCrashReports(maxAge time.Duration) error {
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
