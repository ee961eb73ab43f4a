package metrics

import (
	"strconv"
	"time"

	"keybridge/internal/ime"
)

// Namespace prefixes every keybridge metric name.
const Namespace = "keybridge"

// unknownResult labels key presses whose result tag is outside the known set.
const unknownResult = "unknown"

// KeybridgeMetrics contains the input pipeline metrics. It implements
// ime.Observer so a session can report into it directly.
type KeybridgeMetrics struct {
	registry *Registry

	// Key handling
	keyPresses map[ime.ResultType]*Counter
	unknown    *Counter
	Consumed   *Counter
	KeyLatency *Histogram

	// Focus loss
	BlurFlushes *Counter
	BlurCommits *Counter

	// Process health
	Crashes       *Counter
	Reloads       *Counter
	ReloadErrors  *Counter
	UptimeSeconds *Gauge

	startTime time.Time
}

var _ ime.Observer = (*KeybridgeMetrics)(nil)

// NewKeybridgeMetrics registers the keybridge metrics in r.
func NewKeybridgeMetrics(r *Registry) *KeybridgeMetrics {
	m := &KeybridgeMetrics{
		registry:   r,
		keyPresses: make(map[ime.ResultType]*Counter),
		startTime:  time.Now(),
	}

	const keyHelp = "Key presses handled, by engine result"
	for t := ime.TypeBypass; t <= ime.TypeCommitBypass; t++ {
		m.keyPresses[t] = r.RegisterCounter("key_presses_total", keyHelp, Labels{"result": t.String()})
	}
	m.unknown = r.RegisterCounter("key_presses_total", keyHelp, Labels{"result": unknownResult})

	m.Consumed = r.RegisterCounter("keys_consumed_total",
		"Key presses withheld from the application", nil)
	m.KeyLatency = r.RegisterHistogram("key_latency_seconds",
		"Time spent in the engine per key press", nil, LatencyBuckets)

	m.BlurFlushes = r.RegisterCounter("blur_flushes_total",
		"Focus losses that flushed the engine", nil)
	m.BlurCommits = r.RegisterCounter("blur_commits_total",
		"Focus losses that committed a pending character", nil)

	m.Crashes = r.RegisterCounter("crashes_total",
		"Recovered panics in engine callbacks", nil)
	m.Reloads = r.RegisterCounter("config_reloads_total",
		"Configuration reloads applied", nil)
	m.ReloadErrors = r.RegisterCounter("config_reload_errors_total",
		"Configuration reloads rejected", nil)
	m.UptimeSeconds = r.RegisterGaugeFunc("uptime_seconds",
		"Seconds since the process started", nil, func() int64 {
			return int64(time.Since(m.startTime).Seconds())
		})

	return m
}

// Registry returns the registry the metrics live in.
func (m *KeybridgeMetrics) Registry() *Registry {
	return m.registry
}

// ObserveKey records one handled key press.
func (m *KeybridgeMetrics) ObserveKey(t ime.ResultType, consumed bool, elapsed time.Duration) {
	if c, ok := m.keyPresses[t]; ok {
		c.Inc()
	} else {
		m.unknown.Inc()
	}
	if consumed {
		m.Consumed.Inc()
	}
	m.KeyLatency.ObserveDuration(elapsed)
}

// ObserveFlush records a focus-loss flush.
func (m *KeybridgeMetrics) ObserveFlush(committed bool) {
	m.BlurFlushes.Inc()
	if committed {
		m.BlurCommits.Inc()
	}
}

// KeyPresses returns the number of key presses that produced t.
func (m *KeybridgeMetrics) KeyPresses(t ime.ResultType) uint64 {
	if c, ok := m.keyPresses[t]; ok {
		return c.Value()
	}
	return m.unknown.Value()
}

// TotalKeyPresses sums key presses across all results.
func (m *KeybridgeMetrics) TotalKeyPresses() uint64 {
	total := m.unknown.Value()
	for _, c := range m.keyPresses {
		total += c.Value()
	}
	return total
}

// RecordReload counts a configuration reload attempt.
func (m *KeybridgeMetrics) RecordReload(err error) {
	if err != nil {
		m.ReloadErrors.Inc()
		return
	}
	m.Reloads.Inc()
}

// RegisterContexts exposes the live input context count.
func (m *KeybridgeMetrics) RegisterContexts(count func() int) {
	m.registry.RegisterGaugeFunc("input_contexts",
		"Input contexts currently served", nil, func() int64 {
			return int64(count())
		})
}

// Summary is a one-line digest for status displays.
func (m *KeybridgeMetrics) Summary() string {
	return "keys " + strconv.FormatUint(m.TotalKeyPresses(), 10) +
		"  consumed " + strconv.FormatUint(m.Consumed.Value(), 10) +
		"  blur commits " + strconv.FormatUint(m.BlurCommits.Value(), 10)
}
