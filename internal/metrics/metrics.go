// Package metrics provides Prometheus-compatible metrics for keybridge.
//
// Features:
//   - Counters, gauges and histograms, optionally labeled
//   - Gauges computed at scrape time
//   - Prometheus text and JSON output
//   - Optional HTTP endpoint for scraping
//   - Thread-safe operations
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"keybridge/internal/logging"
)

// MetricType represents the type of metric.
type MetricType int

const (
	// TypeCounter is a monotonically increasing counter.
	TypeCounter MetricType = iota
	// TypeGauge is a value that can go up and down.
	TypeGauge
	// TypeHistogram is a distribution of values.
	TypeHistogram
)

// String returns the string representation of the metric type.
func (t MetricType) String() string {
	switch t {
	case TypeCounter:
		return "counter"
	case TypeGauge:
		return "gauge"
	case TypeHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Labels represents metric labels.
type Labels map[string]string

// String renders labels in Prometheus form, sorted by key.
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}

	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(l))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s=%q`, k, l[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// with returns labels plus one extra pair, rendered for a histogram series.
func (l Labels) with(key, value string) string {
	merged := make(Labels, len(l)+1)
	for k, v := range l {
		merged[k] = v
	}
	merged[key] = value
	return merged.String()
}

// Counter is a monotonically increasing counter.
type Counter struct {
	value atomic.Uint64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add adds the given value to the counter.
func (c *Counter) Add(v uint64) {
	c.value.Add(v)
}

// Value returns the current value.
func (c *Counter) Value() uint64 {
	return c.value.Load()
}

// Gauge is a value that can go up and down.
type Gauge struct {
	value atomic.Int64
	fn    func() int64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) {
	g.value.Store(v)
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.value.Add(1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.value.Add(-1)
}

// Value returns the current value. Gauges registered with a function
// report its result.
func (g *Gauge) Value() int64 {
	if g.fn != nil {
		return g.fn()
	}
	return g.value.Load()
}

// Histogram tracks the distribution of values.
type Histogram struct {
	buckets []float64

	mu     sync.Mutex
	counts []uint64 // per bucket, last is +Inf
	sum    float64
	count  uint64
}

// DurationBuckets are buckets for duration histograms (in seconds).
var DurationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// LatencyBuckets suit per-key processing times (in seconds).
var LatencyBuckets = []float64{
	0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05,
}

func newHistogram(buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DurationBuckets
	}
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{
		buckets: sorted,
		counts:  make([]uint64, len(sorted)+1),
	}
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++
	// First bucket whose upper bound is >= v.
	h.counts[sort.SearchFloat64s(h.buckets, v)]++
}

// ObserveDuration records a duration in seconds.
func (h *Histogram) ObserveDuration(d time.Duration) {
	h.Observe(d.Seconds())
}

// Count returns the count of observations.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Mean returns the mean of observed values.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// Cumulative returns the cumulative count at each bucket bound, ending with
// +Inf.
func (h *Histogram) Cumulative() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint64, len(h.counts))
	var total uint64
	for i, c := range h.counts {
		total += c
		out[i] = total
	}
	return out
}

// series is one labeled instance within a family.
type series struct {
	labels    Labels
	counter   *Counter
	gauge     *Gauge
	histogram *Histogram
}

type family struct {
	name   string
	help   string
	typ    MetricType
	series map[string]*series
}

// Registry holds all registered metrics.
type Registry struct {
	mu        sync.RWMutex
	namespace string
	families  map[string]*family
}

// NewRegistry creates a new Registry. Metric names are prefixed with
// namespace.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace: namespace,
		families:  make(map[string]*family),
	}
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// lookup returns the series for name and labels, creating it with mk.
// Registering one name with two types is a programming error.
func (r *Registry) lookup(name, help string, typ MetricType, labels Labels, mk func() *series) *series {
	r.mu.Lock()
	defer r.mu.Unlock()

	full := r.fullName(name)
	f, ok := r.families[full]
	if !ok {
		f = &family{name: full, help: help, typ: typ, series: make(map[string]*series)}
		r.families[full] = f
	} else if f.typ != typ {
		panic(fmt.Sprintf("metrics: %s registered as %s, not %s", full, f.typ, typ))
	}

	key := labels.String()
	if s, ok := f.series[key]; ok {
		return s
	}
	s := mk()
	s.labels = labels
	f.series[key] = s
	return s
}

// RegisterCounter registers a counter, or returns the existing one with the
// same name and labels.
func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	return r.lookup(name, help, TypeCounter, labels, func() *series {
		return &series{counter: &Counter{}}
	}).counter
}

// RegisterGauge registers a gauge.
func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	return r.lookup(name, help, TypeGauge, labels, func() *series {
		return &series{gauge: &Gauge{}}
	}).gauge
}

// RegisterGaugeFunc registers a gauge whose value is fn's result at read
// time.
func (r *Registry) RegisterGaugeFunc(name, help string, labels Labels, fn func() int64) *Gauge {
	return r.lookup(name, help, TypeGauge, labels, func() *series {
		return &series{gauge: &Gauge{fn: fn}}
	}).gauge
}

// RegisterHistogram registers a histogram. Nil buckets means
// DurationBuckets.
func (r *Registry) RegisterHistogram(name, help string, labels Labels, buckets []float64) *Histogram {
	return r.lookup(name, help, TypeHistogram, labels, func() *series {
		return &series{histogram: newHistogram(buckets)}
	}).histogram
}

// sorted returns the families in name order. Callers hold r.mu.
func (r *Registry) sorted() []*family {
	fams := make([]*family, 0, len(r.families))
	for _, f := range r.families {
		fams = append(fams, f)
	}
	sort.Slice(fams, func(i, j int) bool { return fams[i].name < fams[j].name })
	return fams
}

func (f *family) keys() []string {
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WritePrometheus writes metrics in Prometheus text format.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, f := range r.sorted() {
		fmt.Fprintf(&b, "# HELP %s %s\n", f.name, f.help)
		fmt.Fprintf(&b, "# TYPE %s %s\n", f.name, f.typ)
		for _, key := range f.keys() {
			s := f.series[key]
			switch f.typ {
			case TypeCounter:
				fmt.Fprintf(&b, "%s%s %d\n", f.name, key, s.counter.Value())
			case TypeGauge:
				fmt.Fprintf(&b, "%s%s %d\n", f.name, key, s.gauge.Value())
			case TypeHistogram:
				h := s.histogram
				cum := h.Cumulative()
				for i, bound := range h.buckets {
					fmt.Fprintf(&b, "%s_bucket%s %d\n", f.name, s.labels.with("le", fmt.Sprintf("%g", bound)), cum[i])
				}
				fmt.Fprintf(&b, "%s_bucket%s %d\n", f.name, s.labels.with("le", "+Inf"), cum[len(cum)-1])
				h.mu.Lock()
				fmt.Fprintf(&b, "%s_sum%s %g\n", f.name, key, h.sum)
				fmt.Fprintf(&b, "%s_count%s %d\n", f.name, key, h.count)
				h.mu.Unlock()
			}
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Snapshot returns the current value of every series, keyed by name plus
// labels. Histograms contribute _count and _mean entries.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]any)
	for _, f := range r.families {
		for key, s := range f.series {
			switch f.typ {
			case TypeCounter:
				snap[f.name+key] = s.counter.Value()
			case TypeGauge:
				snap[f.name+key] = s.gauge.Value()
			case TypeHistogram:
				snap[f.name+"_count"+key] = s.histogram.Count()
				snap[f.name+"_mean"+key] = s.histogram.Mean()
			}
		}
	}
	return snap
}

// WriteJSON writes the snapshot as indented JSON.
func (r *Registry) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.Snapshot())
}

// HTTPHandler returns an HTTP handler for metrics. Clients that accept
// application/json get the snapshot; everyone else gets Prometheus text.
func (r *Registry) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.Contains(req.Header.Get("Accept"), "application/json") {
			w.Header().Set("Content-Type", "application/json")
			r.WriteJSON(w)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.WritePrometheus(w)
	})
}

// Mount registers the metrics handler at /metrics on mux.
func (r *Registry) Mount(mux *http.ServeMux) {
	mux.Handle("/metrics", r.HTTPHandler())
}

// Serve runs an HTTP server for h on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler, log *logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	return serve(ctx, ln, h, log)
}

func serve(ctx context.Context, ln net.Listener, h http.Handler, log *logging.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics serve: %w", err)
	}
	return nil
}
