// Package health reports whether a keybridge daemon can serve input
// contexts.
//
// A Checker runs registered component checks concurrently, aggregates them
// into one status and exposes liveness, readiness and detail endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// CheckResult represents the result of a health check.
type CheckResult struct {
	Status      Status         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	LastChecked time.Time      `json:"last_checked"`
	Duration    time.Duration  `json:"duration_ns"`
	Error       string         `json:"error,omitempty"`
}

// Check performs one health check.
type Check func(ctx context.Context) CheckResult

// Component is a health-checkable part of the daemon.
type Component struct {
	Name     string
	Critical bool // failure makes the overall status unhealthy
	Check    Check
	Timeout  time.Duration
}

// DefaultTimeout bounds a check whose component sets none.
const DefaultTimeout = 5 * time.Second

// Checker manages health checks.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	results    map[string]CheckResult
	startTime  time.Time
	ready      bool
}

// NewChecker creates a Checker that is not ready yet.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]*Component),
		results:    make(map[string]CheckResult),
		startTime:  time.Now(),
	}
}

// Register adds a component. Its status is unknown until the first check.
func (c *Checker) Register(component *Component) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if component.Timeout == 0 {
		component.Timeout = DefaultTimeout
	}
	c.components[component.Name] = component
	c.results[component.Name] = CheckResult{Status: StatusUnknown}
}

// RegisterFunc registers a check function under name.
func (c *Checker) RegisterFunc(name string, critical bool, check Check) {
	c.Register(&Component{Name: name, Critical: critical, Check: check})
}

// SetReady sets the readiness state.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Check runs all registered checks concurrently and records their results.
func (c *Checker) Check(ctx context.Context) map[string]CheckResult {
	c.mu.RLock()
	components := make([]*Component, 0, len(c.components))
	for _, comp := range c.components {
		components = append(components, comp)
	}
	c.mu.RUnlock()

	results := make(map[string]CheckResult, len(components))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, comp := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(ctx, comp)

			mu.Lock()
			results[comp.Name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	c.mu.Lock()
	for name, res := range results {
		if _, ok := c.components[name]; ok {
			c.results[name] = res
		}
	}
	c.mu.Unlock()
	return results
}

// run executes one check with its timeout and panic recovery.
func run(ctx context.Context, comp *Component) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, comp.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan CheckResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- CheckResult{
					Status:  StatusUnhealthy,
					Message: "check panicked",
					Error:   fmt.Sprint(r),
				}
			}
		}()
		done <- comp.Check(checkCtx)
	}()

	var result CheckResult
	select {
	case result = <-done:
	case <-checkCtx.Done():
		result = CheckResult{
			Status:  StatusUnhealthy,
			Message: "check timed out",
			Error:   checkCtx.Err().Error(),
		}
	}
	result.LastChecked = start
	result.Duration = time.Since(start)
	return result
}

// OverallStatus aggregates the last results. An unhealthy critical
// component makes the whole daemon unhealthy; anything else failing only
// degrades it.
func (c *Checker) OverallStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.results))
	for name := range c.results {
		names = append(names, name)
	}
	sort.Strings(names)

	hasUnknown, hasDegraded := false, false
	for _, name := range names {
		comp := c.components[name]
		switch c.results[name].Status {
		case StatusUnhealthy:
			if comp.Critical {
				return StatusUnhealthy
			}
			hasDegraded = true
		case StatusDegraded:
			hasDegraded = true
		case StatusUnknown:
			if comp.Critical {
				hasUnknown = true
			}
		}
	}

	switch {
	case hasUnknown:
		return StatusUnknown
	case hasDegraded:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Response is the body of the detail endpoint.
type Response struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Uptime     string                 `json:"uptime"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Report runs all checks and returns the aggregated response.
func (c *Checker) Report(ctx context.Context) Response {
	components := c.Check(ctx)

	c.mu.RLock()
	ready := c.ready
	uptime := time.Since(c.startTime).Round(time.Second)
	c.mu.RUnlock()

	return Response{
		Status:     c.OverallStatus(),
		Ready:      ready,
		Uptime:     uptime.String(),
		Components: components,
		Timestamp:  time.Now(),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// LivenessHandler answers 200 while the process runs.
func (c *Checker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "alive"})
	})
}

// ReadinessHandler answers 503 until SetReady(true) and while a critical
// component is unhealthy.
func (c *Checker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready"})
			return
		}
		c.Check(r.Context())
		status := c.OverallStatus()
		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{"status": status, "ready": true})
	})
}

// HealthHandler returns the full report. Degraded still answers 200.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := c.Report(r.Context())
		code := http.StatusOK
		if resp.Status == StatusUnhealthy || resp.Status == StatusUnknown {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// Mount registers the three endpoints on mux.
func (c *Checker) Mount(mux *http.ServeMux) {
	mux.Handle("/livez", c.LivenessHandler())
	mux.Handle("/readyz", c.ReadinessHandler())
	mux.Handle("/healthz", c.HealthHandler())
}

// ContextCheck reports unhealthy once ctx is done. The IBus daemon uses it
// with the bus connection's context.
func ContextCheck(connCtx context.Context) Check {
	return func(context.Context) CheckResult {
		if err := connCtx.Err(); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: "connection closed", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy, Message: "connected"}
	}
}

// ErrorCheck degrades while lastErr reports an error, for failures the
// daemon survives such as a rejected config reload.
func ErrorCheck(lastErr func() error) Check {
	return func(context.Context) CheckResult {
		if err := lastErr(); err != nil {
			return CheckResult{Status: StatusDegraded, Message: "last attempt failed", Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// CountCheck degrades once count exceeds zero, reporting the count.
func CountCheck(what string, count func() uint64) Check {
	return func(context.Context) CheckResult {
		n := count()
		res := CheckResult{Status: StatusHealthy, Details: map[string]any{what: n}}
		if n > 0 {
			res.Status = StatusDegraded
			res.Message = fmt.Sprintf("%d %s", n, what)
		}
		return res
	}
}
