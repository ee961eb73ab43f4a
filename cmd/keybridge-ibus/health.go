package main

import (
	"context"

	"keybridge/internal/health"
	"keybridge/internal/metrics"
)

// newChecker wires the daemon's health components: the bus connection is
// critical, while rejected reloads and recovered crashes only degrade.
func newChecker(bus context.Context, stats *metrics.KeybridgeMetrics, source *setupSource) *health.Checker {
	c := health.NewChecker()
	c.RegisterFunc("ibus", true, health.ContextCheck(bus))
	c.RegisterFunc("config", false, health.ErrorCheck(source.LastError))
	c.RegisterFunc("engine", false, health.CountCheck("crashes", stats.Crashes.Value))
	return c
}
