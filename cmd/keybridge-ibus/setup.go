package main

import (
	"fmt"
	"sync"

	"keybridge/internal/config"
	"keybridge/internal/engine"
	"keybridge/internal/ime"
)

// setupSource hands each new input context an engine built from the current
// configuration. Reloads swap the compiled layout; contexts created earlier
// keep the one they started with.
type setupSource struct {
	mu         sync.RWMutex
	engineName string
	layout     *config.Layout
	attrs      ime.Attributes
	lastErr    error
}

func newSetupSource(cfg *config.Config) (*setupSource, error) {
	s := &setupSource{}
	if err := s.Update(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Update recompiles cfg. On error the previous setup stays in effect.
func (s *setupSource) Update(cfg *config.Config) error {
	layout, err := s.compile(cfg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if err != nil {
		return err
	}
	s.engineName = cfg.Engine.Name
	s.layout = layout
	s.attrs = ime.AttributesFromConfig(cfg.Preedit)
	return nil
}

func (s *setupSource) compile(cfg *config.Config) (*config.Layout, error) {
	layout, err := cfg.Engine.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile layout: %w", err)
	}
	if _, err := engine.New(cfg.Engine.Name, layout); err != nil {
		return nil, err
	}
	return layout, nil
}

// LastError returns the error of the most recent Update, if it failed.
func (s *setupSource) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Setup implements ime.SetupFunc.
func (s *setupSource) Setup() (ime.ContextSetup, error) {
	s.mu.RLock()
	name, layout, attrs := s.engineName, s.layout, s.attrs
	s.mu.RUnlock()

	eng, err := engine.New(name, layout)
	if err != nil {
		return ime.ContextSetup{}, err
	}
	return ime.ContextSetup{Engine: eng, Layout: layout, Attrs: attrs}, nil
}
