// keybridge-term runs the input method inside a terminal.
//
// It hosts two text fields. Typing goes through the configured engine the
// same way it does under IBus, so layouts and compose tables can be tried
// without installing anything:
//
//	Tab      switch fields (flushes the composition into the field left)
//	F2       Hangul key (input mode toggle)
//	Ctrl+Q   quit
//
// Usage:
//
//	keybridge-term [--config path] [--engine name]
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"

	"keybridge/internal/config"
	"keybridge/internal/engine"
	"keybridge/internal/ime"
	"keybridge/internal/logging"
	"keybridge/internal/metrics"
)

var (
	configPath = flag.String("config", "", "path to config file")
	engineName = flag.String("engine", "", "engine to run (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *engineName != "" {
		cfg.Engine.Name = *engineName
	}

	// The screen owns the terminal, so logs must go to a file.
	logCfg := logging.FromConfig(cfg.Logging)
	logCfg.Output = "file"
	logCfg.Component = "keybridge-term"
	log, err := logging.New(logCfg)
	if err != nil {
		log = logging.Discard()
	}
	defer log.Close()
	logging.SetDefault(log)

	a, err := newApp(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	screen.EnableFocus()

	a.run(screen)
	screen.Fini()

	for _, f := range a.fields {
		fmt.Printf("%s: %s\n", f.label, f)
	}
}

// app is the terminal host: a session plus the fields it can focus.
type app struct {
	session *ime.Session
	targets *ime.TargetTable
	keys    *keyMapper
	log     *logging.Logger
	stats   *metrics.KeybridgeMetrics

	fields  []*field
	ids     []ime.FocusID
	current int
	quit    bool
}

func newApp(cfg *config.Config, log *logging.Logger) (*app, error) {
	layout, err := cfg.Engine.Compile()
	if err != nil {
		return nil, fmt.Errorf("compile layout: %w", err)
	}
	eng, err := engine.New(cfg.Engine.Name, layout)
	if err != nil {
		return nil, err
	}

	a := &app{
		targets: ime.NewTargetTable(),
		keys:    newKeyMapper(cfg.Engine.Keys),
		log:     log,
		stats:   metrics.NewKeybridgeMetrics(metrics.NewRegistry(metrics.Namespace)),
		fields:  []*field{{label: "One"}, {label: "Two"}},
	}
	for _, f := range a.fields {
		a.ids = append(a.ids, a.targets.Register(f))
	}
	a.session = ime.NewSession(eng, layout, a.targets,
		ime.WithAttributes(ime.AttributesFromConfig(cfg.Preedit)),
		ime.WithLogger(log.WithComponent("session")),
		ime.WithObserver(a.stats),
	)
	a.session.SetFocus(a.ids[a.current])
	return a, nil
}

// handleKey routes one terminal key event.
func (a *app) handleKey(ev *tcell.EventKey) {
	if isCtrl(ev, 'q') || isCtrl(ev, 'c') {
		a.session.SetFocus(ime.NoFocus)
		a.quit = true
		return
	}
	switch ev.Key() {
	case tcell.KeyTab, tcell.KeyBacktab:
		a.session.SetFocus(ime.NoFocus)
		a.current = (a.current + 1) % len(a.fields)
		a.session.SetFocus(a.ids[a.current])
		return
	}

	raw, ok := a.keys.translate(ev)
	if !ok {
		a.log.Debug("no scan code for key", "key", ev.Name())
	} else if a.session.FilterEvent(raw) {
		return
	}
	if a.session.Focus() != ime.NoFocus {
		a.fields[a.current].fallback(ev)
	}
}

// handleFocus follows the terminal window gaining or losing focus.
func (a *app) handleFocus(focused bool) {
	if focused {
		a.session.SetFocus(a.ids[a.current])
		return
	}
	a.session.SetFocus(ime.NoFocus)
}

func (a *app) draw(screen tcell.Screen) {
	screen.Clear()
	cursorX, cursorY := 0, 0
	for i, f := range a.fields {
		x := f.draw(screen, i*2, i == a.current)
		if i == a.current {
			cursorX, cursorY = x, i*2
		}
	}
	dim := tcell.StyleDefault.Dim(true)
	drawString(screen, 0, len(a.fields)*2, "Tab: switch  F2: toggle  Ctrl+Q: quit", dim)
	drawString(screen, 0, len(a.fields)*2+1, a.stats.Summary(), dim)
	screen.ShowCursor(cursorX, cursorY)
	screen.Show()
}

func (a *app) run(screen tcell.Screen) {
	a.draw(screen)
	for !a.quit {
		switch ev := screen.PollEvent().(type) {
		case *tcell.EventKey:
			a.handleKey(ev)
		case *tcell.EventFocus:
			a.handleFocus(ev.Focused)
		case *tcell.EventResize:
			screen.Sync()
		case nil:
			return
		}
		a.draw(screen)
	}
}
