//go:build linux

// keybridge-ibus is the IBus input method engine.
//
// IBus starts it with --ibus once the engine is selected. It connects to
// the IBus daemon over D-Bus, exports an engine factory and runs one input
// session per input context.
//
// Installation:
//  1. Copy the binary to /usr/local/bin/keybridge-ibus
//  2. keybridge-ibus --install (writes ~/.local/share/ibus/component/keybridge.xml)
//  3. Enable via ibus-setup or GNOME Settings > Keyboard > Input Sources
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"keybridge/internal/config"
	"keybridge/internal/ime"
	"keybridge/internal/logging"
	"keybridge/internal/metrics"
)

// Version is set at build time.
var Version = "dev"

func main() {
	installFlag := flag.Bool("install", false, "Install IBus component")
	uninstallFlag := flag.Bool("uninstall", false, "Uninstall IBus component")
	xmlFlag := flag.Bool("xml", false, "Print the IBus component description")
	configPath := flag.String("config", "", "path to config file")
	flag.Bool("ibus", false, "Started by ibus-daemon")
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.FindConfigFile()
	}

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	platform := ime.PlatformConfigFromConfig(cfg.IBus)
	platform.Version = Version

	switch {
	case *xmlFlag:
		data, err := ime.ComponentXML(platform)
		if err != nil {
			log.Fatalf("Failed to render component: %v", err)
		}
		os.Stdout.Write(data)
		return
	case *installFlag:
		if err := ime.NewPlatform(platform).Install(); err != nil {
			log.Fatalf("Failed to install: %v", err)
		}
		fmt.Printf("Installed %s\n", platform.ComponentPath())
		return
	case *uninstallFlag:
		if err := ime.NewPlatform(platform).Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall: %v", err)
		}
		fmt.Println("Uninstalled successfully.")
		return
	}

	if err := run(loader, cfg); err != nil {
		log.Fatalf("keybridge-ibus: %v", err)
	}
}

func run(loader *config.Loader, cfg *config.Config) error {
	defer loader.Close()

	if err := cfg.EnsureDirectories(); err != nil {
		log.Printf("Warning: %v", err)
	}

	logCfg := logging.FromConfig(cfg.Logging)
	logCfg.Component = "keybridge-ibus"
	logger, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	stats := metrics.NewKeybridgeMetrics(metrics.NewRegistry(metrics.Namespace))

	crash := logging.NewCrashHandler(&logging.CrashHandlerConfig{
		Version:   Version,
		Component: "keybridge-ibus",
		Logger:    logger,
		OnCrash:   func(logging.CrashReport) { stats.Crashes.Inc() },
	})
	if err := crash.CleanupOldCrashReports(30 * 24 * time.Hour); err != nil {
		logger.Warn("crash report cleanup", "error", err)
	}

	source, err := newSetupSource(cfg)
	if err != nil {
		return err
	}

	loader.OnChange(func(c *config.Config) {
		err := source.Update(c)
		stats.RecordReload(err)
		if err != nil {
			logger.Warn("config reload rejected", "error", err)
			return
		}
		logger.Info("config reloaded", "engine", c.Engine.Name)
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	}
	go func() {
		for err := range loader.Errors() {
			logger.Warn("config watch", "error", err)
		}
	}()

	conn, err := ime.ConnectIBus(cfg.IBus.Address, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	server := ime.NewIBusServer(conn, ime.IBusServerOptions{
		EngineName: cfg.IBus.EngineName,
		Setup:      source.Setup,
		Logger:     logger.WithComponent("ibus"),
		Crash:      crash,
		Observer:   stats,
	})
	stats.RegisterContexts(server.Contexts)
	if err := server.Serve(conn, cfg.IBus.BusName); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checker := newChecker(conn.Context(), stats, source)
	checker.SetReady(true)
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		stats.Registry().Mount(mux)
		checker.Mount(mux)
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, mux, logger); err != nil {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-conn.Context().Done():
		logger.Warn("ibus connection closed")
	}

	server.Close()
	return nil
}
