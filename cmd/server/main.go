// Copyright 2026 The kernelBridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the kernelBridge server.
// The server presents one Jupyter-compatible API over two kernel
// backends: the in-process execution engine and a user-configured
// remote Jupyter server, routing every operation to whichever backend
// owns it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/traylinx/kernelBridge/internal/api"
	"github.com/traylinx/kernelBridge/internal/buildinfo"
	"github.com/traylinx/kernelBridge/internal/config"
	"github.com/traylinx/kernelBridge/internal/engine"
	"github.com/traylinx/kernelBridge/internal/events"
	"github.com/traylinx/kernelBridge/internal/kernelspec"
	"github.com/traylinx/kernelBridge/internal/logging"
	"github.com/traylinx/kernelBridge/internal/poller"
	"github.com/traylinx/kernelBridge/internal/remote"
	"github.com/traylinx/kernelBridge/internal/router"
	"github.com/traylinx/kernelBridge/internal/store"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	port := flag.Int("port", 0, "override the configured listen port")
	flag.Parse()

	// A .env file is optional; absence is not an error.
	_ = godotenv.Load()

	if err := run(*configPath, *port); err != nil {
		log.Fatalf("kernelBridge failed to start: %v", err)
	}
}

func run(configPath string, portOverride int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		log.Warnf("No config file at %s, using defaults", configPath)
		cfg = config.Default()
		configPath = ""
	}
	if portOverride > 0 {
		cfg.Port = portOverride
	}
	logging.SetDebug(cfg.Debug)
	if cfg.LoggingToFile {
		dir := cfg.LogDir
		if dir == "" {
			dir = "logs"
		}
		logging.EnableFileLogging(dir)
		defer logging.CloseFileLogging()
	}

	settingsPath, err := store.DefaultPath()
	if err != nil {
		return err
	}
	settings, err := store.Open(settingsPath)
	if err != nil {
		return err
	}
	defer settings.Close()

	provider := config.NewProvider(cfg, settings)
	defer provider.Close()
	if configPath != "" {
		if err := provider.Watch(configPath); err != nil {
			log.Warnf("Config watcher unavailable: %v", err)
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	var defs []engine.SpecDef
	for _, k := range cfg.EngineKernels {
		defs = append(defs, engine.SpecDef{Name: k.Name, DisplayName: k.DisplayName, Language: k.Language})
	}
	eng := engine.New(defs)

	client := remote.NewClient(provider)
	manager := remote.NewManager(client, bus)

	merger := kernelspec.NewMerger(provider, eng, client, bus)
	defer merger.Dispose()

	kernels := router.NewKernelRouter(eng, manager, merger, bus)
	defer kernels.Dispose()
	sessions := router.NewSessionRouter(eng, manager, merger, bus)
	defer sessions.Dispose()

	specsPoller := poller.New(func(ctx context.Context) (bool, error) {
		return merger.Refresh(ctx)
	}, poller.Options{
		Name:          "specs",
		Interval:      cfg.Polling.Interval(),
		BackoffFactor: cfg.Polling.BackoffFactor,
		MaxInterval:   cfg.Polling.MaxInterval(),
	})
	runningPoller := poller.New(func(ctx context.Context) (bool, error) {
		if err := kernels.RefreshRunning(ctx); err != nil {
			return false, err
		}
		if err := sessions.RefreshRunning(ctx); err != nil {
			return false, err
		}
		return false, nil
	}, poller.Options{
		Name:          "running",
		Interval:      cfg.Polling.Interval(),
		BackoffFactor: cfg.Polling.BackoffFactor,
		MaxInterval:   cfg.Polling.MaxInterval(),
	})
	defer specsPoller.Dispose()
	defer runningPoller.Dispose()

	srv := api.NewServer(provider, merger, kernels, sessions, bus, specsPoller, runningPoller)
	srv.EnableChannels(eng, client)
	specsPoller.SetStandby(srv.Standby)
	runningPoller.SetStandby(srv.Standby)

	// Configuration changes force an immediate refresh with reset
	// backoff on both loops.
	provider.OnChange(func() {
		specsPoller.Trigger()
		runningPoller.Trigger()
	})

	// The first refresh of each poller runs synchronously here, so the
	// server starts with a populated registry whenever a backend is
	// reachable.
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := specsPoller.Start(startCtx); err != nil {
		log.Warnf("Initial spec refresh incomplete: %v", err)
	}
	if err := runningPoller.Start(startCtx); err != nil {
		log.Warnf("Initial running refresh incomplete: %v", err)
	}
	cancel()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	srv.Register(r)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpSrv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("kernelBridge %s listening on %s (mode %s)", buildinfo.Version, addr, provider.Mode())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Infof("Received %s, shutting down", sig)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}
	if err := eng.ShutdownAll(shutdownCtx); err != nil {
		log.Warnf("Engine shutdown: %v", err)
	}
	return nil
}
