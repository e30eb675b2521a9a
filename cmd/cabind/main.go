package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cabin-dispatch/internal/config"
	"github.com/cabin-dispatch/internal/maintenance"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	log, logCloser, err := setupLogger(cfg.Log, cfg.Network.HTTP.DevMode)
	if err != nil {
		stdlog.Fatalf("Failed to set up logging: %v", err)
	}
	defer logCloser.Close()

	log.WithFields(logrus.Fields{
		"httpPort":  cfg.Network.HTTP.Port,
		"messaging": cfg.Messaging.Backend,
		"journal":   cfg.Journal.Path,
		"metrics":   cfg.Monitor.Enabled,
	}).Info("Starting cabin dispatcher")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to start")
	}

	if a.metrics != nil {
		a.metrics.StartRuntimeMonitor(ctx, 10*time.Second, log.WithField("component", "monitor"))
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Network.HTTP.Port),
		Handler:      a.router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting HTTP server on port %d", cfg.Network.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	var maintenanceServer *maintenance.Server
	if cfg.Network.Maintenance.Port > 0 {
		maintenanceServer, err = maintenance.NewServer(cfg.Network.Maintenance, a.dispatcher, log.WithField("component", "maintenance"))
		if err != nil {
			log.WithError(err).Fatal("Failed to create maintenance server")
		}
		go func() {
			if err := maintenanceServer.ListenAndServe(fmt.Sprintf(":%d", cfg.Network.Maintenance.Port)); err != nil {
				log.WithError(err).Fatal("Maintenance server failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down servers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}

	if maintenanceServer != nil {
		if err := maintenanceServer.Close(); err != nil {
			log.WithError(err).Warn("Maintenance server shutdown error")
		}
	}

	cancel()
	a.Close()

	log.Info("Servers stopped")
}
