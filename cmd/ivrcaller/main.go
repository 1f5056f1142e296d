package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sebas/ivrcaller/internal/banner"
	"github.com/sebas/ivrcaller/internal/ivr/app"
	"github.com/sebas/ivrcaller/internal/ivr/config"
	"github.com/sebas/ivrcaller/internal/logger"
	"github.com/sebas/ivrcaller/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	printBanner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		NodeID:      cfg.NodeID,
	})
	if err != nil {
		slog.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	caller, err := app.New(cfg, slog.Default(), app.Options{})
	if err != nil {
		slog.Error("Failed to create IVR caller", "error", err)
		os.Exit(1)
	}

	if err := caller.Run(ctx); err != nil {
		slog.Error("IVR caller stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("IVR caller stopped")
}

func printBanner(cfg *config.Config) {
	gw := cfg.Gateway.Address
	if cfg.Gateway.Mode == config.GatewayDryRun {
		gw = "dry-run"
	}
	events := "log"
	if cfg.MQTT.Enabled {
		events = "log + mqtt " + cfg.MQTT.Broker
	}
	banner.Print(os.Stdout, "IVR CALLER", []banner.ConfigLine{
		{Label: "HTTP", Value: cfg.HTTP.Addr},
		{Label: "Gateway", Value: gw},
		{Label: "Caller", Value: cfg.Call.CallerNumber},
		{Label: "Callback", Value: cfg.Call.CallbackURL},
		{Label: "Events", Value: events},
		{Label: "Node", Value: cfg.NodeID},
	})
}
