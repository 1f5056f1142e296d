// Package app wires the IVR caller together and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sebas/ivrcaller/internal/ivr/api"
	"github.com/sebas/ivrcaller/internal/ivr/config"
	"github.com/sebas/ivrcaller/internal/ivr/events"
	"github.com/sebas/ivrcaller/internal/ivr/gateway"
	"github.com/sebas/ivrcaller/internal/ivr/registry"
	"github.com/sebas/ivrcaller/internal/ivr/router"
	"github.com/sebas/ivrcaller/internal/ivr/session"
)

// flushTimeout bounds how long shutdown waits for queued lifecycle events.
const flushTimeout = 5 * time.Second

// IVRCaller owns every long-lived component of the service.
type IVRCaller struct {
	config    *config.Config
	logger    *slog.Logger
	gateway   gateway.Gateway
	publisher events.Publisher
	registry  *registry.Registry
	router    *router.Router
	apiServer *api.Server
}

// Options lets callers replace external collaborators, mainly in tests.
type Options struct {
	Gateway   gateway.Gateway  // Overrides cfg.Gateway when set
	Publisher events.Publisher // Overrides cfg.MQTT when set
}

// New builds the service from cfg.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*IVRCaller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	gw := opts.Gateway
	if gw == nil {
		var err error
		if gw, err = newGateway(cfg, logger); err != nil {
			return nil, err
		}
	}

	pub := opts.Publisher
	if pub == nil {
		var err error
		if pub, err = newPublisher(cfg, logger); err != nil {
			closeGateway(gw)
			return nil, err
		}
	}

	reg := registry.New(registry.Config{
		Gateway:        gw,
		Publisher:      pub,
		Builder:        events.NewBuilder(cfg.NodeID),
		Logger:         logger,
		IdleTimeout:    cfg.Sessions.IdleTimeout,
		SweepInterval:  cfg.Sessions.SweepInterval,
		CommandTimeout: cfg.Gateway.CommandTimeout,
		MailboxSize:    cfg.Sessions.MailboxSize,
	})

	rt := router.New(reg, session.CallConfiguration{
		CallerNumber:       cfg.Call.CallerNumber,
		CallbackURL:        cfg.Call.CallbackURL,
		SpeechEndpoint:     cfg.Call.SpeechEndpoint,
		Voice:              cfg.Call.Voice,
		RecognitionTimeout: cfg.Call.RecognitionTimeout,
	}, logger)

	return &IVRCaller{
		config:    cfg,
		logger:    logger,
		gateway:   gw,
		publisher: pub,
		registry:  reg,
		router:    rt,
		apiServer: api.NewServer(cfg.HTTP.Addr, rt, reg, logger),
	}, nil
}

func newGateway(cfg *config.Config, logger *slog.Logger) (gateway.Gateway, error) {
	if cfg.Gateway.Mode == config.GatewayDryRun {
		logger.Warn("[App] Dry-run mode: gateway commands are only logged")
		return gateway.NewLoggingGateway(logger), nil
	}

	gw, err := gateway.NewGRPCGateway(gateway.GRPCConfig{
		Address:           cfg.Gateway.Address,
		KeepaliveInterval: cfg.Gateway.KeepaliveInterval,
		KeepaliveTimeout:  cfg.Gateway.KeepaliveTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}
	logger.Info("[App] Gateway client ready", "address", cfg.Gateway.Address)
	return gw, nil
}

func newPublisher(cfg *config.Config, logger *slog.Logger) (events.Publisher, error) {
	logging := events.NewLoggingPublisher(logger)
	if !cfg.MQTT.Enabled {
		return logging, nil
	}

	mqttPub, err := events.NewMQTTPublisher(events.MQTTOptions{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		QoS:         byte(cfg.MQTT.QoS),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event publisher: %w", err)
	}
	return events.NewMultiPublisher(logging, mqttPub), nil
}

func closeGateway(gw gateway.Gateway) {
	if c, ok := gw.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			slog.Warn("[App] Failed to close gateway", "error", err)
		}
	}
}

// Router returns the event router.
func (a *IVRCaller) Router() *router.Router { return a.router }

// Registry returns the session registry.
func (a *IVRCaller) Registry() *registry.Registry { return a.registry }

// Run serves the API until ctx is cancelled, then shuts everything down.
func (a *IVRCaller) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.apiServer.Serve(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("[App] Shutting down", "active_sessions", a.registry.Count())
		return nil
	})

	err := g.Wait()
	if closeErr := a.Close(); closeErr != nil {
		err = errors.Join(err, closeErr)
	}
	return err
}

// Close stops every session, flushes lifecycle events and releases the
// gateway connection.
func (a *IVRCaller) Close() error {
	a.registry.Close()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	var errs []error
	if err := a.publisher.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("flush events: %w", err))
	}
	if err := a.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	closeGateway(a.gateway)
	return errors.Join(errs...)
}
