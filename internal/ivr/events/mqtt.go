package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the MQTT publisher.
type MQTTOptions struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// MQTTPublisher publishes session events as JSON to an MQTT broker.
// Topic: <prefix>/ivr/calls/<call_uuid>/<suffix>
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewMQTTPublisher creates and connects an MQTT publisher.
func NewMQTTPublisher(opts MQTTOptions, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mqtt.ERROR = pahoLogger{logger: logger, level: slog.LevelError}
	mqtt.WARN = pahoLogger{logger: logger, level: slog.LevelWarn}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second)

	client := mqtt.NewClient(clientOpts)
	return newMQTTPublisher(client, opts, logger)
}

func newMQTTPublisher(client mqtt.Client, opts MQTTOptions, logger *slog.Logger) (*MQTTPublisher, error) {
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}

	logger.Info("[Events] Connected to MQTT broker", "broker", opts.Broker, "prefix", opts.TopicPrefix)
	return &MQTTPublisher{
		client: client,
		prefix: opts.TopicPrefix,
		qos:    opts.QoS,
		logger: logger,
	}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := MarshalEvent(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.Type(), err)
	}

	token := p.client.Publish(Topic(p.prefix, event.Subject()), p.qos, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) PublishAsync(event Event) {
	payload, err := MarshalEvent(event)
	if err != nil {
		p.logger.Warn("[Events] Marshal failed", "type", event.Type(), "error", err)
		return
	}

	token := p.client.Publish(Topic(p.prefix, event.Subject()), p.qos, false, payload)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Warn("[Events] MQTT publish failed",
				"type", event.Type(),
				"call_id", event.CallID(),
				"error", err,
			)
		}
	}()
}

// Flush waits for every async publish to be acknowledged or fail.
func (p *MQTTPublisher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MQTTPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.Flush(ctx)
	p.client.Disconnect(1000)
	return nil
}

// pahoLogger routes paho's internal logging into slog.
type pahoLogger struct {
	logger *slog.Logger
	level  slog.Level
}

func (l pahoLogger) Println(v ...interface{}) {
	l.logger.Log(context.Background(), l.level, "[MQTT] "+fmt.Sprint(v...))
}

func (l pahoLogger) Printf(format string, v ...interface{}) {
	l.logger.Log(context.Background(), l.level, "[MQTT] "+fmt.Sprintf(format, v...))
}
