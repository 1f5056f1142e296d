// Package config loads the service configuration. Sources are applied in
// order: built-in defaults, the optional YAML file, IVR_* environment
// variables, then command-line flags that were set explicitly.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable the service reads.
const EnvPrefix = "IVR_"

// Gateway modes
const (
	GatewayGRPC   = "grpc"
	GatewayDryRun = "dryrun"
)

// Config holds the service configuration
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	NodeID   string `yaml:"node_id" env:"NODE_ID"`

	HTTP     HTTPConfig     `yaml:"http" envPrefix:"HTTP_"`
	Call     CallConfig     `yaml:"call" envPrefix:"CALL_"`
	Gateway  GatewayConfig  `yaml:"gateway" envPrefix:"GATEWAY_"`
	Sessions SessionsConfig `yaml:"sessions" envPrefix:"SESSIONS_"`
	MQTT     MQTTConfig     `yaml:"mqtt" envPrefix:"MQTT_"`
	Tracing  TracingConfig  `yaml:"tracing" envPrefix:"TRACING_"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

// CallConfig holds the settings every outbound call uses.
type CallConfig struct {
	CallerNumber       string        `yaml:"caller_number" env:"CALLER_NUMBER"`
	CallbackURL        string        `yaml:"callback_url" env:"CALLBACK_URL"`
	SpeechEndpoint     string        `yaml:"speech_endpoint" env:"SPEECH_ENDPOINT"`
	Voice              string        `yaml:"voice" env:"VOICE"`
	RecognitionTimeout time.Duration `yaml:"recognition_timeout" env:"RECOGNITION_TIMEOUT"`
}

// GatewayConfig configures the call-automation gateway client.
type GatewayConfig struct {
	Mode              string        `yaml:"mode" env:"MODE"` // "grpc" or "dryrun"
	Address           string        `yaml:"address" env:"ADDRESS"`
	CommandTimeout    time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" env:"KEEPALIVE_INTERVAL"`
	KeepaliveTimeout  time.Duration `yaml:"keepalive_timeout" env:"KEEPALIVE_TIMEOUT"`
}

// SessionsConfig configures the session registry.
type SessionsConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	MailboxSize   int           `yaml:"mailbox_size" env:"MAILBOX_SIZE"`
}

// MQTTConfig configures lifecycle event publishing.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Broker      string `yaml:"broker" env:"BROKER"`
	ClientID    string `yaml:"client_id" env:"CLIENT_ID"`
	TopicPrefix string `yaml:"topic_prefix" env:"TOPIC_PREFIX"`
	QoS         int    `yaml:"qos" env:"QOS"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"` // OTLP/HTTP host:port
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns the built-in configuration.
func Default() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		LogLevel: "info",
		NodeID:   hostname,
		HTTP:     HTTPConfig{Addr: ":8080"},
		Call: CallConfig{
			CallbackURL:        "http://localhost:8080/api/v1/callbacks",
			Voice:              "en-GB-SoniaNeural",
			RecognitionTimeout: 10 * time.Second,
		},
		Gateway: GatewayConfig{
			Mode:              GatewayGRPC,
			Address:           "localhost:9443",
			CommandTimeout:    10 * time.Second,
			KeepaliveInterval: 30 * time.Second,
			KeepaliveTimeout:  10 * time.Second,
		},
		Sessions: SessionsConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
			MailboxSize:   16,
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://localhost:1883",
			ClientID:    "ivrcaller",
			TopicPrefix: "",
			QoS:         1,
		},
		Tracing: TracingConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "ivrcaller",
		},
	}
}

// Load builds the configuration from args (without the program name) and
// the environment.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("ivrcaller", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv(EnvPrefix+"CONFIG"), "Path to YAML config file")
	httpAddr := fs.String("http", cfg.HTTP.Addr, "HTTP API listen address")
	logLevel := fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	gatewayAddr := fs.String("gateway", cfg.Gateway.Address, "Call-automation gateway gRPC address")
	callerNumber := fs.String("caller", cfg.Call.CallerNumber, "Caller ID presented on outbound calls")
	callbackURL := fs.String("callback", cfg.Call.CallbackURL, "Public URL the provider posts callbacks to")
	dryRun := fs.Bool("dry-run", false, "Log gateway commands instead of sending them")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath != "" {
		if err := loadFile(*configPath, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "loglevel":
			cfg.LogLevel = *logLevel
		case "gateway":
			cfg.Gateway.Address = *gatewayAddr
		case "caller":
			cfg.Call.CallerNumber = *callerNumber
		case "callback":
			cfg.Call.CallbackURL = *callbackURL
		case "dry-run":
			if *dryRun {
				cfg.Gateway.Mode = GatewayDryRun
			}
		}
	})

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr is required"))
	}
	if u, err := url.Parse(c.Call.CallbackURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("call.callback_url must be an absolute URL, got %q", c.Call.CallbackURL))
	}
	if c.Call.RecognitionTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call.recognition_timeout must be positive"))
	}

	c.Gateway.Mode = strings.ToLower(c.Gateway.Mode)
	switch c.Gateway.Mode {
	case GatewayGRPC:
		if c.Gateway.Address == "" {
			errs = append(errs, fmt.Errorf("gateway.address is required in grpc mode"))
		}
	case GatewayDryRun:
	default:
		errs = append(errs, fmt.Errorf("gateway.mode must be %q or %q, got %q", GatewayGRPC, GatewayDryRun, c.Gateway.Mode))
	}
	if c.Gateway.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("gateway.command_timeout must be positive"))
	}

	if c.Sessions.IdleTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sessions.idle_timeout must be positive"))
	}
	if c.Sessions.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("sessions.sweep_interval must be positive"))
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, fmt.Errorf("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.ClientID == "" {
			errs = append(errs, fmt.Errorf("mqtt.client_id is required when mqtt is enabled"))
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Errorf("tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}
