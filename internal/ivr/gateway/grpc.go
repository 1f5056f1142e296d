package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// Call-automation service methods. Requests and responses are
// google.protobuf.Struct messages so no generated stubs are required.
const (
	serviceName            = "ivr.gateway.v1.CallAutomation"
	MethodCreateCall       = "/" + serviceName + "/CreateCall"
	MethodPlayToAll        = "/" + serviceName + "/PlayToAll"
	MethodStartRecognizing = "/" + serviceName + "/StartRecognizing"
	MethodHangUp           = "/" + serviceName + "/HangUp"
)

// GRPCConfig holds gRPC client configuration
type GRPCConfig struct {
	Address           string
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration

	// DialOptions are appended to the defaults (tests use a bufconn dialer).
	DialOptions []grpc.DialOption
}

// DefaultGRPCConfig returns sensible defaults
func DefaultGRPCConfig() GRPCConfig {
	return GRPCConfig{
		Address:           "localhost:9443",
		KeepaliveInterval: 30 * time.Second,
		KeepaliveTimeout:  10 * time.Second,
	}
}

// GRPCGateway implements Gateway against a remote call-automation service.
type GRPCGateway struct {
	conn  *grpc.ClientConn
	mu    sync.RWMutex
	ready bool
}

var _ Gateway = (*GRPCGateway)(nil)

// NewGRPCGateway creates a gateway client. The connection is established lazily.
func NewGRPCGateway(cfg GRPCConfig) (*GRPCGateway, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveInterval,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	opts = append(opts, cfg.DialOptions...)

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client for %s: %w", cfg.Address, err)
	}

	slog.Info("[Gateway] gRPC client created", "address", cfg.Address)
	return &GRPCGateway{conn: conn, ready: true}, nil
}

// Dial implements Gateway.Dial
func (g *GRPCGateway) Dial(ctx context.Context, req DialRequest) (CallHandle, error) {
	resp, err := g.invoke(ctx, MethodCreateCall, map[string]any{
		"target":                      req.Target,
		"caller":                      req.Caller,
		"callback_uri":                req.CallbackURL,
		"cognitive_services_endpoint": req.SpeechEndpoint,
		"operation_context":           req.OperationContext,
	})
	if err != nil {
		return "", &CommandError{Op: OpDial, Cause: err}
	}

	handle := resp.GetFields()["call_connection_id"].GetStringValue()
	if handle == "" {
		return "", &CommandError{Op: OpDial, Cause: ErrEmptyResponse}
	}
	return CallHandle(handle), nil
}

// PlayPrompt implements Gateway.PlayPrompt
func (g *GRPCGateway) PlayPrompt(ctx context.Context, call CallHandle, req PlayRequest) error {
	if call == "" {
		return &CommandError{Op: OpPlay, Cause: ErrNoCallHandle}
	}
	_, err := g.invoke(ctx, MethodPlayToAll, map[string]any{
		"call_connection_id": string(call),
		"text":               req.Text,
		"voice_name":         req.Voice,
		"operation_context":  req.OperationContext,
	})
	if err != nil {
		return &CommandError{Op: OpPlay, Call: call, Cause: err}
	}
	return nil
}

// StartRecognition implements Gateway.StartRecognition
func (g *GRPCGateway) StartRecognition(ctx context.Context, call CallHandle, req RecognizeRequest) error {
	if call == "" {
		return &CommandError{Op: OpRecognize, Cause: ErrNoCallHandle}
	}
	_, err := g.invoke(ctx, MethodStartRecognizing, map[string]any{
		"call_connection_id":         string(call),
		"recognize_input_type":       "dtmf",
		"prompt_text":                req.Prompt,
		"voice_name":                 req.Voice,
		"initial_silence_timeout_ms": req.Timeout.Milliseconds(),
		"max_tones_to_collect":       req.MaxTones,
		"interrupt_prompt":           true,
		"operation_context":          req.OperationContext,
	})
	if err != nil {
		return &CommandError{Op: OpRecognize, Call: call, Cause: err}
	}
	return nil
}

// Hangup implements Gateway.Hangup
func (g *GRPCGateway) Hangup(ctx context.Context, call CallHandle) error {
	if call == "" {
		return &CommandError{Op: OpHangup, Cause: ErrNoCallHandle}
	}
	_, err := g.invoke(ctx, MethodHangUp, map[string]any{
		"call_connection_id": string(call),
		"for_everyone":       true,
	})
	if err != nil {
		return &CommandError{Op: OpHangup, Call: call, Cause: err}
	}
	return nil
}

// Ready reports whether the client is usable.
func (g *GRPCGateway) Ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ready
}

// Close releases the underlying connection.
func (g *GRPCGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		return nil
	}
	g.ready = false
	return g.conn.Close()
}

func (g *GRPCGateway) invoke(ctx context.Context, method string, fields map[string]any) (*structpb.Struct, error) {
	if !g.Ready() {
		return nil, ErrNotReady
	}

	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, method, req, resp); err != nil {
		return nil, fmt.Errorf("%s RPC failed: %w", method, err)
	}
	return resp, nil
}
