package gateway

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LoggingGateway logs commands instead of performing them. Used in dry-run
// mode to exercise the state machine without a provider.
type LoggingGateway struct {
	logger *slog.Logger
}

var _ Gateway = (*LoggingGateway)(nil)

// NewLoggingGateway creates a gateway that only logs.
func NewLoggingGateway(logger *slog.Logger) *LoggingGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingGateway{logger: logger}
}

func (g *LoggingGateway) Dial(ctx context.Context, req DialRequest) (CallHandle, error) {
	handle := CallHandle("dryrun-" + uuid.NewString())
	g.logger.Info("[Gateway] Dial (dry run)",
		"target", req.Target,
		"caller", req.Caller,
		"operation_context", req.OperationContext,
		"call_handle", handle,
	)
	return handle, nil
}

func (g *LoggingGateway) PlayPrompt(ctx context.Context, call CallHandle, req PlayRequest) error {
	g.logger.Info("[Gateway] Play (dry run)", "call_handle", call, "text", req.Text)
	return nil
}

func (g *LoggingGateway) StartRecognition(ctx context.Context, call CallHandle, req RecognizeRequest) error {
	g.logger.Info("[Gateway] Recognize (dry run)", "call_handle", call, "prompt", req.Prompt, "timeout", req.Timeout)
	return nil
}

func (g *LoggingGateway) Hangup(ctx context.Context, call CallHandle) error {
	g.logger.Info("[Gateway] Hangup (dry run)", "call_handle", call)
	return nil
}
