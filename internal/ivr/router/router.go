// Package router turns start-call requests and provider callbacks into
// session events and delivers them to the owning session.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/sebas/ivrcaller/internal/ivr/correlation"
	"github.com/sebas/ivrcaller/internal/ivr/gateway"
	"github.com/sebas/ivrcaller/internal/ivr/registry"
	"github.com/sebas/ivrcaller/internal/ivr/session"
)

var (
	// ErrUnsupportedEvent is returned for provider events the session does not consume.
	ErrUnsupportedEvent = errors.New("unsupported provider event")

	// ErrInvalidPhoneNumber is returned when a start-call request has an unusable number.
	ErrInvalidPhoneNumber = errors.New("invalid phone number")
)

// Provider event types, without the provider's namespace.
const (
	TypeCallConnected      = "CallConnected"
	TypeCallDisconnected   = "CallDisconnected"
	TypeRecognizeCompleted = "RecognizeCompleted"
	TypeRecognizeFailed    = "RecognizeFailed"
	TypePlayCompleted      = "PlayCompleted"
	TypePlayFailed         = "PlayFailed"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// ProviderEvent is one callback from the call-automation provider.
type ProviderEvent struct {
	// Type may carry a namespace, e.g. "Microsoft.Communication.CallConnected".
	Type             string
	OperationContext string
	CallConnectionID string
	// Tones as reported by the provider ("one", "pound", "5", ...).
	Tones []string
}

// Router correlates inbound events to sessions.
type Router struct {
	registry *registry.Registry
	call     session.CallConfiguration
	logger   *slog.Logger
}

// New creates a router. call is the configuration every started call uses.
func New(reg *registry.Registry, call session.CallConfiguration, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{registry: reg, call: call, logger: logger}
}

// StartCall mints a call id, registers its session and places the call.
// The id is returned even when dialing fails so the caller can match it
// against the logs and the session.ended event; the failed session itself
// is already gone from the registry.
func (r *Router) StartCall(ctx context.Context, phoneNumber string) (uuid.UUID, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if !phonePattern.MatchString(phoneNumber) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidPhoneNumber, phoneNumber)
	}

	id := uuid.New()
	s, err := r.registry.Start(id, phoneNumber, r.call)
	if err != nil {
		return uuid.Nil, err
	}

	r.logger.Info("[Router] Starting call", "call_id", id, "phone_number", phoneNumber)
	if err := s.Deliver(ctx, session.StartCall{PhoneNumber: phoneNumber, Config: r.call}); err != nil {
		return id, fmt.Errorf("start call %s: %w", id, err)
	}
	return id, nil
}

// Route delivers one provider event to its session and waits until the
// session has processed it.
func (r *Router) Route(ctx context.Context, pe ProviderEvent) error {
	id, err := correlation.Decode(pe.OperationContext)
	if err != nil {
		return err
	}

	ev, err := translate(pe)
	if err != nil {
		return err
	}

	s, err := r.registry.Resolve(id)
	if err != nil {
		return err
	}
	return s.Deliver(ctx, ev)
}

// RouteBatch routes events in order. Events that cannot be routed are
// logged and skipped. Returns the number delivered.
func (r *Router) RouteBatch(ctx context.Context, batch []ProviderEvent) int {
	delivered := 0
	for _, pe := range batch {
		err := r.Route(ctx, pe)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, correlation.ErrMalformedToken), errors.Is(err, ErrUnsupportedEvent):
			r.logger.Debug("[Router] Dropped callback", "type", pe.Type, "operation_context", pe.OperationContext, "error", err)
		case errors.Is(err, registry.ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
			r.logger.Warn("[Router] Callback for unknown session", "type", pe.Type, "operation_context", pe.OperationContext)
		default:
			// The event was delivered; processing it failed.
			delivered++
			r.logger.Warn("[Router] Callback processing failed", "type", pe.Type, "operation_context", pe.OperationContext, "error", err)
		}
	}
	return delivered
}

func translate(pe ProviderEvent) (session.Event, error) {
	name := pe.Type
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	switch name {
	case TypeCallConnected:
		return session.CallConnected{CallHandle: gateway.CallHandle(pe.CallConnectionID)}, nil
	case TypeCallDisconnected:
		return session.CallDisconnected{}, nil
	case TypeRecognizeCompleted:
		return session.RecognizeCompleted{Tones: NormalizeTones(pe.Tones)}, nil
	case TypeRecognizeFailed:
		return session.RecognizeFailed{}, nil
	case TypePlayCompleted, TypePlayFailed:
		return session.PlayFinished{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, pe.Type)
}

var toneNames = map[string]string{
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	"asterisk": "*", "star": "*", "pound": "#", "hash": "#",
	"a": "A", "b": "B", "c": "C", "d": "D",
}

// NormalizeTones maps provider tone names to their keypad characters.
// Unknown names are kept so the session treats them as invalid input.
func NormalizeTones(tones []string) []string {
	out := make([]string, 0, len(tones))
	for _, t := range tones {
		t = strings.TrimSpace(t)
		if key, ok := toneNames[strings.ToLower(t)]; ok {
			t = key
		}
		out = append(out, t)
	}
	return out
}
