// Package session implements the per-call IVR state machine. Each Session
// owns one goroutine that consumes its mailbox in order, so state is only
// ever mutated by that goroutine.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sebas/ivrcaller/internal/ivr/correlation"
	"github.com/sebas/ivrcaller/internal/ivr/events"
	"github.com/sebas/ivrcaller/internal/ivr/gateway"
)

const tracerName = "github.com/sebas/ivrcaller/internal/ivr/session"

const (
	DefaultCommandTimeout = 10 * time.Second
	DefaultMailboxSize    = 16
)

// Config holds everything a Session needs.
type Config struct {
	ID          uuid.UUID
	PhoneNumber string
	Call        CallConfiguration

	Gateway   gateway.Gateway
	Publisher events.Publisher // Optional, defaults to no-op
	Builder   *events.Builder  // Optional
	Logger    *slog.Logger     // Optional

	// CommandTimeout bounds each gateway command.
	CommandTimeout time.Duration
	MailboxSize    int

	// OnDone is called once from the session goroutine when the session
	// reaches a terminal state or is closed.
	OnDone func(*Session)
}

// Info is a point-in-time view of a session.
type Info struct {
	ID          string             `json:"id"`
	PhoneNumber string             `json:"phone_number"`
	State       State              `json:"state"`
	Attempts    int                `json:"attempts"`
	CallHandle  gateway.CallHandle `json:"call_handle,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	LastError   string             `json:"last_error,omitempty"`
}

type envelope struct {
	ctx    context.Context
	event  Event
	result chan error
}

// Session is a single call's state machine.
type Session struct {
	id     uuid.UUID
	token  string
	gw     gateway.Gateway
	pub    events.Publisher
	build  *events.Builder
	logger *slog.Logger
	tracer trace.Tracer

	commandTimeout time.Duration
	onDone         func(*Session)

	inbox     chan envelope
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	finished  bool

	// mu guards the fields below for readers; only the loop goroutine writes them.
	mu          sync.RWMutex
	phoneNumber string
	call        CallConfiguration
	state       State
	attempts    int
	handle      gateway.CallHandle
	createdAt   time.Time
	updatedAt   time.Time
	lastErr     error
}

// New creates a session in StateInitial and starts its loop.
func New(cfg Config) *Session {
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewNoopPublisher()
	}
	if cfg.Builder == nil {
		cfg.Builder = events.NewBuilder("")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}

	now := time.Now()
	s := &Session{
		id:             cfg.ID,
		token:          correlation.Encode(cfg.ID),
		gw:             cfg.Gateway,
		pub:            cfg.Publisher,
		build:          cfg.Builder,
		logger:         cfg.Logger.With("call_id", cfg.ID.String()),
		tracer:         otel.Tracer(tracerName),
		commandTimeout: cfg.CommandTimeout,
		onDone:         cfg.OnDone,
		inbox:          make(chan envelope, cfg.MailboxSize),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
		phoneNumber:    cfg.PhoneNumber,
		call:           cfg.Call.withDefaults(),
		state:          StateInitial,
		createdAt:      now,
		updatedAt:      now,
	}

	s.pub.PublishAsync(s.build.SessionStarted(cfg.ID.String()).
		PhoneNumber(cfg.PhoneNumber).
		CallerNumber(s.call.CallerNumber).
		Build())

	go s.run()
	return s
}

// ID returns the call identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Attempts returns the recognition attempt counter.
func (s *Session) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

// Info returns a snapshot for inspection.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{
		ID:          s.id.String(),
		PhoneNumber: s.phoneNumber,
		State:       s.state,
		Attempts:    s.attempts,
		CallHandle:  s.handle,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
	if s.lastErr != nil {
		info.LastError = s.lastErr.Error()
	}
	return info
}

// Done is closed when the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close stops the session loop. Events still queued are answered with
// ErrSessionClosed. Safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.stop) })
}

// Deliver queues ev and waits until the session has processed it. Events
// delivered to the same session are processed one at a time in the order
// Deliver was called. The returned error is the gateway failure the event
// caused, if any.
func (s *Session) Deliver(ctx context.Context, ev Event) error {
	select {
	case <-s.stop:
		return ErrSessionClosed
	default:
	}

	env := envelope{ctx: ctx, event: ev, result: make(chan error, 1)}
	select {
	case s.inbox <- env:
	case <-s.stop:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.result:
		return err
	case <-s.done:
		select {
		case err := <-env.result:
			return err
		default:
			return ErrSessionClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.stop:
			s.drain()
			s.finish(events.EndReasonAbandoned, "session closed")
			return
		case env := <-s.inbox:
			env.result <- s.handleEvent(env.ctx, env.event)
		}
	}
}

func (s *Session) drain() {
	for {
		select {
		case env := <-s.inbox:
			env.result <- ErrSessionClosed
		default:
			return
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev Event) error {
	s.mu.RLock()
	from, attempts := s.state, s.attempts
	s.mu.RUnlock()

	out := Transition(Snapshot{State: from, Attempts: attempts}, ev)
	if !out.Handled {
		s.logger.Debug("[Session] Event ignored", "event", ev.Name(), "state", from)
		return nil
	}

	// Commands outlive the delivering request; they are bounded by commandTimeout instead.
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "session."+ev.Name(),
		trace.WithAttributes(
			attribute.String("ivr.call_id", s.id.String()),
			attribute.String("ivr.state.from", from.String()),
			attribute.String("ivr.state.to", out.State.String()),
		))
	defer span.End()

	s.mu.Lock()
	switch e := ev.(type) {
	case StartCall:
		if e.PhoneNumber != "" {
			s.phoneNumber = e.PhoneNumber
		}
		s.call = e.Config.withDefaults()
	case CallConnected:
		if e.CallHandle != "" {
			s.handle = e.CallHandle
		}
	}
	s.mu.Unlock()

	if !from.CanTransitionTo(out.State) {
		err := fmt.Errorf("invalid state transition: %s -> %s", from, out.State)
		s.logger.Error("[Session] Transition rejected", "event", ev.Name(), "error", err)
		return err
	}

	for _, cmd := range out.Commands {
		if err := s.execute(ctx, cmd); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.fail(ctx, ev, from, cmd, err)
			return err
		}
	}

	if err := s.transitionTo(out.State, out.Attempts); err != nil {
		return err
	}

	s.logger.Info("[Session] State changed",
		"event", ev.Name(),
		"from", from,
		"to", out.State,
		"attempts", out.Attempts,
	)
	s.publishStateChange(ev, from, out.State, out.Attempts)

	if out.State.IsTerminal() {
		switch {
		case out.State == StateDisconnected:
			s.finish(events.EndReasonDisconnected, "")
		case from == StateCouldNotParse:
			s.finish(events.EndReasonNoInput, "")
		default:
			s.finish(events.EndReasonCompleted, "")
		}
	}
	return nil
}

// transitionTo moves to newState if the state table allows it.
func (s *Session) transitionTo(newState State, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CanTransitionTo(newState) {
		return fmt.Errorf("invalid state transition: %s -> %s", s.state, newState)
	}

	s.state = newState
	s.attempts = attempts
	s.updatedAt = time.Now()
	return nil
}

func (s *Session) execute(ctx context.Context, cmd Command) error {
	ctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
	defer cancel()

	s.mu.RLock()
	call, handle, phone := s.call, s.handle, s.phoneNumber
	s.mu.RUnlock()

	switch cmd.Op {
	case gateway.OpDial:
		h, err := s.gw.Dial(ctx, gateway.DialRequest{
			Target:           phone,
			Caller:           call.CallerNumber,
			CallbackURL:      call.CallbackURL,
			SpeechEndpoint:   call.SpeechEndpoint,
			OperationContext: s.token,
		})
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.handle = h
		s.mu.Unlock()
		s.logger.Info("[Session] Dialed", "target", phone, "call_handle", h)
		return nil

	case gateway.OpRecognize:
		return s.gw.StartRecognition(ctx, handle, gateway.RecognizeRequest{
			Prompt:           cmd.Text,
			Voice:            call.Voice,
			Timeout:          call.RecognitionTimeout,
			MaxTones:         1,
			OperationContext: s.token,
		})

	case gateway.OpPlay:
		return s.gw.PlayPrompt(ctx, handle, gateway.PlayRequest{
			Text:             cmd.Text,
			Voice:            call.Voice,
			OperationContext: s.token,
		})

	case gateway.OpHangup:
		return s.gw.Hangup(ctx, handle)
	}
	return nil
}

// fail moves the session to StateFailed after cmd returned err, hanging up
// the call if one was placed.
func (s *Session) fail(ctx context.Context, ev Event, from State, cmd Command, err error) {
	s.mu.Lock()
	s.lastErr = err
	handle, attempts := s.handle, s.attempts
	s.mu.Unlock()
	_ = s.transitionTo(StateFailed, attempts)

	s.logger.Error("[Session] Gateway command failed",
		"op", cmd.Op,
		"event", ev.Name(),
		"from", from,
		"error", err,
	)

	if handle != "" && cmd.Op != gateway.OpHangup {
		hctx, cancel := context.WithTimeout(ctx, s.commandTimeout)
		if herr := s.gw.Hangup(hctx, handle); herr != nil {
			s.logger.Warn("[Session] Hangup after failure failed", "call_handle", handle, "error", herr)
		}
		cancel()
	}

	s.publishStateChange(ev, from, StateFailed, attempts)
	s.finish(events.EndReasonFailed, err.Error())
}

func (s *Session) publishStateChange(ev Event, from, to State, attempts int) {
	s.pub.PublishAsync(s.build.StateChanged(s.id.String()).
		Transition(from.String(), to.String()).
		Trigger(ev.Name()).
		Attempts(attempts).
		Build())
}

// finish runs once, on the loop goroutine.
func (s *Session) finish(reason events.EndReason, detail string) {
	if s.finished {
		return
	}
	s.finished = true

	s.mu.RLock()
	state, created := s.state, s.createdAt
	s.mu.RUnlock()

	s.logger.Info("[Session] Ended", "state", state, "reason", reason)
	s.pub.PublishAsync(s.build.SessionEnded(s.id.String()).
		Reason(reason, detail).
		FinalState(state.String()).
		Duration(time.Since(created)).
		Build())

	if s.onDone != nil {
		s.onDone(s)
	}
}
