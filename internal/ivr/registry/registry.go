// Package registry maps call identifiers to live sessions.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/ivrcaller/internal/ivr/events"
	"github.com/sebas/ivrcaller/internal/ivr/gateway"
	"github.com/sebas/ivrcaller/internal/ivr/session"
	"github.com/sebas/ivrcaller/internal/ivr/store"
)

// Registry TTL constants
const (
	// DefaultIdleTimeout is how long a session may go without events before it is reaped
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often the reaper runs
	DefaultSweepInterval = time.Minute
)

var (
	// ErrSessionNotFound is returned when no live session exists for an id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when starting a session whose id is taken.
	ErrSessionExists = errors.New("session already exists")
)

// Config configures a Registry and the sessions it creates.
type Config struct {
	Gateway   gateway.Gateway
	Publisher events.Publisher
	Builder   *events.Builder
	Logger    *slog.Logger

	IdleTimeout    time.Duration
	SweepInterval  time.Duration
	CommandTimeout time.Duration
	MailboxSize    int
}

// Stats holds registry counters.
type Stats struct {
	Active  int   `json:"active"`
	Started int64 `json:"started"`
	Ended   int64 `json:"ended"`
	Reaped  int64 `json:"reaped"`
}

// Registry owns every live session. There is at most one live session per
// call id; sessions remove themselves when they reach a terminal state and
// are reaped after IdleTimeout without events.
type Registry struct {
	cfg      Config
	logger   *slog.Logger
	sessions *store.TTLStore[uuid.UUID, *session.Session]

	started atomic.Int64
	ended   atomic.Int64
	reaped  atomic.Int64
}

// New creates a registry and starts its reaper.
func New(cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NewNoopPublisher()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}

	r := &Registry{cfg: cfg, logger: cfg.Logger}
	r.sessions = store.NewTTLStore[uuid.UUID, *session.Session](cfg.IdleTimeout, cfg.SweepInterval, r.evict)
	return r
}

// Start creates the session for id. It fails with ErrSessionExists if a
// live session already has that id.
func (r *Registry) Start(id uuid.UUID, phoneNumber string, call session.CallConfiguration) (*session.Session, error) {
	s, created := r.GetOrCreate(id, phoneNumber, call)
	if !created {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	return s, nil
}

// GetOrCreate returns the live session for id, creating it if needed.
// Concurrent calls for one id create exactly one session.
func (r *Registry) GetOrCreate(id uuid.UUID, phoneNumber string, call session.CallConfiguration) (*session.Session, bool) {
	s, created, _ := r.sessions.GetOrCreate(id, func() (*session.Session, error) {
		return session.New(session.Config{
			ID:             id,
			PhoneNumber:    phoneNumber,
			Call:           call,
			Gateway:        r.cfg.Gateway,
			Publisher:      r.cfg.Publisher,
			Builder:        r.cfg.Builder,
			Logger:         r.logger,
			CommandTimeout: r.cfg.CommandTimeout,
			MailboxSize:    r.cfg.MailboxSize,
			OnDone:         r.onDone,
		}), nil
	})
	if created {
		r.started.Add(1)
		r.logger.Debug("[Registry] Session created", "call_id", id, "active", r.sessions.Len())
	} else {
		r.sessions.Touch(id)
	}
	return s, created
}

// Resolve returns the live session for id and refreshes its idle timer.
// Unknown ids are an error: callbacks never create sessions.
func (r *Registry) Resolve(id uuid.UUID) (*session.Session, error) {
	s, ok := r.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	r.sessions.Touch(id)
	return s, nil
}

// Get returns the live session for id without touching it.
func (r *Registry) Get(id uuid.UUID) (*session.Session, bool) {
	return r.sessions.Get(id)
}

// List returns info for all live sessions, oldest first.
func (r *Registry) List() []session.Info {
	all := r.sessions.Values()
	infos := make([]session.Info, 0, len(all))
	for _, s := range all {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	return r.sessions.Len()
}

// Stats returns registry counters.
func (r *Registry) Stats() Stats {
	return Stats{
		Active:  r.sessions.Len(),
		Started: r.started.Load(),
		Ended:   r.ended.Load(),
		Reaped:  r.reaped.Load(),
	}
}

// Remove closes and forgets the session for id.
func (r *Registry) Remove(id uuid.UUID) bool {
	s, ok := r.sessions.Get(id)
	if !ok {
		return false
	}
	r.sessions.CompareAndDelete(id, func(v *session.Session) bool { return v == s })
	s.Close()
	return true
}

// Close stops the reaper and every live session, waiting for their loops to exit.
func (r *Registry) Close() {
	remaining := r.sessions.Close()
	for _, s := range remaining {
		s.Close()
	}
	for _, s := range remaining {
		<-s.Done()
	}
	if len(remaining) > 0 {
		r.logger.Info("[Registry] Closed live sessions", "count", len(remaining))
	}
}

// onDone runs on the session goroutine once the session has ended.
func (r *Registry) onDone(s *session.Session) {
	r.ended.Add(1)
	// A newer session may have taken the id after an eviction; leave it alone.
	if r.sessions.CompareAndDelete(s.ID(), func(v *session.Session) bool { return v == s }) {
		r.logger.Debug("[Registry] Session removed", "call_id", s.ID(), "state", s.State())
	}
	s.Close()
}

func (r *Registry) evict(id uuid.UUID, s *session.Session) {
	r.reaped.Add(1)
	r.logger.Warn("[Registry] Reaped idle session", "call_id", id, "state", s.State())
	s.Close()
}
