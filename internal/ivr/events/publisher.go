package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Publisher is the interface for publishing session events.
// Implementations may be no-op, logging, in-memory (for testing),
// or MQTT for production.
type Publisher interface {
	// Publish sends an event. Returns error only for transport failures.
	Publish(ctx context.Context, event Event) error

	// PublishAsync sends an event without waiting for confirmation.
	// Session goroutines use this so a slow broker never stalls a call.
	PublishAsync(event Event)

	// Flush ensures all pending async events are published.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// NoopPublisher discards all events. Use when no broker is configured.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that silently discards events.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }
func (p *NoopPublisher) PublishAsync(event Event)                       {}
func (p *NoopPublisher) Flush(ctx context.Context) error                { return nil }
func (p *NoopPublisher) Close() error                                   { return nil }

// LoggingPublisher logs events at debug level. Useful for development.
type LoggingPublisher struct {
	logger *slog.Logger
}

// NewLoggingPublisher creates a publisher that logs events.
func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, event Event) error {
	p.logger.Debug("[Events] Published",
		"subject", event.Subject(),
		"type", event.Type(),
		"call_id", event.CallID(),
	)
	return nil
}

func (p *LoggingPublisher) PublishAsync(event Event) {
	_ = p.Publish(context.Background(), event)
}

func (p *LoggingPublisher) Flush(ctx context.Context) error { return nil }
func (p *LoggingPublisher) Close() error                    { return nil }

// ChannelPublisher publishes to an in-memory channel. Used for testing
// and local consumers.
type ChannelPublisher struct {
	mu        sync.RWMutex
	ch        chan Event
	closed    bool
	dropCount atomic.Int64
}

// NewChannelPublisher creates a publisher backed by a buffered channel.
// Events are dropped if the buffer is full.
func NewChannelPublisher(bufferSize int) *ChannelPublisher {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelPublisher{ch: make(chan Event, bufferSize)}
}

func (p *ChannelPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil
	}

	select {
	case p.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.drop(event)
		return nil
	}
}

func (p *ChannelPublisher) PublishAsync(event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.ch <- event:
	default:
		p.drop(event)
	}
}

func (p *ChannelPublisher) drop(event Event) {
	slog.Warn("[Events] Dropped: buffer full",
		"type", event.Type(),
		"call_id", event.CallID(),
	)
	p.dropCount.Add(1)
}

func (p *ChannelPublisher) Flush(ctx context.Context) error { return nil }

func (p *ChannelPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
	return nil
}

// Events returns the channel for consuming events.
func (p *ChannelPublisher) Events() <-chan Event {
	return p.ch
}

// DroppedCount returns the number of events dropped due to buffer overflow.
func (p *ChannelPublisher) DroppedCount() int64 {
	return p.dropCount.Load()
}

// MultiPublisher fans out events to multiple publishers.
type MultiPublisher struct {
	publishers []Publisher
}

// NewMultiPublisher creates a publisher that sends to all provided publishers.
func NewMultiPublisher(publishers ...Publisher) *MultiPublisher {
	return &MultiPublisher{publishers: publishers}
}

func (p *MultiPublisher) Publish(ctx context.Context, event Event) error {
	var lastErr error
	for _, pub := range p.publishers {
		if err := pub.Publish(ctx, event); err != nil {
			lastErr = err
			slog.Warn("[Events] One publisher failed",
				"error", err,
				"type", event.Type(),
			)
		}
	}
	return lastErr
}

func (p *MultiPublisher) PublishAsync(event Event) {
	for _, pub := range p.publishers {
		pub.PublishAsync(event)
	}
}

func (p *MultiPublisher) Flush(ctx context.Context) error {
	var lastErr error
	for _, pub := range p.publishers {
		if err := pub.Flush(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (p *MultiPublisher) Close() error {
	var lastErr error
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
