// Package store provides a generic in-memory map with idle expiry.
package store

import (
	"sync"
	"time"
)

// Entry wraps a value with expiration metadata
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// TTLStore is a generic in-memory store whose entries expire after a
// period without Touch. Expired entries are removed by a background sweep
// that reports them to the eviction callback.
type TTLStore[K comparable, V any] struct {
	mu       sync.RWMutex
	items    map[K]*Entry[V]
	ttl      time.Duration
	interval time.Duration
	onEvict  func(key K, value V)
	now      func() time.Time

	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewTTLStore creates a store whose entries live for ttl after their last
// Touch, swept every cleanupInterval. onEvict may be nil.
func NewTTLStore[K comparable, V any](ttl, cleanupInterval time.Duration, onEvict func(key K, value V)) *TTLStore[K, V] {
	s := &TTLStore[K, V]{
		items:    make(map[K]*Entry[V]),
		ttl:      ttl,
		interval: cleanupInterval,
		onEvict:  onEvict,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *TTLStore[K, V]) expired(e *Entry[V]) bool {
	return s.now().After(e.ExpiresAt)
}

// Get retrieves a value by key. Returns the value and true if found and not expired.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.items[key]
	if !exists || s.expired(entry) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// GetOrCreate returns the live value for key, or stores the result of
// create if there is none. create runs under the store lock, so concurrent
// callers for one key observe exactly one created value. created reports
// whether this call stored it. An expired entry that gets replaced is passed
// to onEvict once the lock is released.
func (s *TTLStore[K, V]) GetOrCreate(key K, create func() (V, error)) (value V, created bool, err error) {
	s.mu.Lock()
	entry, exists := s.items[key]
	if exists && !s.expired(entry) {
		s.mu.Unlock()
		return entry.Value, false, nil
	}

	value, err = create()
	if err != nil {
		s.mu.Unlock()
		var zero V
		return zero, false, err
	}
	s.items[key] = &Entry[V]{Value: value, ExpiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()

	if exists && s.onEvict != nil {
		s.onEvict(key, entry.Value)
	}
	return value, true, nil
}

// Touch pushes the expiry of key out by the store TTL.
func (s *TTLStore[K, V]) Touch(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.items[key]
	if !exists {
		return false
	}
	entry.ExpiresAt = s.now().Add(s.ttl)
	return true
}

// Delete removes a key from the store
func (s *TTLStore[K, V]) Delete(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; exists {
		delete(s.items, key)
		return true
	}
	return false
}

// CompareAndDelete removes key only if match reports true for its current
// value. Used to remove an entry without racing a newer value for the same key.
func (s *TTLStore[K, V]) CompareAndDelete(key K, match func(V) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.items[key]
	if !exists || !match(entry.Value) {
		return false
	}
	delete(s.items, key)
	return true
}

// Len returns the number of non-expired items
func (s *TTLStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, entry := range s.items {
		if !s.expired(entry) {
			count++
		}
	}
	return count
}

// Values returns all non-expired values.
func (s *TTLStore[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]V, 0, len(s.items))
	for _, entry := range s.items {
		if !s.expired(entry) {
			result = append(result, entry.Value)
		}
	}
	return result
}

// Close stops the cleanup goroutine and removes every entry, returning
// what was stored so the caller can release it.
func (s *TTLStore[K, V]) Close() []V {
	s.closeOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]V, 0, len(s.items))
	for _, entry := range s.items {
		result = append(result, entry.Value)
	}
	s.items = make(map[K]*Entry[V])
	return result
}

// cleanupLoop periodically removes expired entries
func (s *TTLStore[K, V]) cleanupLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup removes all expired entries and calls the eviction callback if set
func (s *TTLStore[K, V]) cleanup() {
	type evicted struct {
		key   K
		value V
	}

	s.mu.Lock()
	var expired []evicted
	for key, entry := range s.items {
		if s.expired(entry) {
			expired = append(expired, evicted{key, entry.Value})
			delete(s.items, key)
		}
	}
	s.mu.Unlock()

	// Callbacks run outside the lock so they may call back into the store.
	if s.onEvict != nil {
		for _, e := range expired {
			s.onEvict(e.key, e.value)
		}
	}
}
