// Package cache holds query results between ledger writes.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// DeletePrefix removes every key that starts with prefix
	DeletePrefix(prefix string) int

	// Size returns the number of keys currently tracked
	Size() int
}

// Config sizes a Store.
type Config struct {
	MaxItems int64         // maximum number of cached values
	TTL      time.Duration // zero keeps values until evicted or deleted
}

// DefaultConfig suits a single user ledger.
func DefaultConfig() Config {
	return Config{MaxItems: 1000, TTL: 5 * time.Minute}
}

// Store is a ristretto backed Cache. Every value costs 1.
//
// Ristretto cannot enumerate its keys, so Store tracks the keys it has set in
// order to clear groups of them by prefix.
type Store[T any] struct {
	rc  *ristretto.Cache[string, T]
	ttl time.Duration

	mu   sync.RWMutex
	keys map[string]struct{}
}

// New creates a Store.
func New[T any](cfg Config) (*Store[T], error) {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, T]{
		NumCounters: cfg.MaxItems * 10, // keys to track frequency of
		MaxCost:     cfg.MaxItems,
		BufferItems: 64, // keys per Get buffer
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Store[T]{rc: rc, ttl: cfg.TTL, keys: make(map[string]struct{})}, nil
}

func (s *Store[T]) Get(key string) (T, bool) {
	return s.rc.Get(key)
}

// Set stores data under key. Ristretto applies writes asynchronously; call
// Wait when a following Get must observe the value.
func (s *Store[T]) Set(key string, data T) {
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	if s.ttl > 0 {
		s.rc.SetWithTTL(key, data, 1, s.ttl)
		return
	}
	s.rc.Set(key, data, 1)
}

func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	s.rc.Del(key)
}

func (s *Store[T]) DeletePrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.keys {
		if strings.HasPrefix(key, prefix) {
			s.rc.Del(key)
			delete(s.keys, key)
			n++
		}
	}
	return n
}

// Clear drops every value.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rc.Clear()
	s.keys = make(map[string]struct{})
}

func (s *Store[T]) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Wait blocks until pending writes are applied.
func (s *Store[T]) Wait() { s.rc.Wait() }

// Close stops the cache's background goroutines.
func (s *Store[T]) Close() { s.rc.Close() }

// Key joins parts with ':' into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
