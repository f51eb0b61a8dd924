// Package cache implements the tagged, expiring key-value store shared by
// every component running inside one worker process.
//
// The store is an explicit handle, not a process-wide singleton: callers
// receive a *Store and pass it down to component client operations. A single
// store mutex gives per-key mutual exclusion between concurrent job
// goroutines. Expiration is evaluated lazily on access, so a read never
// returns expired data; Sweep is available for an eager external sweeper.
package cache

import (
	"fmt"
	"sync"
	"time"

	"dario.cat/mergo"
)

// Forever disables expiration for an entry.
const Forever time.Duration = 0

type entry struct {
	value     any
	tag       string
	expiresAt time.Time // zero = never expires
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store maps string keys to arbitrary values with per-entry expiration and
// an optional tag used for grouped lookup and invalidation.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Get returns the live value for key. An expired entry reads as absent and
// is removed on the way out.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

// GetDefault returns the live value for key, or def if the key is absent or
// expired.
func (s *Store) GetDefault(key string, def any) any {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// Set stores value under key, replacing any prior value and refreshing the
// expiry. A ttl of Forever keeps the entry until it is evicted.
func (s *Store) Set(key string, value any, tag string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{value: value, tag: tag}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
}

// Pop removes and returns the live value for key.
func (s *Store) Pop(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	delete(s.entries, key)
	if e.expired(s.now()) {
		return nil, false
	}
	return e.value, true
}

// Merge deep-merges value into the mapping already stored under key and
// refreshes the expiry. Existing keys are preserved unless overwritten and
// nested mappings are merged recursively. A non-mapping prior value is
// replaced outright. This is the merge-update write path; everything else
// goes through Set.
func (s *Store) Merge(key string, value map[string]any, tag string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(map[string]any, len(value))
	if prior, ok := s.entries[key]; ok && !prior.expired(s.now()) {
		if priorMap, ok := prior.value.(map[string]any); ok {
			if err := mergo.Merge(&merged, priorMap); err != nil {
				return fmt.Errorf("clone prior value for %q: %w", key, err)
			}
		}
	}
	if err := mergo.Merge(&merged, value, mergo.WithOverride); err != nil {
		return fmt.Errorf("merge update for %q: %w", key, err)
	}

	e := &entry{value: merged, tag: tag}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

// Evict removes key regardless of expiry. Returns true if an entry existed.
func (s *Store) Evict(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok
}

// Keys returns all live keys.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	keys := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		keys = append(keys, k)
	}
	return keys
}

// Tagged returns the live keys carrying tag.
func (s *Store) Tagged(tag string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var keys []string
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			continue
		}
		if e.tag == tag {
			keys = append(keys, k)
		}
	}
	return keys
}

// EvictTag removes every entry carrying tag and returns how many were
// removed.
func (s *Store) EvictTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.entries {
		if e.tag == tag {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Sweep eagerly removes expired entries and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}
