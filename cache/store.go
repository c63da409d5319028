package cache

import (
	"sync"
	"sync/atomic"

	"github.com/Mintenance-LTD/mintenance-sub013/internal/clock"
)

// Store is the in-memory cache store. A single mutex guards the entry map
// and all entry metadata; entries are small and short-lived, so per-entry
// locks are not worth their cost.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	tagIndex map[string]map[string]struct{} // tag → set of cache keys

	maxEntries int
	memory     int64
	strategy   Strategy
	clock      clock.Clock

	evictions atomic.Int64
}

// NewStore creates an in-memory store. maxEntries <= 0 means unbounded.
func NewStore(maxEntries int, strategy Strategy, clk clock.Clock) *Store {
	if strategy == nil {
		strategy = DefaultStrategy{}
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		entries:    make(map[string]*Entry),
		tagIndex:   make(map[string]map[string]struct{}),
		maxEntries: maxEntries,
		strategy:   strategy,
		clock:      clk,
	}
}

// Get returns the live entry for key, bumping its access metadata.
// An expired entry is removed and reported as a miss.
func (s *Store) Get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}

	now := s.clock.Now()
	if e.Expired(now) {
		s.removeLocked(key)
		return nil, false
	}

	e.AccessCount++
	e.LastAccessedAt = now
	return e, true
}

// Contains reports whether a live, non-expired entry exists for key
// without touching its access metadata.
func (s *Store) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	return ok && !e.Expired(s.clock.Now())
}

// Set inserts or replaces the entry, evicting for capacity if needed.
func (s *Store) Set(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.Key]; !exists && s.maxEntries > 0 {
		for len(s.entries) >= s.maxEntries {
			if !s.evictOneLocked() {
				break
			}
		}
	}

	s.removeLocked(e.Key) // clear any previous entry and its tag index
	s.entries[e.Key] = e
	s.memory += int64(e.SizeBytes)
	for _, tag := range e.Tags {
		if s.tagIndex[tag] == nil {
			s.tagIndex[tag] = make(map[string]struct{})
		}
		s.tagIndex[tag][e.Key] = struct{}{}
	}
}

// Delete removes the entry for key, reporting whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(key)
}

// DeleteByTag removes every entry whose tag set contains tag and returns
// the removed entries.
func (s *Store) DeleteByTag(tag string) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.tagIndex[tag]
	if !ok {
		return nil
	}

	removed := make([]*Entry, 0, len(keys))
	for key := range keys {
		if e, ok := s.entries[key]; ok {
			removed = append(removed, e)
			s.removeLocked(key)
		}
	}
	return removed
}

// Purge removes all entries.
func (s *Store) Purge() {
	s.mu.Lock()
	s.entries = make(map[string]*Entry)
	s.tagIndex = make(map[string]map[string]struct{})
	s.memory = 0
	s.mu.Unlock()
}

// Vacuum removes entries that are expired or flagged by the active
// strategy, returning the removed entries. It holds the store lock for
// the full sweep so a concurrent Get cannot resurrect an entry mid-sweep.
func (s *Store) Vacuum() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var removed []*Entry
	for key, e := range s.entries {
		if e.Expired(now) || s.strategy.ShouldEvict(e) {
			removed = append(removed, e)
			s.removeLocked(key)
		}
	}
	if len(removed) > 0 {
		s.evictions.Add(int64(len(removed)))
	}
	return removed
}

// Admit asks the active strategy whether a value may be cached.
func (s *Store) Admit(key string, value []byte, opts *SetOptions) bool {
	s.mu.Lock()
	strategy := s.strategy
	s.mu.Unlock()
	return strategy.ShouldCache(key, value, opts)
}

// SetStrategy swaps the active strategy. Existing entries are not
// re-evaluated until the next Vacuum.
func (s *Store) SetStrategy(strategy Strategy) {
	if strategy == nil {
		return
	}
	s.mu.Lock()
	s.strategy = strategy
	s.mu.Unlock()
}

// Len returns the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// MemoryUsage returns the sum of SizeBytes over stored entries.
func (s *Store) MemoryUsage() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memory
}

// Evictions returns the cumulative count of entries removed by capacity
// eviction or Vacuum.
func (s *Store) Evictions() int64 {
	return s.evictions.Load()
}

// evictOneLocked frees one slot. Expired entries go first; otherwise the
// victim is the lowest retention score, breaking ties by oldest access.
// Must be called with mu held.
func (s *Store) evictOneLocked() bool {
	now := s.clock.Now()

	var victim *Entry
	for _, e := range s.entries {
		if e.Expired(now) {
			victim = e
			break
		}
		if victim == nil {
			victim = e
			continue
		}
		vs, es := s.strategy.RetentionScore(victim), s.strategy.RetentionScore(e)
		if es < vs || (es == vs && e.LastAccessedAt.Before(victim.LastAccessedAt)) {
			victim = e
		}
	}

	if victim == nil {
		return false
	}
	s.removeLocked(victim.Key)
	s.evictions.Add(1)
	return true
}

// removeLocked deletes an entry and cleans its tag index. Must be called
// with mu held.
func (s *Store) removeLocked(key string) bool {
	e, ok := s.entries[key]
	if !ok {
		return false
	}
	delete(s.entries, key)
	s.memory -= int64(e.SizeBytes)
	for _, tag := range e.Tags {
		if keys, ok := s.tagIndex[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(s.tagIndex, tag)
			}
		}
	}
	return true
}
