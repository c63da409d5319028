// Package cache implements the client-side caching tier: an in-memory
// store with strategy-driven eviction, fronted by a Manager that adds an
// optional durable-storage fallback, warmup/prefetch, tag-based bulk
// invalidation, and usage statistics.
//
// Cache faults are always recovered locally: durable-storage failures
// degrade to a miss on reads and a reported failure on writes, never to a
// propagated error.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Mintenance-LTD/mintenance-sub013/internal/clock"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/logging"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/metrics"
	"github.com/Mintenance-LTD/mintenance-sub013/storage"
)

// DefaultTTL applies when neither the manager nor a Set call specifies one.
const DefaultTTL = 5 * time.Minute

// SetOptions controls how one value is cached. A nil *SetOptions means
// all defaults.
type SetOptions struct {
	TTL           time.Duration // 0 = manager default; negative = never expires
	Priority      Priority      // zero value = PriorityNormal
	Tags          []string
	PersistToDisk bool
	MaxSize       int // max serialized bytes; 0 = manager default
}

// Options configures a Manager.
type Options struct {
	Name          string // used in log fields, metrics labels, and the durable key prefix
	MaxEntries    int    // in-memory capacity; 0 = unbounded
	DefaultTTL    time.Duration
	MaxValueSize  int           // default per-entry size cap; 0 = unbounded
	KeyPrefix     string        // durable key namespace; default "mintenance:cache:<name>:"
	SweepInterval time.Duration // periodic vacuum interval; 0 = 1 minute
	Storage       storage.Storage
	Strategy      Strategy
	Clock         clock.Clock
	Metrics       *metrics.Collector
}

// Fetcher produces the value for a key during warmup and prefetch.
type Fetcher func(ctx context.Context, key string) (any, error)

// Manager is the public cache façade.
type Manager struct {
	name         string
	store        *Store
	storage      storage.Storage
	prefix       string
	defaultTTL   time.Duration
	maxValueSize int
	clock        clock.Clock
	collector    *metrics.Collector

	group singleflight.Group

	requests atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64

	sweepMu       sync.Mutex
	sweepInterval time.Duration
	sweepStop     chan struct{}
}

// NewManager creates a cache manager from options.
func NewManager(opts Options) *Manager {
	name := opts.Name
	if name == "" {
		name = "default"
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	defaultTTL := opts.DefaultTTL
	if defaultTTL == 0 {
		defaultTTL = DefaultTTL
	}

	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "mintenance:cache:" + name + ":"
	}

	sweepInterval := opts.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}

	return &Manager{
		name:          name,
		store:         NewStore(opts.MaxEntries, opts.Strategy, clk),
		storage:       opts.Storage,
		prefix:        prefix,
		defaultTTL:    defaultTTL,
		maxValueSize:  opts.MaxValueSize,
		clock:         clk,
		collector:     opts.Metrics,
		sweepInterval: sweepInterval,
	}
}

// durableRecord is the JSON envelope written to durable storage. It carries
// its own creation time and TTL so expiry is decided from the record alone.
type durableRecord struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	TTL       time.Duration   `json:"ttl"`
	Tags      []string        `json:"tags,omitempty"`
	Priority  string          `json:"priority,omitempty"`
}

// Set caches a value under key. It returns false, with no partial-success
// guarantees, when the value fails serialization, the strategy rejects it,
// the serialized size exceeds the cap, or a requested durable write fails.
func (m *Manager) Set(ctx context.Context, key string, value any, opts *SetOptions) bool {
	data, err := json.Marshal(value)
	if err != nil {
		logging.Warn("cache value serialization failed",
			zap.String("cache", m.name), zap.String("key", key), zap.Error(err))
		return false
	}
	return m.setBytes(ctx, key, data, m.normalize(opts))
}

func (m *Manager) setBytes(ctx context.Context, key string, data []byte, o *SetOptions) bool {
	if !m.store.Admit(key, data, o) {
		return false
	}

	now := m.clock.Now()
	e := &Entry{
		Key:            key,
		Value:          data,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            o.TTL,
		SizeBytes:      len(data),
		Priority:       o.Priority,
		Tags:           o.Tags,
		PersistToDisk:  o.PersistToDisk,
	}
	m.store.Set(e)

	if o.PersistToDisk {
		if m.storage == nil {
			logging.Warn("persist requested but no durable storage configured",
				zap.String("cache", m.name), zap.String("key", key))
			return false
		}
		blob, err := json.Marshal(durableRecord{
			Value:     data,
			CreatedAt: now,
			TTL:       o.TTL,
			Tags:      o.Tags,
			Priority:  o.Priority.String(),
		})
		if err != nil {
			return false
		}
		if err := m.storage.Write(ctx, m.prefix+key, blob); err != nil {
			logging.Warn("durable cache write failed",
				zap.String("cache", m.name), zap.String("key", key), zap.Error(err))
			return false
		}
	}
	return true
}

// Get resolves key and, when found, unmarshals the cached value into dest
// (dest may be nil for a pure existence check). In-memory entries are
// consulted first; on a miss the durable fallback is read and, if live,
// rehydrated into the in-memory store. Corrupt durable payloads are
// misses, never errors.
func (m *Manager) Get(ctx context.Context, key string, dest any) bool {
	m.requests.Add(1)

	data, ok := m.lookup(ctx, key)
	if !ok {
		m.recordMiss()
		return false
	}
	if dest != nil {
		if err := json.Unmarshal(data, dest); err != nil {
			m.recordMiss()
			return false
		}
	}
	m.recordHit()
	return true
}

// lookup resolves the raw serialized value without touching hit/miss
// counters. Durable-storage I/O runs outside the store lock.
func (m *Manager) lookup(ctx context.Context, key string) ([]byte, bool) {
	if e, ok := m.store.Get(key); ok {
		return e.Value, true
	}
	if m.storage == nil {
		return nil, false
	}

	blob, err := m.storage.Read(ctx, m.prefix+key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logging.Warn("durable cache read failed, treating as miss",
				zap.String("cache", m.name), zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}

	var rec durableRecord
	if err := json.Unmarshal(blob, &rec); err != nil {
		logging.Warn("durable cache decode failed, treating as miss",
			zap.String("cache", m.name), zap.String("key", key), zap.Error(err))
		return nil, false
	}

	now := m.clock.Now()
	if rec.TTL > 0 && now.Sub(rec.CreatedAt) > rec.TTL {
		return nil, false
	}

	e := &Entry{
		Key:            key,
		Value:          []byte(rec.Value),
		CreatedAt:      rec.CreatedAt,
		LastAccessedAt: now,
		AccessCount:    1,
		TTL:            rec.TTL,
		SizeBytes:      len(rec.Value),
		Priority:       ParsePriority(rec.Priority),
		Tags:           rec.Tags,
		PersistToDisk:  true,
	}
	m.store.Set(e)
	return e.Value, true
}

// GetOrFetch resolves key, invoking fetch on a miss and caching the result.
// Concurrent calls for the same key share a single fetch; coalesced callers
// also share the group's single statistical request.
func (m *Manager) GetOrFetch(ctx context.Context, key string, dest any, fetch func(context.Context) (any, error), opts *SetOptions) error {
	v, err, _ := m.group.Do(key, func() (any, error) {
		m.requests.Add(1)
		if data, ok := m.lookup(ctx, key); ok {
			m.recordHit()
			return data, nil
		}
		m.recordMiss()

		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		m.setBytes(ctx, key, data, m.normalize(opts))
		return data, nil
	})
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	return json.Unmarshal(v.([]byte), dest)
}

// Invalidate removes the in-memory entry and any durable copy, reporting
// whether anything was removed.
func (m *Manager) Invalidate(ctx context.Context, key string) bool {
	removed := m.store.Delete(key)
	if m.storage != nil {
		durableRemoved, err := m.storage.Remove(ctx, m.prefix+key)
		if err != nil {
			logging.Warn("durable cache delete failed",
				zap.String("cache", m.name), zap.String("key", key), zap.Error(err))
		} else if durableRemoved {
			removed = true
		}
	}
	return removed
}

// InvalidateByTag removes every entry whose tag set contains tag, in
// memory and in durable storage, and returns the count of distinct keys
// removed. Durable records are matched by scanning the manager's prefix
// and decoding each envelope's tag set, so a tagged record whose memory
// entry was already evicted is still removed.
func (m *Manager) InvalidateByTag(ctx context.Context, tag string) int {
	removed := m.store.DeleteByTag(tag)

	seen := make(map[string]struct{}, len(removed))
	for _, e := range removed {
		seen[e.Key] = struct{}{}
	}

	if m.storage != nil {
		durable := m.durableKeysWithTag(ctx, tag)
		if len(durable) > 0 {
			if err := m.storage.RemoveMany(ctx, durable); err != nil {
				logging.Warn("durable cache bulk delete failed",
					zap.String("cache", m.name), zap.String("tag", tag), zap.Error(err))
			} else {
				for _, k := range durable {
					seen[strings.TrimPrefix(k, m.prefix)] = struct{}{}
				}
			}
		}
	}
	return len(seen)
}

// durableKeysWithTag scans the manager's durable prefix and returns the
// keys whose record carries tag. Unreadable or corrupt records are
// skipped; they cannot be matched and are pruned by Clear or on expiry.
func (m *Manager) durableKeysWithTag(ctx context.Context, tag string) []string {
	keys, err := m.storage.ListKeys(ctx, m.prefix)
	if err != nil {
		logging.Warn("durable cache tag scan failed",
			zap.String("cache", m.name), zap.String("tag", tag), zap.Error(err))
		return nil
	}

	var matched []string
	for _, k := range keys {
		blob, err := m.storage.Read(ctx, k)
		if err != nil {
			continue
		}
		var rec durableRecord
		if err := json.Unmarshal(blob, &rec); err != nil {
			continue
		}
		for _, t := range rec.Tags {
			if t == tag {
				matched = append(matched, k)
				break
			}
		}
	}
	return matched
}

// Clear empties the in-memory store, resets statistics, and removes every
// durable record under this manager's key prefix. Unrelated durable keys
// are never touched.
func (m *Manager) Clear(ctx context.Context) {
	m.store.Purge()
	m.requests.Store(0)
	m.hits.Store(0)
	m.misses.Store(0)

	if m.storage == nil {
		return
	}
	keys, err := m.storage.ListKeys(ctx, m.prefix)
	if err != nil {
		logging.Warn("durable cache clear scan failed",
			zap.String("cache", m.name), zap.Error(err))
		return
	}
	if err := m.storage.RemoveMany(ctx, keys); err != nil {
		logging.Warn("durable cache clear failed",
			zap.String("cache", m.name), zap.Error(err))
	}
}

// Warmup fetches and caches each key, skipping keys whose fetch fails.
// One failing key never aborts the batch. Returns the number of keys
// successfully warmed.
func (m *Manager) Warmup(ctx context.Context, keys []string, fetch Fetcher) int {
	warmed := 0
	for _, key := range keys {
		val, err := fetch(ctx, key)
		if err != nil {
			logging.Warn("cache warmup fetch failed",
				zap.String("cache", m.name), zap.String("key", key), zap.Error(err))
			continue
		}
		if m.Set(ctx, key, val, nil) {
			warmed++
		}
	}
	return warmed
}

// Prefetch is Warmup for keys not already live in the cache. Returns the
// number of keys actually fetched and cached.
func (m *Manager) Prefetch(ctx context.Context, keys []string, fetch Fetcher) int {
	fetched := 0
	for _, key := range keys {
		if m.store.Contains(key) {
			continue
		}
		val, err := fetch(ctx, key)
		if err != nil {
			logging.Warn("cache prefetch fetch failed",
				zap.String("cache", m.name), zap.String("key", key), zap.Error(err))
			continue
		}
		if m.Set(ctx, key, val, nil) {
			fetched++
		}
	}
	return fetched
}

// Vacuum sweeps the store, removing entries expired by TTL or flagged by
// the active strategy, and returns the removed count.
func (m *Manager) Vacuum() int {
	removed := m.store.Vacuum()
	if m.collector != nil && len(removed) > 0 {
		m.collector.RecordCacheEviction(m.name, len(removed))
	}
	return len(removed)
}

// SetStrategy swaps the active eviction strategy. Existing entries are not
// re-evaluated until the next Vacuum.
func (m *Manager) SetStrategy(strategy Strategy) {
	m.store.SetStrategy(strategy)
}

// StartSweeper begins periodic vacuuming at the configured interval.
// Calling it while a sweeper is running is a no-op.
func (m *Manager) StartSweeper() {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.sweepStop != nil {
		return
	}
	stop := make(chan struct{})
	m.sweepStop = stop

	go func() {
		ticker := time.NewTicker(m.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Vacuum(); n > 0 {
					logging.Debug("cache sweep removed entries",
						zap.String("cache", m.name), zap.Int("removed", n))
				}
			case <-stop:
				return
			}
		}
	}()
}

// StopSweeper stops periodic vacuuming. Vacuum still runs on explicit
// invocation.
func (m *Manager) StopSweeper() {
	m.sweepMu.Lock()
	defer m.sweepMu.Unlock()

	if m.sweepStop != nil {
		close(m.sweepStop)
		m.sweepStop = nil
	}
}

// Stats holds derived usage statistics, accumulated for the manager's
// lifetime and reset only by Clear.
type Stats struct {
	TotalRequests int64   `json:"total_requests"`
	TotalHits     int64   `json:"total_hits"`
	TotalMisses   int64   `json:"total_misses"`
	HitRate       float64 `json:"hit_rate"`
	MissRate      float64 `json:"miss_rate"`
	EntryCount    int     `json:"entry_count"`
	MemoryUsage   int64   `json:"memory_usage"`
	Evictions     int64   `json:"evictions"`
}

// Stats computes the current usage statistics.
func (m *Manager) Stats() Stats {
	s := Stats{
		TotalRequests: m.requests.Load(),
		TotalHits:     m.hits.Load(),
		TotalMisses:   m.misses.Load(),
		EntryCount:    m.store.Len(),
		MemoryUsage:   m.store.MemoryUsage(),
		Evictions:     m.store.Evictions(),
	}
	if s.TotalRequests > 0 {
		s.HitRate = float64(s.TotalHits) / float64(s.TotalRequests)
		s.MissRate = 1 - s.HitRate
	}
	return s
}

func (m *Manager) recordHit() {
	m.hits.Add(1)
	if m.collector != nil {
		m.collector.RecordCacheHit(m.name)
	}
}

func (m *Manager) recordMiss() {
	m.misses.Add(1)
	if m.collector != nil {
		m.collector.RecordCacheMiss(m.name)
	}
}

// normalize applies manager defaults to per-call options.
func (m *Manager) normalize(opts *SetOptions) *SetOptions {
	o := &SetOptions{
		TTL:      m.defaultTTL,
		Priority: PriorityNormal,
		MaxSize:  m.maxValueSize,
	}
	if opts == nil {
		return o
	}
	if opts.TTL < 0 {
		o.TTL = 0 // never expires
	} else if opts.TTL > 0 {
		o.TTL = opts.TTL
	}
	if opts.Priority != 0 {
		o.Priority = opts.Priority
	}
	if opts.MaxSize != 0 {
		o.MaxSize = opts.MaxSize
	}
	o.Tags = opts.Tags
	o.PersistToDisk = opts.PersistToDisk
	return o
}
