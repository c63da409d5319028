package cache

import (
	"testing"
	"time"

	"github.com/Mintenance-LTD/mintenance-sub013/internal/clock"
)

func testEntry(clk clock.Clock, key string, priority Priority, tags ...string) *Entry {
	now := clk.Now()
	return &Entry{
		Key:            key,
		Value:          []byte(`"` + key + `"`),
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            time.Minute,
		SizeBytes:      len(key) + 2,
		Priority:       priority,
		Tags:           tags,
	}
}

func TestStoreGetBumpsAccess(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(0, nil, clk)

	s.Set(testEntry(clk, "k1", PriorityNormal))

	clk.Advance(time.Second)
	e, ok := s.Get("k1")
	if !ok {
		t.Fatal("expected hit")
	}
	if e.AccessCount != 1 {
		t.Errorf("expected access count 1, got %d", e.AccessCount)
	}
	if !e.LastAccessedAt.Equal(clk.Now()) {
		t.Errorf("expected last access at %v, got %v", clk.Now(), e.LastAccessedAt)
	}
}

func TestStoreExpiredEntryIsMiss(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(0, nil, clk)

	s.Set(testEntry(clk, "k1", PriorityNormal))

	clk.Advance(time.Minute + time.Second)
	if _, ok := s.Get("k1"); ok {
		t.Error("expected expired entry to miss")
	}
	if s.Len() != 0 {
		t.Errorf("expected expired entry removed, len=%d", s.Len())
	}
}

func TestStoreCapacityEvictsLowestPriorityLRU(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(3, nil, clk)

	s.Set(testEntry(clk, "low-old", PriorityLow))
	clk.Advance(time.Second)
	s.Set(testEntry(clk, "low-new", PriorityLow))
	clk.Advance(time.Second)
	s.Set(testEntry(clk, "high", PriorityHigh))

	// Touch low-old so low-new becomes the least recently used... then
	// touch low-new back: LRU within the lowest tier decides.
	clk.Advance(time.Second)
	s.Get("low-new")

	clk.Advance(time.Second)
	s.Set(testEntry(clk, "critical", PriorityCritical))

	if s.Contains("low-old") {
		t.Error("expected low-old (lowest tier, oldest access) to be evicted")
	}
	for _, key := range []string{"low-new", "high", "critical"} {
		if !s.Contains(key) {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
	if s.Evictions() != 1 {
		t.Errorf("expected 1 eviction, got %d", s.Evictions())
	}
}

func TestStoreCapacityPrefersExpired(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(2, nil, clk)

	stale := testEntry(clk, "stale", PriorityCritical)
	stale.TTL = time.Second
	s.Set(stale)
	s.Set(testEntry(clk, "fresh", PriorityLow))

	clk.Advance(2 * time.Second)
	s.Set(testEntry(clk, "new", PriorityLow))

	if s.Contains("stale") {
		t.Error("expected expired entry evicted first despite critical priority")
	}
	if !s.Contains("fresh") || !s.Contains("new") {
		t.Error("expected live entries to survive")
	}
}

func TestStoreDeleteByTag(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(0, nil, clk)

	s.Set(testEntry(clk, "k1", PriorityNormal, "jobs", "user:7"))
	s.Set(testEntry(clk, "k2", PriorityNormal, "jobs"))
	s.Set(testEntry(clk, "k3", PriorityNormal, "bids"))

	removed := s.DeleteByTag("jobs")
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(removed))
	}
	if s.Contains("k1") || s.Contains("k2") {
		t.Error("expected tagged entries removed")
	}
	if !s.Contains("k3") {
		t.Error("expected untagged entry to remain")
	}
	if removed := s.DeleteByTag("jobs"); len(removed) != 0 {
		t.Errorf("expected empty tag index after removal, got %d", len(removed))
	}
}

func TestStoreReplaceUpdatesTagIndexAndMemory(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(0, nil, clk)

	e1 := testEntry(clk, "k1", PriorityNormal, "old-tag")
	e1.SizeBytes = 100
	s.Set(e1)

	e2 := testEntry(clk, "k1", PriorityNormal, "new-tag")
	e2.SizeBytes = 40
	s.Set(e2)

	if got := s.MemoryUsage(); got != 40 {
		t.Errorf("expected memory usage 40, got %d", got)
	}
	if removed := s.DeleteByTag("old-tag"); len(removed) != 0 {
		t.Error("expected old tag index cleaned on replace")
	}
	if removed := s.DeleteByTag("new-tag"); len(removed) != 1 {
		t.Error("expected new tag indexed")
	}
}

type evictAllStrategy struct{ DefaultStrategy }

func (evictAllStrategy) ShouldEvict(e *Entry) bool { return true }

func TestStoreVacuumAppliesStrategy(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(0, nil, clk)

	s.Set(testEntry(clk, "k1", PriorityNormal))
	s.Set(testEntry(clk, "k2", PriorityNormal))

	if removed := s.Vacuum(); len(removed) != 0 {
		t.Errorf("expected nothing removed under default strategy, got %d", len(removed))
	}

	// Swapping the strategy takes effect at the next vacuum, not before.
	s.SetStrategy(evictAllStrategy{})
	if !s.Contains("k1") {
		t.Error("strategy swap must not remove entries before vacuum")
	}

	if removed := s.Vacuum(); len(removed) != 2 {
		t.Errorf("expected 2 removed, got %d", len(removed))
	}
	if s.Len() != 0 {
		t.Errorf("expected empty store, len=%d", s.Len())
	}
}

func TestStoreVacuumRemovesExpired(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	s := NewStore(0, nil, clk)

	short := testEntry(clk, "short", PriorityNormal)
	short.TTL = time.Second
	s.Set(short)
	s.Set(testEntry(clk, "long", PriorityNormal))

	clk.Advance(2 * time.Second)
	removed := s.Vacuum()
	if len(removed) != 1 || removed[0].Key != "short" {
		t.Errorf("expected only short to be vacuumed, got %v", removed)
	}
	if !s.Contains("long") {
		t.Error("expected long to survive vacuum")
	}
}
