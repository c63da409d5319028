package cache

import (
	"testing"
	"time"
)

func TestDefaultStrategyShouldCache(t *testing.T) {
	s := DefaultStrategy{}

	if s.ShouldCache("", []byte("v"), &SetOptions{}) {
		t.Error("expected empty key rejected")
	}
	if !s.ShouldCache("k", []byte("v"), &SetOptions{}) {
		t.Error("expected plain value accepted")
	}
	if s.ShouldCache("k", []byte("12345"), &SetOptions{MaxSize: 4}) {
		t.Error("expected oversized value rejected")
	}
	if !s.ShouldCache("k", []byte("12345"), &SetOptions{MaxSize: 0}) {
		t.Error("expected zero cap to mean unbounded")
	}
}

func TestDefaultStrategyRetentionScoreOrdersByPriority(t *testing.T) {
	s := DefaultStrategy{}
	now := time.Unix(1700000000, 0)

	low := &Entry{Key: "a", Priority: PriorityLow, LastAccessedAt: now}
	critical := &Entry{Key: "b", Priority: PriorityCritical, LastAccessedAt: now}

	if s.RetentionScore(low) >= s.RetentionScore(critical) {
		t.Error("expected lower priority to score lower (evicted first)")
	}
	if s.ShouldEvict(low) {
		t.Error("default strategy never flags entries for eviction")
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]Priority{
		"low":      PriorityLow,
		"normal":   PriorityNormal,
		"high":     PriorityHigh,
		"critical": PriorityCritical,
		"":         PriorityNormal,
		"bogus":    PriorityNormal,
	}
	for in, want := range cases {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
}
