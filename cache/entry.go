package cache

import "time"

// Priority is the eviction tie-breaker for cache entries. Higher priority
// entries are kept longer under capacity pressure.
type Priority int

// The zero value is "unset" and is normalized to PriorityNormal, so a
// caller who leaves SetOptions.Priority blank gets the default rather
// than the lowest tier.
const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a config string to a Priority. Unknown values map
// to PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// Entry is one cached value with its metadata. Entries are owned by the
// Store and mutated only under its lock.
type Entry struct {
	Key            string
	Value          []byte // serialized payload
	CreatedAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	TTL            time.Duration // 0 = never expires
	SizeBytes      int
	Priority       Priority
	Tags           []string
	PersistToDisk  bool
}

// Expired reports whether the entry's TTL has elapsed at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}
