package cache

// Strategy is the pluggable admission/eviction policy. The store does not
// care how a strategy decides; it only calls these methods.
type Strategy interface {
	// ShouldCache decides whether a value is admitted at all. Rejected
	// values cause Set to return false with no side effect.
	ShouldCache(key string, value []byte, opts *SetOptions) bool

	// ShouldEvict flags an entry for removal during Vacuum, independent
	// of TTL expiry.
	ShouldEvict(e *Entry) bool

	// RetentionScore ranks entries under capacity pressure; lower scores
	// are evicted first. Ties are broken by oldest LastAccessedAt.
	RetentionScore(e *Entry) float64
}

// DefaultStrategy rejects oversized values and evicts least-recently-used
// entries within the lowest priority tier.
type DefaultStrategy struct{}

func (DefaultStrategy) ShouldCache(key string, value []byte, opts *SetOptions) bool {
	if key == "" {
		return false
	}
	if opts != nil && opts.MaxSize > 0 && len(value) > opts.MaxSize {
		return false
	}
	return true
}

func (DefaultStrategy) ShouldEvict(e *Entry) bool {
	return false
}

func (DefaultStrategy) RetentionScore(e *Entry) float64 {
	return float64(e.Priority)
}
