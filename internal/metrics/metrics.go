package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Collector tracks cache and circuit breaker metrics for
// Prometheus-compatible export.
type Collector struct {
	mu sync.RWMutex

	// Cache metrics, keyed by cache name
	cacheHits      map[string]int64
	cacheMisses    map[string]int64
	cacheEvictions map[string]int64

	// Circuit breaker state: 0=closed, 1=open, 2=half_open
	breakerState map[string]int
	breakerTrips map[string]int64

	// Wrapped operation durations, keyed by breaker name
	opDurations map[string]*HistogramData
}

// HistogramData stores histogram-like data for durations
type HistogramData struct {
	Count   int64
	Sum     float64
	Buckets map[float64]int64 // upper bound -> count
}

// DefaultBuckets are default histogram buckets in seconds
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		cacheHits:      make(map[string]int64),
		cacheMisses:    make(map[string]int64),
		cacheEvictions: make(map[string]int64),
		breakerState:   make(map[string]int),
		breakerTrips:   make(map[string]int64),
		opDurations:    make(map[string]*HistogramData),
	}
}

// RecordCacheHit records a cache hit
func (c *Collector) RecordCacheHit(cache string) {
	c.mu.Lock()
	c.cacheHits[cache]++
	c.mu.Unlock()
}

// RecordCacheMiss records a cache miss
func (c *Collector) RecordCacheMiss(cache string) {
	c.mu.Lock()
	c.cacheMisses[cache]++
	c.mu.Unlock()
}

// RecordCacheEviction records entries removed by eviction or vacuum
func (c *Collector) RecordCacheEviction(cache string, n int) {
	c.mu.Lock()
	c.cacheEvictions[cache] += int64(n)
	c.mu.Unlock()
}

// SetBreakerState sets the circuit breaker state gauge for a dependency
func (c *Collector) SetBreakerState(name string, state int) {
	c.mu.Lock()
	c.breakerState[name] = state
	c.mu.Unlock()
}

// RecordBreakerTrip records a transition into the open state
func (c *Collector) RecordBreakerTrip(name string) {
	c.mu.Lock()
	c.breakerTrips[name]++
	c.mu.Unlock()
}

// RecordOperation records a completed wrapped operation
func (c *Collector) RecordOperation(name string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hd, ok := c.opDurations[name]
	if !ok {
		hd = &HistogramData{
			Buckets: make(map[float64]int64),
		}
		for _, b := range DefaultBuckets {
			hd.Buckets[b] = 0
		}
		c.opDurations[name] = hd
	}

	secs := duration.Seconds()
	hd.Count++
	hd.Sum += secs
	for _, bound := range DefaultBuckets {
		if secs <= bound {
			hd.Buckets[bound]++
		}
	}
}

// Snapshot holds a point-in-time copy of all metrics
type Snapshot struct {
	CacheHits      map[string]int64              `json:"cache_hits"`
	CacheMisses    map[string]int64              `json:"cache_misses"`
	CacheEvictions map[string]int64              `json:"cache_evictions"`
	BreakerState   map[string]int                `json:"breaker_state"`
	BreakerTrips   map[string]int64              `json:"breaker_trips"`
	OpDurations    map[string]*HistogramSnapshot `json:"operation_durations"`
}

// HistogramSnapshot is a snapshot of histogram data
type HistogramSnapshot struct {
	Count   int64             `json:"count"`
	Sum     float64           `json:"sum"`
	Buckets map[float64]int64 `json:"buckets"`
}

// Snapshot returns a point-in-time snapshot of all metrics
func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := &Snapshot{
		CacheHits:      make(map[string]int64),
		CacheMisses:    make(map[string]int64),
		CacheEvictions: make(map[string]int64),
		BreakerState:   make(map[string]int),
		BreakerTrips:   make(map[string]int64),
		OpDurations:    make(map[string]*HistogramSnapshot),
	}

	for k, v := range c.cacheHits {
		snap.CacheHits[k] = v
	}
	for k, v := range c.cacheMisses {
		snap.CacheMisses[k] = v
	}
	for k, v := range c.cacheEvictions {
		snap.CacheEvictions[k] = v
	}
	for k, v := range c.breakerState {
		snap.BreakerState[k] = v
	}
	for k, v := range c.breakerTrips {
		snap.BreakerTrips[k] = v
	}
	for k, v := range c.opDurations {
		hs := &HistogramSnapshot{
			Count:   v.Count,
			Sum:     v.Sum,
			Buckets: make(map[float64]int64),
		}
		for b, cnt := range v.Buckets {
			hs.Buckets[b] = cnt
		}
		snap.OpDurations[k] = hs
	}

	return snap
}

// WritePrometheus writes metrics in Prometheus text exposition format
func (c *Collector) WritePrometheus(w http.ResponseWriter) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeHelp(w, "resilience_cache_hits_total", "Total cache hits", "counter")
	for cache, count := range c.cacheHits {
		writeMetric(w, "resilience_cache_hits_total", count, "cache", cache)
	}

	writeHelp(w, "resilience_cache_misses_total", "Total cache misses", "counter")
	for cache, count := range c.cacheMisses {
		writeMetric(w, "resilience_cache_misses_total", count, "cache", cache)
	}

	writeHelp(w, "resilience_cache_evictions_total", "Total cache entries evicted", "counter")
	for cache, count := range c.cacheEvictions {
		writeMetric(w, "resilience_cache_evictions_total", count, "cache", cache)
	}

	writeHelp(w, "resilience_breaker_state", "Circuit breaker state (0=closed, 1=open, 2=half_open)", "gauge")
	for name, state := range c.breakerState {
		writeMetric(w, "resilience_breaker_state", int64(state), "service", name)
	}

	writeHelp(w, "resilience_breaker_trips_total", "Total circuit breaker trips", "counter")
	for name, count := range c.breakerTrips {
		writeMetric(w, "resilience_breaker_trips_total", count, "service", name)
	}

	writeHelp(w, "resilience_operation_duration_seconds", "Wrapped operation duration in seconds", "histogram")
	for name, hd := range c.opDurations {
		for _, bound := range DefaultBuckets {
			cnt := hd.Buckets[bound]
			writeMetricFloat(w, "resilience_operation_duration_seconds_bucket", float64(cnt),
				"service", name, "le", strconv.FormatFloat(bound, 'f', -1, 64))
		}
		writeMetricFloat(w, "resilience_operation_duration_seconds_bucket", float64(hd.Count),
			"service", name, "le", "+Inf")
		writeMetricFloat(w, "resilience_operation_duration_seconds_sum", hd.Sum,
			"service", name)
		writeMetric(w, "resilience_operation_duration_seconds_count", hd.Count,
			"service", name)
	}
}

// Handler returns an http.Handler serving the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.WritePrometheus(w)
	})
}

func writeHelp(w http.ResponseWriter, name, help, metricType string) {
	w.Write([]byte("# HELP " + name + " " + help + "\n"))
	w.Write([]byte("# TYPE " + name + " " + metricType + "\n"))
}

func writeMetric(w http.ResponseWriter, name string, value int64, labels ...string) {
	line := name + formatLabels(labels) + " " + strconv.FormatInt(value, 10) + "\n"
	w.Write([]byte(line))
}

func writeMetricFloat(w http.ResponseWriter, name string, value float64, labels ...string) {
	line := name + formatLabels(labels) + " " + strconv.FormatFloat(value, 'f', -1, 64) + "\n"
	w.Write([]byte(line))
}

func formatLabels(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	result := "{"
	for i := 0; i < len(labels)-1; i += 2 {
		if i > 0 {
			result += ","
		}
		result += labels[i] + "=\"" + labels[i+1] + "\""
	}
	return result + "}"
}
