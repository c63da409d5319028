// Package circuitbreaker implements per-dependency fault isolation: each
// Breaker wraps calls to one flaky upstream (payment processor, geocoder,
// notification sender) behind a CLOSED/OPEN/HALF_OPEN state machine, and a
// Manager registers breakers by service name with aggregate health
// reporting.
package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Mintenance-LTD/mintenance-sub013/internal/clock"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/logging"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/metrics"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Failing, reject requests
	StateHalfOpen              // Testing recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 30 * time.Second
	defaultMonitoringWindow = 60 * time.Second

	// IsHealthy reports unhealthy once the windowed failure ratio crosses
	// this, even while the breaker is still closed. Ratios over tiny
	// samples are noise, so a minimum observation count applies.
	unhealthyFailureRatio = 0.5
	healthMinObservations = 10
)

// Fallback produces a substitute result when a call is rejected outright.
type Fallback func() (any, error)

// Config is the immutable per-dependency configuration for one Breaker.
// Zero values take defaults; negative values are rejected.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive recognized failures before tripping; default 5
	RecoveryTimeout  time.Duration // cooldown before a half-open trial; default 30s
	MonitoringWindow time.Duration // health observation window; default 60s
	ExpectedErrors   []string      // error matchers per Classify; empty = every error is recognized
	Fallback         Fallback
	Clock            clock.Clock
	Metrics          *metrics.Collector
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("circuit breaker config: name is required")
	}
	if c.FailureThreshold < 0 {
		return fmt.Errorf("circuit breaker %s: failure threshold must not be negative, got %d", c.Name, c.FailureThreshold)
	}
	if c.RecoveryTimeout < 0 {
		return fmt.Errorf("circuit breaker %s: recovery timeout must not be negative, got %s", c.Name, c.RecoveryTimeout)
	}
	if c.MonitoringWindow < 0 {
		return fmt.Errorf("circuit breaker %s: monitoring window must not be negative, got %s", c.Name, c.MonitoringWindow)
	}
	return nil
}

// sample is one completed call observed for windowed health reporting.
type sample struct {
	at     time.Time
	failed bool
}

// Breaker wraps calls to one dependency behind the state machine. All
// counter and state updates happen under one mutex, never held across the
// wrapped operation itself.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	window           time.Duration
	expectedErrors   []string
	fallback         Fallback
	clock            clock.Clock
	collector        *metrics.Collector

	mu            sync.Mutex
	state         State
	failureCount  int
	trialInFlight bool
	trippedAt     time.Time

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	rejectedRequests   int64
	circuitOpenCount   int64
	lastFailureTime    time.Time

	// Running mean over completed operations. Rejected calls never reach
	// the operation and contribute no duration.
	completedOps int64
	avgResponse  time.Duration

	samples []sample
}

// New creates a circuit breaker from config.
func New(cfg Config) (*Breaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	failureThreshold := cfg.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = defaultFailureThreshold
	}
	recoveryTimeout := cfg.RecoveryTimeout
	if recoveryTimeout == 0 {
		recoveryTimeout = defaultRecoveryTimeout
	}
	window := cfg.MonitoringWindow
	if window == 0 {
		window = defaultMonitoringWindow
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	b := &Breaker{
		name:             cfg.Name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		window:           window,
		expectedErrors:   cfg.ExpectedErrors,
		fallback:         cfg.Fallback,
		clock:            clk,
		collector:        cfg.Metrics,
		state:            StateClosed,
	}
	if b.collector != nil {
		b.collector.SetBreakerState(b.name, int(StateClosed))
	}
	return b, nil
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op through the breaker.
//
// While open and inside the recovery timeout, op is never invoked: the
// configured fallback result is returned, or ErrOpen without one. Once the
// timeout elapses, exactly one caller performs the half-open trial that
// decides the next state; concurrent callers are rejected until it
// resolves. Operation errors are always re-raised, but only errors
// recognized by the expected-error matchers add trip pressure.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) (any, error)) (any, error) {
	b.mu.Lock()
	b.totalRequests++

	switch b.state {
	case StateOpen:
		if b.clock.Since(b.trippedAt) < b.recoveryTimeout {
			return b.rejectLocked()
		}
		b.setStateLocked(StateHalfOpen)
		b.trialInFlight = true

	case StateHalfOpen:
		if b.trialInFlight {
			return b.rejectLocked()
		}
		b.trialInFlight = true
	}
	trial := b.state == StateHalfOpen
	b.mu.Unlock()

	trialResolved := false
	if trial {
		// A panicking trial must not pin the slot, or every later call is
		// rejected until a manual reset. The panic itself propagates.
		defer func() {
			if !trialResolved {
				b.mu.Lock()
				b.trialInFlight = false
				b.mu.Unlock()
			}
		}()
	}

	start := b.clock.Now()
	result, err := op(ctx)
	elapsed := b.clock.Since(start)

	b.mu.Lock()
	defer b.mu.Unlock()
	trialResolved = true

	b.completedOps++
	b.avgResponse += (elapsed - b.avgResponse) / time.Duration(b.completedOps)
	if b.collector != nil {
		b.collector.RecordOperation(b.name, elapsed)
	}

	if err != nil {
		b.failedRequests++
		b.lastFailureTime = b.clock.Now()
		b.observeLocked(true)

		if Classify(err, b.expectedErrors) {
			b.failureCount++
			if trial {
				b.trialInFlight = false
				b.setStateLocked(StateOpen)
			} else if b.state == StateClosed && b.failureCount >= b.failureThreshold {
				b.setStateLocked(StateOpen)
			}
		} else if trial {
			// An unrecognized error neither trips nor resets; the trial
			// slot reopens for the next caller.
			b.trialInFlight = false
		}
		return nil, err
	}

	b.successfulRequests++
	b.observeLocked(false)
	if b.failureCount > 0 {
		b.failureCount--
	}
	if trial {
		b.trialInFlight = false
		b.failureCount = 0
		b.setStateLocked(StateClosed)
	}
	return result, nil
}

// rejectLocked serves the fallback or ErrOpen for a call that never reaches
// the operation. Called with b.mu held; releases it.
func (b *Breaker) rejectLocked() (any, error) {
	b.rejectedRequests++
	fb := b.fallback
	b.mu.Unlock()
	if fb != nil {
		return fb()
	}
	return nil, fmt.Errorf("%s: %w", b.name, ErrOpen)
}

// setStateLocked transitions the state machine, recording trip bookkeeping
// and notifying the metrics collector. Caller holds b.mu.
func (b *Breaker) setStateLocked(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next

	switch next {
	case StateOpen:
		b.trippedAt = b.clock.Now()
		if prev == StateClosed {
			b.circuitOpenCount++
		}
		logging.Warn("circuit breaker opened",
			zap.String("service", b.name),
			zap.String("previous", prev.String()),
			zap.Int("failure_count", b.failureCount))
		if b.collector != nil {
			b.collector.RecordBreakerTrip(b.name)
		}
	case StateHalfOpen:
		logging.Info("circuit breaker half-open, probing recovery",
			zap.String("service", b.name))
	case StateClosed:
		logging.Info("circuit breaker closed",
			zap.String("service", b.name),
			zap.String("previous", prev.String()))
	}
	if b.collector != nil {
		b.collector.SetBreakerState(b.name, int(next))
	}
}

// observeLocked appends a health sample and drops those outside the
// monitoring window. Caller holds b.mu.
func (b *Breaker) observeLocked(failed bool) {
	now := b.clock.Now()
	b.samples = append(b.samples, sample{at: now, failed: failed})
	b.pruneLocked(now)
}

func (b *Breaker) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.samples) && !b.samples[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		b.samples = append(b.samples[:0], b.samples[i:]...)
	}
}

// IsHealthy reports false when the breaker is not closed, or when the
// failure ratio across the monitoring window crosses the unhealthy
// threshold even while technically closed.
func (b *Breaker) IsHealthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		return false
	}
	b.pruneLocked(b.clock.Now())
	if len(b.samples) < healthMinObservations {
		return true
	}
	failed := 0
	for _, s := range b.samples {
		if s.failed {
			failed++
		}
	}
	return float64(failed)/float64(len(b.samples)) <= unhealthyFailureRatio
}

// ManualReset forces the breaker closed and zeroes the failure counter,
// regardless of timers. Operator escape hatch.
func (b *Breaker) ManualReset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.trialInFlight = false
	b.samples = b.samples[:0]
	if b.state != StateClosed {
		logging.Info("circuit breaker manually reset",
			zap.String("service", b.name),
			zap.String("previous", b.state.String()))
		b.state = StateClosed
		if b.collector != nil {
			b.collector.SetBreakerState(b.name, int(StateClosed))
		}
	}
}

// Metrics is a point-in-time view of one circuit breaker. It is a copy;
// mutating it never affects the breaker.
type Metrics struct {
	Name                string        `json:"name"`
	State               string        `json:"state"`
	FailureCount        int           `json:"failure_count"`
	FailureThreshold    int           `json:"failure_threshold"`
	TotalRequests       int64         `json:"total_requests"`
	SuccessfulRequests  int64         `json:"successful_requests"`
	FailedRequests      int64         `json:"failed_requests"`
	RejectedRequests    int64         `json:"rejected_requests"`
	CircuitOpenCount    int64         `json:"circuit_open_count"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	LastFailureTime     time.Time     `json:"last_failure_time"` // zero = no failure yet
}

// Metrics returns a snapshot of the breaker's counters and state.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Metrics{
		Name:                b.name,
		State:               b.state.String(),
		FailureCount:        b.failureCount,
		FailureThreshold:    b.failureThreshold,
		TotalRequests:       b.totalRequests,
		SuccessfulRequests:  b.successfulRequests,
		FailedRequests:      b.failedRequests,
		RejectedRequests:    b.rejectedRequests,
		CircuitOpenCount:    b.circuitOpenCount,
		AverageResponseTime: b.avgResponse,
		LastFailureTime:     b.lastFailureTime,
	}
}

// Do runs a typed operation through the breaker. A fallback configured on
// the breaker must produce the same type.
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	v, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return op(ctx)
	})
	if err != nil || v == nil {
		var zero T
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: fallback returned %T", b.name, v)
	}
	return t, nil
}
