// Package retry provides an exponential-backoff retry policy for
// zero-argument operations, used to harden fetchers and durable-storage
// calls against transient faults before they ever reach a circuit breaker.
package retry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config configures a Policy. Zero values take defaults.
type Config struct {
	MaxRetries        int           // additional attempts after the first; 0 = no retries
	InitialBackoff    time.Duration // default 100ms
	MaxBackoff        time.Duration // default 10s
	BackoffMultiplier float64       // default 2.0
	PerTryTimeout     time.Duration // 0 = no per-attempt timeout
	Retryable         func(error) bool
}

// Policy implements retry logic with exponential backoff
type Policy struct {
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	PerTryTimeout     time.Duration
	Retryable         func(error) bool
	Metrics           *Metrics
}

// Metrics tracks retry statistics for a policy
type Metrics struct {
	Requests  atomic.Int64
	Retries   atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
}

// Snapshot returns a point-in-time copy of the metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:  m.Requests.Load(),
		Retries:   m.Retries.Load(),
		Successes: m.Successes.Load(),
		Failures:  m.Failures.Load(),
	}
}

// MetricsSnapshot is a point-in-time copy of retry metrics
type MetricsSnapshot struct {
	Requests  int64 `json:"requests"`
	Retries   int64 `json:"retries"`
	Successes int64 `json:"successes"`
	Failures  int64 `json:"failures"`
}

// NewPolicy creates a retry policy from config
func NewPolicy(cfg Config) *Policy {
	p := &Policy{
		MaxRetries:        cfg.MaxRetries,
		InitialBackoff:    cfg.InitialBackoff,
		MaxBackoff:        cfg.MaxBackoff,
		BackoffMultiplier: cfg.BackoffMultiplier,
		PerTryTimeout:     cfg.PerTryTimeout,
		Retryable:         cfg.Retryable,
		Metrics:           &Metrics{},
	}

	if p.InitialBackoff == 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = 10 * time.Second
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = 2.0
	}
	return p
}

// Execute runs op, retrying retryable failures with exponential backoff
// until it succeeds, MaxRetries is exhausted, or ctx is cancelled. An error
// the Retryable predicate rejects is returned immediately.
func (p *Policy) Execute(ctx context.Context, op func(context.Context) error) error {
	p.Metrics.Requests.Add(1)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialBackoff
	bo.MaxInterval = p.MaxBackoff
	bo.Multiplier = p.BackoffMultiplier
	bo.MaxElapsedTime = 0 // attempts are bounded by MaxRetries, not wall clock

	attempt := 0
	err := backoff.Retry(func() error {
		if attempt > 0 {
			p.Metrics.Retries.Add(1)
		}
		attempt++

		err := p.try(ctx, op)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxRetries)), ctx))

	if err != nil {
		p.Metrics.Failures.Add(1)
		return err
	}
	p.Metrics.Successes.Add(1)
	return nil
}

func (p *Policy) try(ctx context.Context, op func(context.Context) error) error {
	if p.PerTryTimeout > 0 {
		tryCtx, cancel := context.WithTimeout(ctx, p.PerTryTimeout)
		defer cancel()
		return op(tryCtx)
	}
	return op(ctx)
}

// Do runs a typed operation under the policy, returning the last
// successful value.
func Do[T any](ctx context.Context, p *Policy, op func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
