package circuitbreaker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Mintenance-LTD/mintenance-sub013/internal/clock"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/logging"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/metrics"
)

// Manager is a registry of circuit breakers keyed by service name. It is
// constructed once at application start and passed to call sites; there is
// no process-wide default instance.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	clock     clock.Clock
	collector *metrics.Collector
}

// NewManager creates an empty registry. clk and collector may be nil; they
// are applied to breakers created through this manager unless the config
// sets its own.
func NewManager(clk clock.Clock, collector *metrics.Collector) *Manager {
	return &Manager{
		breakers:  make(map[string]*Breaker),
		clock:     clk,
		collector: collector,
	}
}

// Create registers a breaker for cfg.Name, replacing any existing breaker
// with that name, and returns it.
func (m *Manager) Create(cfg Config) (*Breaker, error) {
	if cfg.Clock == nil {
		cfg.Clock = m.clock
	}
	if cfg.Metrics == nil {
		cfg.Metrics = m.collector
	}
	b, err := New(cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	_, replaced := m.breakers[cfg.Name]
	m.breakers[cfg.Name] = b
	m.mu.Unlock()

	if replaced {
		logging.Info("circuit breaker replaced", zap.String("service", cfg.Name))
	}
	return b, nil
}

// Get returns the breaker registered for name.
func (m *Manager) Get(name string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[name]
	return b, ok
}

// Execute runs op through the breaker registered for name. An unknown name
// fails fast with ErrNotRegistered, which is distinct from the open-circuit
// rejection.
func (m *Manager) Execute(ctx context.Context, name string, op func(context.Context) (any, error)) (any, error) {
	b, ok := m.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotRegistered)
	}
	return b.Execute(ctx, op)
}

// AllMetrics returns a snapshot per registered breaker.
func (m *Manager) AllMetrics() map[string]Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Metrics, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.Metrics()
	}
	return out
}

// Health pairs a breaker's health verdict with its state.
type Health struct {
	Healthy bool   `json:"healthy"`
	State   string `json:"state"`
}

// HealthStatus returns the health verdict per registered breaker.
func (m *Manager) HealthStatus() map[string]Health {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Health, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = Health{Healthy: b.IsHealthy(), State: b.State().String()}
	}
	return out
}

// ResetAll manually resets every registered breaker.
func (m *Manager) ResetAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, b := range m.breakers {
		b.ManualReset()
	}
	logging.Info("all circuit breakers reset", zap.Int("count", len(m.breakers)))
}

// Reconfigure replaces the breakers named in cfgs with fresh ones built
// from the new configs. Breakers not named are left untouched; replaced
// breakers lose their accumulated state. Used on config reload.
func (m *Manager) Reconfigure(cfgs []Config) error {
	for _, cfg := range cfgs {
		if _, err := m.Create(cfg); err != nil {
			return err
		}
	}
	return nil
}
