package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Mintenance-LTD/mintenance-sub013/internal/clock"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/metrics"
)

func newTestManager(t *testing.T) (*Manager, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock(time.Unix(1700000000, 0))
	return NewManager(clk, nil), clk
}

func TestManagerExecuteByName(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Create(Config{Name: "geocoder"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	v, err := m.Execute(context.Background(), "geocoder", okOp)
	if err != nil || v != "ok" {
		t.Errorf("expected delegation to the breaker, got %v, %v", v, err)
	}
}

func TestManagerExecuteUnknownNameFailsFast(t *testing.T) {
	m, _ := newTestManager(t)

	invoked := false
	_, err := m.Execute(context.Background(), "nope", func(ctx context.Context) (any, error) {
		invoked = true
		return nil, nil
	})
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
	if errors.Is(err, ErrOpen) {
		t.Error("not-found must be distinct from open-circuit rejection")
	}
	if invoked {
		t.Error("operation must not run for an unknown name")
	}
}

func TestManagerCreateReplaces(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Create(Config{Name: "payments", FailureThreshold: 1})
	m.Execute(ctx, "payments", failOp)

	b, ok := m.Get("payments")
	if !ok || b.State() != StateOpen {
		t.Fatal("expected tripped breaker")
	}

	// Re-creating under the same name starts from a clean slate.
	m.Create(Config{Name: "payments", FailureThreshold: 1})
	b, _ = m.Get("payments")
	if b.State() != StateClosed {
		t.Errorf("expected fresh breaker after replace, got %v", b.State())
	}
	if b.Metrics().TotalRequests != 0 {
		t.Error("expected counters reset on replace")
	}
}

func TestManagerAllMetrics(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Create(Config{Name: "payments"})
	m.Create(Config{Name: "geocoder"})
	m.Execute(ctx, "payments", okOp)

	all := m.AllMetrics()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all["payments"].TotalRequests != 1 || all["geocoder"].TotalRequests != 0 {
		t.Errorf("unexpected per-breaker counters: %+v", all)
	}
}

func TestManagerHealthStatus(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Create(Config{Name: "payments", FailureThreshold: 1})
	m.Create(Config{Name: "geocoder"})
	m.Execute(ctx, "payments", failOp)

	status := m.HealthStatus()
	if status["payments"].Healthy || status["payments"].State != "open" {
		t.Errorf("expected payments unhealthy and open, got %+v", status["payments"])
	}
	if !status["geocoder"].Healthy || status["geocoder"].State != "closed" {
		t.Errorf("expected geocoder healthy and closed, got %+v", status["geocoder"])
	}
}

func TestManagerResetAll(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	m.Create(Config{Name: "payments", FailureThreshold: 1})
	m.Create(Config{Name: "geocoder", FailureThreshold: 1})
	m.Execute(ctx, "payments", failOp)
	m.Execute(ctx, "geocoder", failOp)

	m.ResetAll()

	for _, name := range []string{"payments", "geocoder"} {
		b, _ := m.Get(name)
		if b.State() != StateClosed {
			t.Errorf("expected %s closed after reset, got %v", name, b.State())
		}
	}
}

func TestManagerReconfigure(t *testing.T) {
	m, _ := newTestManager(t)

	m.Create(Config{Name: "payments", FailureThreshold: 1})
	m.Create(Config{Name: "geocoder", FailureThreshold: 1})

	err := m.Reconfigure([]Config{{Name: "payments", FailureThreshold: 9}})
	if err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}

	b, _ := m.Get("payments")
	if b.failureThreshold != 9 {
		t.Errorf("expected reconfigured threshold 9, got %d", b.failureThreshold)
	}
	if _, ok := m.Get("geocoder"); !ok {
		t.Error("expected unnamed breakers left untouched")
	}

	if err := m.Reconfigure([]Config{{Name: ""}}); err == nil {
		t.Error("expected invalid config rejected")
	}
}

func TestManagerPropagatesCollector(t *testing.T) {
	clk := clock.NewMock(time.Unix(1700000000, 0))
	c := metrics.NewCollector()
	m := NewManager(clk, c)
	ctx := context.Background()

	m.Create(Config{Name: "payments", FailureThreshold: 1})
	m.Execute(ctx, "payments", failOp)

	snap := c.Snapshot()
	if snap.BreakerState["payments"] != int(StateOpen) {
		t.Errorf("expected collector to see the open state, got %d", snap.BreakerState["payments"])
	}
	if snap.BreakerTrips["payments"] != 1 {
		t.Errorf("expected 1 recorded trip, got %d", snap.BreakerTrips["payments"])
	}
}
