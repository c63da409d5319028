// Package app composes the resilience layer from configuration: logger,
// durable Redis storage, named cache managers, the circuit breaker
// registry, and the metrics/health admin surface.
package app

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Mintenance-LTD/mintenance-sub013/cache"
	"github.com/Mintenance-LTD/mintenance-sub013/circuitbreaker"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/clock"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/config"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/logging"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/metrics"
	"github.com/Mintenance-LTD/mintenance-sub013/storage"
)

// App holds the wired resilience components for one process.
type App struct {
	collector *metrics.Collector
	redis     *redis.Client
	caches    map[string]*cache.Manager
	breakers  *circuitbreaker.Manager
}

// New builds an App from config. Caches get the Redis durable fallback
// when redis.address is configured; without it they run memory-only.
func New(cfg *config.Config) (*App, error) {
	a := &App{
		collector: metrics.NewCollector(),
		caches:    make(map[string]*cache.Manager),
	}

	var store storage.Storage
	if cfg.Redis.Address != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:        cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		store = storage.NewRedisStorage(a.redis)
	}

	for name, cc := range cfg.Caches {
		m := cache.NewManager(cache.Options{
			Name:          name,
			MaxEntries:    cc.MaxEntries,
			DefaultTTL:    cc.DefaultTTL,
			MaxValueSize:  cc.MaxValueSize,
			KeyPrefix:     cc.KeyPrefix,
			SweepInterval: cc.SweepInterval,
			Storage:       store,
			Metrics:       a.collector,
		})
		m.StartSweeper()
		a.caches[name] = m
	}

	a.breakers = circuitbreaker.NewManager(clock.Real(), a.collector)
	if err := a.breakers.Reconfigure(breakerConfigs(cfg)); err != nil {
		return nil, err
	}

	logging.Info("resilience layer ready",
		zap.Int("caches", len(a.caches)),
		zap.Int("breakers", len(cfg.Breakers)),
		zap.Bool("durable_storage", store != nil))
	return a, nil
}

func breakerConfigs(cfg *config.Config) []circuitbreaker.Config {
	out := make([]circuitbreaker.Config, 0, len(cfg.Breakers))
	for name, bc := range cfg.Breakers {
		out = append(out, circuitbreaker.Config{
			Name:             name,
			FailureThreshold: bc.FailureThreshold,
			RecoveryTimeout:  bc.RecoveryTimeout,
			MonitoringWindow: bc.MonitoringWindow,
			ExpectedErrors:   bc.ExpectedErrors,
		})
	}
	return out
}

// Cache returns the named cache manager.
func (a *App) Cache(name string) (*cache.Manager, bool) {
	m, ok := a.caches[name]
	return m, ok
}

// Breakers returns the circuit breaker registry.
func (a *App) Breakers() *circuitbreaker.Manager {
	return a.breakers
}

// ApplyConfig applies a reloaded config. Breaker configs are replaced per
// name; cache topology changes require a restart and are logged, not
// applied.
func (a *App) ApplyConfig(cfg *config.Config) {
	if err := a.breakers.Reconfigure(breakerConfigs(cfg)); err != nil {
		logging.Error("breaker reconfigure failed", zap.Error(err))
		return
	}
	for name := range cfg.Caches {
		if _, ok := a.caches[name]; !ok {
			logging.Warn("new cache in reloaded config requires restart",
				zap.String("cache", name))
		}
	}
}

// Handler returns the admin surface: Prometheus metrics, breaker health,
// and cache statistics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.collector.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := a.breakers.HealthStatus()
		code := http.StatusOK
		for _, h := range status {
			if !h.Healthy {
				code = http.StatusServiceUnavailable
				break
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := make(map[string]cache.Stats, len(a.caches))
		for name, m := range a.caches {
			stats[name] = m.Stats()
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(struct {
			Caches   map[string]cache.Stats            `json:"caches"`
			Breakers map[string]circuitbreaker.Metrics `json:"breakers"`
		}{Caches: stats, Breakers: a.breakers.AllMetrics()})
	})

	return mux
}

// Close stops sweepers and releases the Redis connection.
func (a *App) Close(ctx context.Context) error {
	for _, m := range a.caches {
		m.StopSweeper()
	}
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
