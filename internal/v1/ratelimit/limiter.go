// Package ratelimit implements sliding-window counters for discovery-probe
// throttling, handshake throttling, and the per-device NV request rate
// monitor (§4.7.2). Grounded on the teacher's limiter.go: ulule/limiter/v3
// with a pluggable store, a memory store by default, and an optional Redis
// store for sharing counters across hub processes behind a load balancer.
// Unlike the teacher, Redis here is used only for rate accounting, never
// for room or NV state, and a gobreaker circuit breaker wraps the Redis store
// so an outage fails open: requests are allowed without being counted
// instead of ingress traffic being rejected.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/metrics"
	"github.com/vrnetsync/hub/internal/v1/types"
	"go.uber.org/zap"
)

// Config carries the three sliding-window rates this package enforces, in
// ulule/limiter's "<count>-<period>" format (e.g. "200-S" for 200 req/s).
type Config struct {
	DiscoveryProbeRate string
	HandshakeRate      string
	NVMonitorRate      string
}

// DefaultConfig matches the settings table's nv_monitor_threshold default
// (200 req/s) plus conservative defaults for the two throttle-only counters.
func DefaultConfig() Config {
	return Config{
		DiscoveryProbeRate: "20-S",
		HandshakeRate:      "10-S",
		NVMonitorRate:      "200-S",
	}
}

// Limiter groups the three sliding-window counters. Its Allow method
// satisfies discovery.AbuseLimiter; its Observe method satisfies
// transport.Monitor; HandshakeGate adapts it to transport.HandshakeLimiter.
// The three counters share one store and are kept apart by a per-counter
// key prefix.
type Limiter struct {
	discoveryProbe *limiter.Limiter
	handshake      *limiter.Limiter
	nvMonitor      *limiter.Limiter
}

// breakerStore wraps a limiter.Store's Get (the only call on the hot path)
// with a circuit breaker so a failing backing store fails open.
type breakerStore struct {
	inner   limiter.Store
	breaker *gobreaker.CircuitBreaker
}

func newBreakerStore(inner limiter.Store) *breakerStore {
	st := gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 5,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var v float64
			switch to {
			case gobreaker.StateOpen:
				v = 1
			case gobreaker.StateHalfOpen:
				v = 2
			}
			metrics.RateLimitStoreState.Set(v)
		},
	}
	return &breakerStore{inner: inner, breaker: gobreaker.NewCircuitBreaker(st)}
}

func (s *breakerStore) Get(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.Get(ctx, key, rate)
	})
	if err != nil {
		return limiter.Context{Reached: false}, nil // fail open
	}
	return res.(limiter.Context), nil
}

func (s *breakerStore) Peek(ctx context.Context, key string, rate limiter.Rate) (limiter.Context, error) {
	return s.inner.Peek(ctx, key, rate)
}

func (s *breakerStore) Increment(ctx context.Context, key string, count int64, rate limiter.Rate) (limiter.Context, error) {
	return s.inner.Increment(ctx, key, count, rate)
}

// New builds a Limiter. redisClient may be nil, in which case every counter
// falls back to an in-memory store (single-process accounting only).
func New(cfg Config, redisClient *redis.Client) (*Limiter, error) {
	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{Prefix: "netsync:ratelimit:"})
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
		store = newBreakerStore(s)
		logging.Info(context.Background(), "rate limiter using redis store")
	} else {
		store = memory.NewStore()
		logging.Info(context.Background(), "rate limiter using in-memory store")
	}

	discoveryRate, err := limiter.NewRateFromFormatted(cfg.DiscoveryProbeRate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: discovery probe rate: %w", err)
	}
	handshakeRate, err := limiter.NewRateFromFormatted(cfg.HandshakeRate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: handshake rate: %w", err)
	}
	nvRate, err := limiter.NewRateFromFormatted(cfg.NVMonitorRate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: nv monitor rate: %w", err)
	}

	return &Limiter{
		discoveryProbe: limiter.New(store, discoveryRate),
		handshake:      limiter.New(store, handshakeRate),
		nvMonitor:      limiter.New(store, nvRate),
	}, nil
}

// Allow satisfies discovery.AbuseLimiter, keyed by the probe's source IP.
func (l *Limiter) Allow(key string) bool {
	return l.check(l.discoveryProbe, "discovery_probe", key)
}

// HandshakeGate adapts this Limiter to transport.HandshakeLimiter without
// reusing the Allow method name, since a Hub and a discovery.Responder may
// share one Limiter for two distinct counters.
type HandshakeGate struct{ L *Limiter }

// Allow satisfies transport.HandshakeLimiter, keyed by device id.
func (h HandshakeGate) Allow(key string) bool {
	return h.L.check(h.L.handshake, "handshake", key)
}

// Observe satisfies transport.Monitor: reports whether deviceID's NV
// request rate has crossed the monitor threshold. Monitoring only — the
// caller never blocks ingress on this result (§4.7.2).
func (l *Limiter) Observe(deviceID types.DeviceID, _ time.Time) (exceeded bool) {
	return !l.check(l.nvMonitor, "nv_monitor", string(deviceID))
}

func (l *Limiter) check(lim *limiter.Limiter, name, key string) bool {
	lc, err := lim.Get(context.Background(), name+":"+key)
	if err != nil {
		logging.Warn(context.Background(), "rate limiter store error, failing open", zap.String("limiter", name), zap.Error(err))
		return true
	}
	if lc.Reached {
		metrics.RateLimitRejected.WithLabelValues(name).Inc()
		return false
	}
	return true
}
