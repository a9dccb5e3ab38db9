package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PurgeFunc removes a removed session's dependent state (vector store,
// uploaded files). It is called once per expired key.
type PurgeFunc func(ctx context.Context, key string)

// Sweeper drives session expiry.
//
// Two independent mechanisms trigger a sweep: a periodic timer (primary) and
// an opportunistic per-request probability check (secondary, see MaybeSweep).
// Neither guarantees sub-hour precision; the contract is eventual cleanup.
type Sweeper struct {
	registry    *Registry
	purge       PurgeFunc
	interval    time.Duration
	probability float64
	logger      *zap.Logger

	mu sync.Mutex // serializes concurrent sweeps
}

// NewSweeper creates a sweeper. purge may be nil when no dependent state
// needs removal (tests).
func NewSweeper(registry *Registry, purge PurgeFunc, interval time.Duration, probability float64, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		registry:    registry,
		purge:       purge,
		interval:    interval,
		probability: probability,
		logger:      logger,
	}
}

// Run sweeps immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.SweepNow(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepNow(ctx)
		}
	}
}

// SweepNow performs one sweep and purges dependent state for removed keys.
func (s *Sweeper) SweepNow(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.registry.Sweep(timeNow())
	for _, key := range removed {
		s.logger.Info("purging expired session", zap.String("session_id", key))
		if s.purge != nil {
			s.purge(ctx, key)
		}
	}
}

// MaybeSweep runs an asynchronous sweep with the configured probability.
// Intended to be called from request handling; never blocks the caller.
func (s *Sweeper) MaybeSweep(ctx context.Context) {
	if s.probability <= 0 || rand.Float64() >= s.probability {
		return
	}
	go s.SweepNow(context.WithoutCancel(ctx))
}
