package discovery

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is how often the poller re-runs discovery when no
// filesystem event arrives first.
const DefaultPollInterval = 30 * time.Second

// Poller periodically runs discovery and feeds the result to the
// reconciler. The provider call happens on the poller goroutine, outside
// every registry and engine lock; only the fast ReconcileAll step touches
// shared state.
type Poller struct {
	provider   Provider
	reconciler *Reconciler
	interval   time.Duration
	kick       chan struct{}
}

func NewPoller(provider Provider, reconciler *Reconciler, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		provider:   provider,
		reconciler: reconciler,
		interval:   interval,
		kick:       make(chan struct{}, 1),
	}
}

// Kick requests an immediate discovery round. Safe to call from any
// goroutine; requests arriving while a round is in flight coalesce.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. The first round runs immediately.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("discovery poller started", "interval", p.interval)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.round(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("discovery poller stopped")
			return
		case <-ticker.C:
			p.round(ctx)
		case <-p.kick:
			p.round(ctx)
		}
	}
}

func (p *Poller) round(ctx context.Context) {
	descriptors, err := p.provider.DiscoverAll(ctx)
	if err != nil {
		slog.Error("discovery failed", "error", err)
		return
	}
	p.reconciler.ReconcileAll(descriptors)
}
