package services

import (
	"context"
	"sync"
	"time"

	"github.com/tbag/core/internal/infrastructure/logger"
)

// IndexRefresher rebuilds the index on a fixed interval and on demand.
// It is an owned task: Start launches it, Stop cancels it and waits.
type IndexRefresher struct {
	index    *IndexService
	interval time.Duration
	logger   *logger.Logger

	trigger chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewIndexRefresher creates a refresher for index
func NewIndexRefresher(index *IndexService, interval time.Duration, logger *logger.Logger) *IndexRefresher {
	if interval <= 0 {
		interval = time.Minute
	}
	return &IndexRefresher{
		index:    index,
		interval: interval,
		logger:   logger.WithComponent("index-refresher"),
		trigger:  make(chan struct{}, 1),
	}
}

// Start runs the refresh loop in the background until ctx is cancelled or
// Stop is called. Calling Start twice is a no-op.
func (r *IndexRefresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx, r.done)

	r.logger.Infow("Index refresher started", "interval", r.interval.String())
}

// Stop cancels the loop and waits for an in-flight rebuild to finish
func (r *IndexRefresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	r.logger.Infow("Index refresher stopped")
}

// Trigger requests a rebuild outside the regular schedule. Requests made
// while one is already pending are merged.
func (r *IndexRefresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *IndexRefresher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.rebuild(ctx, "interval")
		case <-r.trigger:
			r.rebuild(ctx, "trigger")
		}
	}
}

func (r *IndexRefresher) rebuild(ctx context.Context, reason string) {
	if err := r.index.Rebuild(ctx); err != nil {
		r.logger.Warnw("Scheduled index rebuild failed", "reason", reason, "error", err)
	}
}
