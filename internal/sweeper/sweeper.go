// Package sweeper periodically removes expired credential records. Expired
// records are already rejected on lookup; sweeping only reclaims space.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer is a store that can drop its expired records.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Observer receives the number of records removed per store.
type Observer interface {
	Swept(store string, n int64)
}

type Runner struct {
	stores   map[string]Expirer
	interval time.Duration
	observer Observer
	logger   zerolog.Logger
}

const defaultInterval = time.Hour

func New(interval time.Duration, observer Observer, logger zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Runner{
		stores:   make(map[string]Expirer),
		interval: interval,
		observer: observer,
		logger:   logger,
	}
}

// Add registers a store under a label used in logs and metrics.
func (r *Runner) Add(name string, store Expirer) *Runner {
	r.stores[name] = store
	return r
}

func (r *Runner) tick(ctx context.Context) {
	for name, store := range r.stores {
		n, err := store.DeleteExpired(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("store", name).Msg("sweep failed")
			continue
		}
		if r.observer != nil {
			r.observer.Swept(name, n)
		}
		if n > 0 {
			r.logger.Debug().Str("store", name).Int64("deleted", n).Msg("expired records swept")
		}
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
