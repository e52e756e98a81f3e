package pool

import (
	"time"

	"go.uber.org/zap"

	"github.com/frozlabs/todovault/internal/metrics"
)

// Reaper periodically sweeps the cache and closes pools that have sat idle
// beyond the configured threshold. Sessions never explicitly ended would
// otherwise hold their connections for the process lifetime.
type Reaper struct {
	cache     *Cache
	interval  time.Duration
	idleAfter time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
	stop      chan struct{}
	done      chan struct{}
}

// NewReaper creates an idle-pool reaper over cache.
func NewReaper(cache *Cache, interval, idleAfter time.Duration, m *metrics.Metrics, logger *zap.Logger) *Reaper {
	return &Reaper{
		cache:     cache,
		interval:  interval,
		idleAfter: idleAfter,
		metrics:   m,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (r *Reaper) Start() {
	go r.run()
}

// Stop terminates the sweep loop and waits for it to exit.
func (r *Reaper) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Reaper) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if reaped := r.cache.Sweep(r.idleAfter); reaped > 0 {
				r.metrics.RecordReaped(reaped)
				r.metrics.SetActivePools(r.cache.Len())
				r.logger.Info("reaped idle tenant pools",
					zap.Int("count", reaped),
					zap.Duration("idle_after", r.idleAfter))
			}
		case <-r.stop:
			return
		}
	}
}
