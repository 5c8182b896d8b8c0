package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// WarmupJob loads a value and stores it under Key. Jobs with a higher
// Priority run first in each round.
type WarmupJob struct {
	Key      string
	TTL      time.Duration
	Priority int
	Load     func(ctx context.Context) (interface{}, error)
}

// CacheWarmer repopulates hot keys on start and then every Interval.
type CacheWarmer struct {
	cache    Cache
	jobs     *PriorityQueue
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	rounds  int
	failed  int
}

func NewCacheWarmer(c Cache, interval time.Duration, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{
		cache:    c,
		jobs:     NewPriorityQueue(),
		interval: interval,
		logger:   logger,
	}
}

func (w *CacheWarmer) AddJob(job WarmupJob) {
	w.jobs.Push(job)
}

// WarmUp runs every registered job once. It keeps going after a failed job
// and returns the joined errors.
func (w *CacheWarmer) WarmUp(ctx context.Context) error {
	var errs []error
	for _, job := range w.jobs.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		value, err := job.Load(ctx)
		if err == nil {
			err = w.cache.Set(ctx, job.Key, value, job.TTL)
		}
		if err != nil {
			w.logger.Warn("cache warmup job failed", zap.String("key", job.Key), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		w.logger.Debug("cache key warmed", zap.String("key", job.Key))
	}

	w.mu.Lock()
	w.rounds++
	w.failed += len(errs)
	w.mu.Unlock()

	return errors.Join(errs...)
}

// Start warms once immediately and then on every tick until Stop or ctx
// cancellation. A non-positive interval disables the periodic rounds.
func (w *CacheWarmer) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("starting cache warmer",
		zap.Int("jobs", w.jobs.Len()), zap.Duration("interval", w.interval))

	go func() {
		defer close(w.done)
		_ = w.WarmUp(ctx)
		if w.interval <= 0 {
			<-ctx.Done()
			return
		}

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = w.WarmUp(ctx)
			}
		}
	}()
}

func (w *CacheWarmer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("cache warmer stopped")
}

func (w *CacheWarmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *CacheWarmer) Stats() map[string]interface{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]interface{}{
		"running":          w.running,
		"jobs":             w.jobs.Len(),
		"rounds":           w.rounds,
		"failed_jobs":      w.failed,
		"interval_seconds": w.interval.Seconds(),
	}
}
