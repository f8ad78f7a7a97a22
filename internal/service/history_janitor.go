package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultHistoryCleanupInterval = time.Minute

// HistoryJanitor elimina periódicamente sesiones inactivas completas.
type HistoryJanitor struct {
	store    IdleEvicter
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func NewHistoryJanitor(store IdleEvicter, interval time.Duration, logger *zap.Logger) *HistoryJanitor {
	if interval <= 0 {
		interval = DefaultHistoryCleanupInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryJanitor{
		store:    store,
		interval: interval,
		logger:   logger,
	}
}

// Start lanza el loop de limpieza; llamarlo dos veces no tiene efecto.
func (j *HistoryJanitor) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running || j.store == nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.running = true
	go j.run(runCtx, j.done)
}

// Stop detiene el loop y espera a que termine.
func (j *HistoryJanitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	cancel, done := j.cancel, j.done
	j.mu.Unlock()

	cancel()
	<-done
}

func (j *HistoryJanitor) run(ctx context.Context, done chan struct{}) {
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("history janitor stopping")
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *HistoryJanitor) sweep() int {
	start := time.Now()
	removed := j.store.EvictIdle()
	if removed > 0 {
		j.logger.Info("evicted idle history sessions",
			zap.Int("removed", removed),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return removed
}
