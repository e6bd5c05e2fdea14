package idempotency

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cleaner periodically purges expired keys from a BoltStore. Redis expires
// keys on its own and needs no cleaner.
type Cleaner struct {
	store    *BoltStore
	interval time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewCleaner creates a new cleaner
func NewCleaner(store *BoltStore, interval time.Duration, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		store:    store,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start starts the cleanup goroutine
func (c *Cleaner) Start(ctx context.Context) {
	if c.interval <= 0 {
		return
	}

	c.wg.Add(1)
	go c.loop(ctx)

	c.logger.Info("idempotency cleaner started", "interval", c.interval)
}

// Stop stops the cleaner and waits for the goroutine to finish
func (c *Cleaner) Stop() {
	close(c.done)
	c.wg.Wait()
}

func (c *Cleaner) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.run(ctx)
		}
	}
}

func (c *Cleaner) run(ctx context.Context) {
	deleted, err := c.store.Purge(ctx)
	if err != nil {
		c.logger.Error("failed to purge idempotency keys", "error", err)
		return
	}

	if deleted > 0 {
		c.logger.Info("purged idempotency keys", "deleted", deleted)
	}
}
