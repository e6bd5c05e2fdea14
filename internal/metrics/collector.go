package metrics

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/foxzi/recupero/internal/contact"
)

// StateCounter reports how many persons are in each contact state
type StateCounter interface {
	CountByState(ctx context.Context) (map[contact.State]int, error)
}

// Collector periodically refreshes gauges that are read from storage
type Collector struct {
	metrics     *Metrics
	states      StateCounter
	storagePath string
	interval    time.Duration
	startTime   time.Time
	logger      *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(m *Metrics, states StateCounter, storagePath string, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &Collector{
		metrics:     m,
		states:      states,
		storagePath: storagePath,
		interval:    interval,
		startTime:   time.Now(),
		logger:      logger,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the collector background task
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Collect(ctx)
		}
	}
}

// Collect refreshes system gauges and the persons-by-state gauge once
func (c *Collector) Collect(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	if c.states == nil {
		return
	}

	counts, err := c.states.CountByState(ctx)
	if err != nil {
		c.logger.Warn("failed to count persons by state", "error", err)
		return
	}
	for _, s := range contact.AllStates {
		c.metrics.PersonsByState.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
