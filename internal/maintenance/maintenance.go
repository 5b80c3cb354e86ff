// Package maintenance coordinates background upkeep of the bbolt
// Registry Store across the chain watchers sharing one process,
// following internal/db.MaintenanceCoordinator's RWMutex reader/writer
// pattern: operations hold a read lock, maintenance holds the write
// lock, so a compaction pass gets exclusive access without a separate
// stop-the-world signal.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/goran-ethernal/watch-tower/internal/logger"
)

// Coordinator is implemented by both the real, ticking coordinator and
// a NoOp stand-in for when maintenance is disabled.
type Coordinator interface {
	Start(ctx context.Context) error
	Stop() error
	AcquireOperationLock() func()
	Metrics() Metrics
	RunMaintenance(ctx context.Context) error
}

// Metrics summarizes the coordinator's maintenance history.
type Metrics struct {
	LastRun time.Time
	Runs    uint64
	LastErr error
}

// NoOp does nothing; used when maintenance is disabled.
type NoOp struct{}

func (NoOp) Start(ctx context.Context) error          { return nil }
func (NoOp) Stop() error                              { return nil }
func (NoOp) AcquireOperationLock() func()             { return func() {} }
func (NoOp) Metrics() Metrics                         { return Metrics{} }
func (NoOp) RunMaintenance(ctx context.Context) error { return nil }

// Config controls the background coordinator.
type Config struct {
	Enabled       bool
	CheckInterval time.Duration
	RunOnStartup  bool
}

// BBoltCoordinator runs periodic bbolt maintenance: a Sync() flush of
// the file to disk under the exclusive operation lock. It does not read
// Stats or reclaim free pages.
type BBoltCoordinator struct {
	db     *bolt.DB
	config Config
	log    *logger.Logger

	opLock sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsLock sync.Mutex
	metrics     Metrics
}

// New builds a Coordinator. cfg.Enabled == false returns a NoOp.
func New(db *bolt.DB, cfg Config, log *logger.Logger) Coordinator {
	if !cfg.Enabled {
		return NoOp{}
	}
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = time.Hour
	}
	return &BBoltCoordinator{db: db, config: cfg, log: log.WithComponent("maintenance")}
}

// Start begins the background worker, optionally running one pass
// immediately.
func (c *BBoltCoordinator) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	if c.config.RunOnStartup {
		if err := c.RunMaintenance(c.ctx); err != nil {
			c.log.Warnw("startup maintenance failed", "error", err)
		}
	}

	c.wg.Add(1)
	go c.worker()

	c.log.Infow("background maintenance started", "interval", c.config.CheckInterval)
	return nil
}

// Stop cancels the background worker and waits for it to exit.
func (c *BBoltCoordinator) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return nil
}

// AcquireOperationLock acquires a read lock for database operations,
// returning the unlock function. A maintenance pass never runs while a
// caller holds it; the registry store does not take this lock.
func (c *BBoltCoordinator) AcquireOperationLock() func() {
	c.opLock.RLock()
	return c.opLock.RUnlock
}

// Metrics returns a snapshot of the maintenance history.
func (c *BBoltCoordinator) Metrics() Metrics {
	c.metricsLock.Lock()
	defer c.metricsLock.Unlock()
	return c.metrics
}

func (c *BBoltCoordinator) worker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.RunMaintenance(c.ctx); err != nil {
				c.log.Warnw("maintenance pass failed", "error", err)
			}
		}
	}
}

// RunMaintenance takes the exclusive write lock and flushes the bbolt
// file to disk, recording the outcome in Metrics.
func (c *BBoltCoordinator) RunMaintenance(ctx context.Context) error {
	c.opLock.Lock()
	defer c.opLock.Unlock()

	err := c.db.Sync()

	c.metricsLock.Lock()
	c.metrics.LastRun = time.Now()
	c.metrics.Runs++
	c.metrics.LastErr = err
	c.metricsLock.Unlock()

	if err != nil {
		return fmt.Errorf("bbolt sync: %w", err)
	}
	return nil
}
