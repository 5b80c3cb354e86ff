// Package chainwatcher implements the top-level per-chain state
// machine that drives warm-up paging, live tail subscription, reorg
// detection, and the watchdog.
package chainwatcher

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/goran-ethernal/watch-tower/internal/blockprocessor"
	"github.com/goran-ethernal/watch-tower/internal/eventsource"
	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/notify"
	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/rpcprovider"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

// State is one of the three chain-watcher states.
type State int32

const (
	StateSyncing State = iota
	StateInSync
	StateUnknown
)

func (s State) String() string {
	switch s {
	case StateSyncing:
		return "SYNCING"
	case StateInSync:
		return "IN_SYNC"
	case StateUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

const (
	defaultWatchdogInterval = 5 * time.Second
	defaultWatchdogTimeout  = 30 * time.Second
)

// Config controls one Watcher instance.
type Config struct {
	Network         string
	DeploymentBlock uint64
	PageSize        uint64
	WatchdogTimeout time.Duration
	RunningInPod    bool
	DryRun          bool

	// OnFatal is invoked by the watchdog when the timeout trips outside
	// an orchestrated pod: close the registry store and exit the
	// process with a non-zero status. The caller owns the Registry
	// Store's lifetime, so it closes it and calls os.Exit; a nil OnFatal
	// defaults to DefaultOnFatal, which exits with status 1 without
	// closing the store.
	OnFatal func(err error)

	// Notifier fans out reorg detections and watchdog trips to the
	// external notification sinks. A nil Notifier defaults to a no-op.
	Notifier notify.Sink
}

// DefaultOnFatal logs nothing itself (the watchdog already logged) and
// exits the process with status 1.
func DefaultOnFatal(err error) {
	os.Exit(1)
}

// Watcher is the per-chain state machine. One Watcher owns one
// Registry, one event Source, one Block Processor, and one Provider.
type Watcher struct {
	cfg       Config
	provider  rpcprovider.Provider
	source    *eventsource.Source
	processor *blockprocessor.Processor
	reg       *registry.Registry
	metrics   *Metrics
	log       *logger.Logger

	state             atomic.Int32
	lastBlockReceived atomic.Pointer[types.Header]
}

// New builds a Watcher. It does not start anything until Run is called.
func New(cfg Config, provider rpcprovider.Provider, source *eventsource.Source, processor *blockprocessor.Processor, reg *registry.Registry, metrics *Metrics, log *logger.Logger) *Watcher {
	if cfg.WatchdogTimeout == 0 {
		cfg.WatchdogTimeout = defaultWatchdogTimeout
	}
	if cfg.OnFatal == nil {
		cfg.OnFatal = DefaultOnFatal
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if metrics == nil {
		metrics = NewMetrics(cfg.Network)
	}
	if log == nil {
		log = logger.NewNop()
	}
	w := &Watcher{cfg: cfg, provider: provider, source: source, processor: processor, reg: reg, metrics: metrics, log: log.WithComponent("chain-watcher").WithChain(cfg.Network)}
	w.state.Store(int32(StateSyncing))
	return w
}

// State returns the watcher's current state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Run drives warm-up then live tail until ctx is cancelled or the
// watchdog forces an exit. It starts the watchdog as an
// independent goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	go w.runWatchdog(ctx)

	if err := w.warmUp(ctx); err != nil {
		return fmt.Errorf("warm up %s: %w", w.cfg.Network, err)
	}

	w.state.Store(int32(StateInSync))
	w.log.Infow("chain watcher in sync, entering live tail")

	return w.liveTail(ctx)
}

// warmUp pages through history from the last persisted cursor (or the
// deployment block) up to the chain tip, re-checking the tip after
// each pass until the cursor catches up.
func (w *Watcher) warmUp(ctx context.Context) error {
	from := w.cfg.DeploymentBlock
	if cursor := w.reg.LastProcessedBlock(); cursor != nil {
		from = cursor.Number + 1
	}

	for {
		tipHeader, err := w.provider.GetLatestBlockHeader(ctx)
		if err != nil {
			return fmt.Errorf("get latest block header: %w", err)
		}
		tip := tipHeader.Number.Uint64()

		for from <= tip {
			var to uint64
			if w.cfg.PageSize == 0 {
				to = tip
			} else {
				to = from + w.cfg.PageSize - 1
				if to > tip {
					to = tip
				}
			}

			if err := w.processRange(ctx, from, to, tip, tipHeader.Time); err != nil {
				return err
			}

			from = to + 1
		}

		w.reg.SetLastProcessedBlock(registry.Block{Number: tip, Hash: tipHeader.Hash(), Timestamp: int64(tipHeader.Time)})
		if err := w.reg.Write(); err != nil {
			return fmt.Errorf("persist warm-up cursor: %w", err)
		}

		freshTipHeader, err := w.provider.GetLatestBlockHeader(ctx)
		if err != nil {
			return fmt.Errorf("re-read tip: %w", err)
		}
		freshTip := freshTipHeader.Number.Uint64()
		if freshTip == tip {
			return nil
		}
		from = tip + 1
	}
}

// processRange fetches events over [from, to], buckets them by block,
// and drives the Block Processor in ascending order once for each block
// that has events and once for the last block of the range; blocks
// without events before it are not processed.
func (w *Watcher) processRange(ctx context.Context, from, to, tip, tipTimestamp uint64) error {
	batch, err := w.source.FetchRange(ctx, from, &to)
	if err != nil {
		return fmt.Errorf("fetch range [%d,%d]: %w", from, to, err)
	}

	createdByBlock := make(map[uint64][]eventsource.ConditionalOrderCreated)
	for _, ev := range batch.Created {
		createdByBlock[ev.BlockNumber] = append(createdByBlock[ev.BlockNumber], ev)
	}
	merkleByBlock := make(map[uint64][]eventsource.MerkleRootSet)
	for _, ev := range batch.MerkleRoots {
		merkleByBlock[ev.BlockNumber] = append(merkleByBlock[ev.BlockNumber], ev)
	}

	ts := int64(tipTimestamp)
	tipBlockNum := tip
	overrides := blockprocessor.Overrides{BlockNumber: &tipBlockNum, Timestamp: &ts}

	for b := from; b <= to; b++ {
		created := createdByBlock[b]
		merkle := merkleByBlock[b]
		if len(created) == 0 && len(merkle) == 0 && b != to {
			continue
		}

		header, err := w.provider.GetBlockHeader(ctx, b)
		if err != nil {
			return fmt.Errorf("get block header %d: %w", b, err)
		}

		if err := w.processor.Process(ctx, blockprocessor.Block{Number: b, Hash: header.Hash(), Timestamp: int64(header.Time)}, created, merkle, overrides); err != nil {
			w.log.Errorw("block processing reported an error", "block", b, "error", err)
		}
		w.reportActiveCounts()
	}

	return nil
}

// reportActiveCounts refreshes the active-owners/active-orders gauges
// from the registry's current contents, called after every block so
// the gauges track flushes and new orders as they happen.
func (w *Watcher) reportActiveCounts() {
	w.metrics.SetActiveOwners(len(w.reg.Owners()))
	w.metrics.SetActiveOrders(w.reg.NumOrders())
}

// liveTail subscribes to new block headers and reacts to each one.
func (w *Watcher) liveTail(ctx context.Context) error {
	return w.provider.SubscribeBlocks(ctx, func(header *types.Header) {
		w.onNewHead(ctx, header)
	})
}

func (w *Watcher) onNewHead(ctx context.Context, header *types.Header) {
	number := header.Number.Uint64()

	if last := w.lastBlockReceived.Load(); last != nil {
		lastNumber := last.Number.Uint64()
		w.metrics.ObserveBlockProducingRate(float64(int64(header.Time) - int64(last.Time)))

		if number <= lastNumber && header.Hash() != last.Hash() {
			depth := lastNumber - number + 1
			reorgErr := werrors.NewReorgDetectedError(w.cfg.Network, number, depth, last.Hash(), header.Hash())
			w.log.Warnw("reorg detected", "error", reorgErr)
			w.metrics.IncReorg(depth)
			_ = w.cfg.Notifier.Notify(ctx, notify.LevelWarn, reorgErr.Error(), map[string]any{
				"network": w.cfg.Network,
				"block":   number,
				"depth":   depth,
			})
		}
	}

	batch, err := w.source.FetchBlock(ctx, number)
	if err != nil {
		w.log.Errorw("fetch events for new head failed", "block", number, "error", err)
		return
	}

	var created []eventsource.ConditionalOrderCreated
	var merkle []eventsource.MerkleRootSet
	for _, ev := range batch.Created {
		if ev.BlockNumber == number {
			created = append(created, ev)
		}
	}
	for _, ev := range batch.MerkleRoots {
		if ev.BlockNumber == number {
			merkle = append(merkle, ev)
		}
	}

	if err := w.processor.Process(ctx, blockprocessor.Block{Number: number, Hash: header.Hash(), Timestamp: int64(header.Time)}, created, merkle, blockprocessor.Overrides{}); err != nil {
		w.log.Errorw("block processing reported an error", "block", number, "error", err)
	}

	w.lastBlockReceived.Store(header)
	w.metrics.SetBlockHeight(number)
	w.reportActiveCounts()
}

// runWatchdog ticks every 5 seconds checking how long it's been since
// the last block was received; on timeout, it either marks the
// watcher UNKNOWN (inside an orchestration pod) or terminates the
// process.
func (w *Watcher) runWatchdog(ctx context.Context) {
	ticker := time.NewTicker(defaultWatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := w.lastBlockReceived.Load()
			if last == nil {
				continue
			}
			elapsed := time.Since(time.Unix(int64(last.Time), 0))
			if elapsed < w.cfg.WatchdogTimeout {
				continue
			}

			w.log.Errorw("watchdog timeout exceeded", "elapsed", elapsed, "timeout", w.cfg.WatchdogTimeout)
			watchdogFields := map[string]any{"network": w.cfg.Network, "elapsed": elapsed.String(), "timeout": w.cfg.WatchdogTimeout.String()}
			if w.cfg.RunningInPod {
				w.state.Store(int32(StateUnknown))
				_ = w.cfg.Notifier.Notify(ctx, notify.LevelError, "watchdog timeout exceeded, marking chain UNKNOWN", watchdogFields)
				continue
			}

			w.log.Errorw("watchdog exiting process: not running in an orchestrated pod")
			fatalErr := fmt.Errorf("watchdog timeout exceeded for chain %s: no new block in %v", w.cfg.Network, elapsed)
			_ = w.cfg.Notifier.Notify(ctx, notify.LevelError, fatalErr.Error(), watchdogFields)
			w.cfg.OnFatal(fatalErr)
			return
		}
	}
}
