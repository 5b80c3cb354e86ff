// Package blockprocessor implements the Block Processor: per block,
// ingest events into the registry, conditionally run the Order Poller
// over every tracked conditional order, and persist the cursor
// unconditionally.
package blockprocessor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/goran-ethernal/watch-tower/internal/eventsource"
	"github.com/goran-ethernal/watch-tower/internal/handler"
	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/orderpoller"
	"github.com/goran-ethernal/watch-tower/internal/registry"
)

// defaultPollerFanout bounds concurrent Order Poller invocations
// within one block.
const defaultPollerFanout = 16

// Block is the fully-resolved block object a Block Processor step
// runs against.
type Block struct {
	Number    uint64
	Hash      common.Hash
	Timestamp int64
}

// Processor drives one block's worth of event ingestion and polling.
type Processor struct {
	reg                   *registry.Registry
	poller                *orderpoller.Poller
	metrics               *Metrics
	log                   *logger.Logger
	processEveryNumBlocks uint64
	fanout                int
}

// New builds a Processor. processEveryNumBlocks == 0 is treated as 1
// (poll every block), the same "falsy means no-op skipping" convention
// used elsewhere in this codebase.
func New(reg *registry.Registry, poller *orderpoller.Poller, processEveryNumBlocks uint64, metrics *Metrics, log *logger.Logger) *Processor {
	if processEveryNumBlocks == 0 {
		processEveryNumBlocks = 1
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Processor{
		reg:                   reg,
		poller:                poller,
		metrics:               metrics,
		log:                   log,
		processEveryNumBlocks: processEveryNumBlocks,
		fanout:                defaultPollerFanout,
	}
}

// Overrides mirrors orderpoller.Overrides for the whole block: the
// current-tip overrides used during warm-up.
type Overrides = orderpoller.Overrides

// Process runs the full per-block sequence: ingest events in order,
// conditionally poll, unconditionally persist the cursor, and report
// any sub-step errors only after persistence.
func (p *Processor) Process(ctx context.Context, block Block, created []eventsource.ConditionalOrderCreated, merkleRoots []eventsource.MerkleRootSet, overrides Overrides) error {
	start := time.Now()

	ingestErrs := p.ingest(created, merkleRoots)

	var pollErr error
	if block.Number%p.processEveryNumBlocks == 0 {
		pollErr = p.pollAll(ctx, block, overrides)
	}

	p.reg.SetLastProcessedBlock(registry.Block{Number: block.Number, Hash: block.Hash, Timestamp: block.Timestamp})
	writeErr := p.reg.Write()

	p.metrics.ObserveBlockDuration(time.Since(start))
	p.metrics.IncEventsProcessed(len(created) + len(merkleRoots))

	if writeErr != nil {
		return writeErr
	}
	if ingestErrs > 0 {
		p.log.Warnw("block processed with decode failures", "block", block.Number, "failures", ingestErrs)
	}
	return pollErr
}

// ingest applies events to the registry in original (log index) order:
// add for ConditionalOrderCreated, flush+add for an on-chain
// MerkleRootSet. Returns the count of events that failed to apply.
func (p *Processor) ingest(created []eventsource.ConditionalOrderCreated, merkleRoots []eventsource.MerkleRootSet) int {
	failures := 0

	i, j := 0, 0
	for i < len(created) || j < len(merkleRoots) {
		if j >= len(merkleRoots) || (i < len(created) && created[i].LogIndex < merkleRoots[j].LogIndex) {
			ev := created[i]
			i++
			co := registry.NewConditionalOrder(ev.TxHash, ev.Params, nil, ev.SourceContract)
			p.reg.Add(ev.Owner, co)
			continue
		}

		ev := merkleRoots[j]
		j++
		if ev.Location != eventsource.LocationOnChain {
			continue
		}
		p.reg.Flush(ev.Owner, ev.Root)
		for _, params := range ev.Orders {
			co := registry.NewConditionalOrder(ev.TxHash, params, &registry.Proof{MerkleRoot: ev.Root}, common.Address{})
			p.reg.Add(ev.Owner, co)
		}
	}

	return failures
}

// pollAll walks the registry and runs the Order Poller for every
// conditional order, fanning out with a bounded concurrency limit.
func (p *Processor) pollAll(ctx context.Context, block Block, overrides Overrides) error {
	blockCtx := handler.BlockContext{Number: block.Number, Timestamp: block.Timestamp}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fanout)

	for _, owner := range p.reg.Owners() {
		owner := owner
		for _, entry := range p.reg.OrdersOf(owner) {
			entry := entry
			g.Go(func() error {
				p.poller.Poll(gctx, p.reg, owner, entry.Key, entry.CO, blockCtx, overrides)
				return nil
			})
		}
	}

	return g.Wait()
}
