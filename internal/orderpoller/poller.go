// Package orderpoller implements the Order Poller: for a single
// conditional order and a block context, ask the handler library for
// a poll result and act on it.
package orderpoller

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/goran-ethernal/watch-tower/internal/filterpolicy"
	"github.com/goran-ethernal/watch-tower/internal/handler"
	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/orderbook"
	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

// Overrides lets historical replay pin the poll context to a specific
// block instead of "now".
type Overrides struct {
	BlockNumber *uint64
	Timestamp   *int64
}

// Poller wires the Filter Policy, the handler library, and the
// order-book client together for one conditional order at a time.
type Poller struct {
	policy    *filterpolicy.Reloader
	lib       handler.Library
	orderbook *orderbook.Client
	metrics   *Metrics
	log       *logger.Logger
}

// New builds a Poller. metrics may be nil, in which case counters are
// recorded under an empty chain_id label.
func New(policy *filterpolicy.Reloader, lib handler.Library, ob *orderbook.Client, metrics *Metrics, log *logger.Logger) *Poller {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Poller{policy: policy, lib: lib, orderbook: ob, metrics: metrics, log: log}
}

// Poll runs the full poll flow for one conditional order: build
// block context, apply the Filter Policy, invoke the handler, and
// dispatch the result. reg is the owner's registry so Poll can mutate
// it (delete on DROP/DONT_TRY_AGAIN, record lastPoll, mark orders
// SUBMITTED).
func (p *Poller) Poll(ctx context.Context, reg *registry.Registry, owner common.Address, key registry.Key, co *registry.ConditionalOrder, block handler.BlockContext, overrides Overrides) {
	effectiveBlock := block
	if overrides.BlockNumber != nil {
		effectiveBlock.Number = *overrides.BlockNumber
	}
	if overrides.Timestamp != nil {
		effectiveBlock.Timestamp = *overrides.Timestamp
	}

	query := filterpolicy.Query{
		ConditionalOrderID: p.conditionalOrderID(co),
		Transaction:        co.TxHash,
		Owner:              owner,
		Handler:            co.Params.Handler,
	}

	if p.policy != nil {
		switch p.policy.Current().Evaluate(query) {
		case filterpolicy.ActionDrop:
			reg.Delete(owner, key)
			p.metrics.IncFilterDrop(owner, co.Params.Handler)
			p.log.Debugw("filter policy dropped conditional order", "owner", owner, "handler", co.Params.Handler)
			return
		case filterpolicy.ActionSkip:
			p.metrics.IncFilterSkip(owner, co.Params.Handler)
			return
		}
	}

	result := p.lib.Poll(ctx, co.Params, co.Proof, effectiveBlock)
	p.dispatch(ctx, reg, owner, key, co, effectiveBlock, result)
}

func (p *Poller) dispatch(ctx context.Context, reg *registry.Registry, owner common.Address, key registry.Key, co *registry.ConditionalOrder, block handler.BlockContext, result werrors.PollResult) {
	switch result.Kind {
	case werrors.PollSuccess:
		p.handleSuccess(ctx, reg, owner, key, co, result)
	case werrors.PollDontTryAgain:
		reg.Delete(owner, key)
		p.log.Infow("handler requested deletion", "owner", owner, "reason", result.Reason)
	case werrors.PollUnexpectedError:
		p.metrics.IncHandlerError(owner, co.Params.Handler)
		p.log.Errorw("handler poll returned unexpected error", "owner", owner, "handler", co.Params.Handler, "error", result.Err)
	default:
		// TRY_NEXT_BLOCK / TRY_AT_BLOCK / TRY_AT_EPOCH: recorded, not an error.
	}

	reg.Mutate(owner, key, func(co *registry.ConditionalOrder) {
		co.LastPoll = &registry.LastPoll{
			Timestamp:   block.Timestamp,
			BlockNumber: block.Number,
			Result:      registry.SnapshotPollResult(result),
		}
	})
}

func (p *Poller) handleSuccess(ctx context.Context, reg *registry.Registry, owner common.Address, key registry.Key, co *registry.ConditionalOrder, result werrors.PollResult) {
	if result.Order == nil {
		p.log.Errorw("handler reported SUCCESS with no order payload", "owner", owner)
		return
	}

	uid := registry.OrderUID(result.Order.UID)
	if _, already := co.Orders[uid]; already {
		p.log.Debugw("order already submitted, skipping (idempotent)", "owner", owner, "uid", uid)
		return
	}

	submission, err := p.orderbook.Submit(ctx, result.Order)
	if err != nil {
		p.metrics.IncOrderbookError(owner, co.Params.Handler, "transport", err.Error())
		p.log.Errorw("order-book submission errored", "owner", owner, "error", err)
		return
	}

	switch submission.Outcome {
	case orderbook.OutcomeSubmitted:
		reg.Mutate(owner, key, func(co *registry.ConditionalOrder) {
			co.Orders[uid] = registry.StatusSubmitted
		})
		p.metrics.IncDiscreteOrder(owner, co.Params.Handler)
		p.log.Infow("discrete order submitted", "owner", owner, "uid", uid)
	case orderbook.OutcomeRejected:
		p.metrics.IncOrderbookError(owner, co.Params.Handler, fmt.Sprintf("%d", submission.StatusCode), submission.Body)
		p.log.Warnw("order-book rejected submission, will retry next block", "owner", owner, "status", submission.StatusCode, "body", submission.Body)
	}
}

// conditionalOrderID derives a per-order identifier for filter-policy
// lookups from the order's Params key, not its transaction hash: a
// single merkle-root-set event can create many distinct conditional
// orders sharing one TxHash, and byConditionalOrderId rules must be
// able to single one out independently of byTransaction rules.
func (p *Poller) conditionalOrderID(co *registry.ConditionalOrder) common.Hash {
	key := co.Params.Key()
	return crypto.Keccak256Hash(key.Handler.Bytes(), key.Salt[:], key.StaticInputHash.Bytes())
}
