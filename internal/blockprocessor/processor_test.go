package blockprocessor

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/watch-tower/internal/eventsource"
	"github.com/goran-ethernal/watch-tower/internal/filterpolicy"
	"github.com/goran-ethernal/watch-tower/internal/handler"
	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/orderbook"
	"github.com/goran-ethernal/watch-tower/internal/orderpoller"
	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/registrystore"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

type deferringLibrary struct{}

func (deferringLibrary) Poll(ctx context.Context, params registry.Params, proof *registry.Proof, block handler.BlockContext) werrors.PollResult {
	return werrors.TryNextBlock("not ready")
}

func newTestProcessor(t *testing.T, processEvery uint64) (*Processor, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	store, err := registrystore.Open(dir+"/db.bolt", logger.NewNop())
	require.NoError(t, err)
	netStore, err := store.ForNetwork("test")
	require.NoError(t, err)
	reg := registry.New("test", netStore, logger.NewNop())

	poller := orderpoller.New(
		filterpolicy.NewReloader("http://unused", 0, nil),
		deferringLibrary{},
		orderbook.New("http://unused", logger.NewNop()),
		nil,
		logger.NewNop(),
	)

	return New(reg, poller, processEvery, nil, logger.NewNop()), reg
}

func TestProcessIngestsConditionalOrderCreated(t *testing.T) {
	p, reg := newTestProcessor(t, 1)

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	created := []eventsource.ConditionalOrderCreated{
		{Owner: owner, Params: registry.Params{Handler: common.HexToAddress("0x2")}, TxHash: common.HexToHash("0xaa"), SourceContract: common.HexToAddress("0x3"), BlockNumber: 1},
	}

	err := p.Process(context.Background(), Block{Number: 1, Timestamp: 100}, created, nil, Overrides{})
	require.NoError(t, err)
	require.Len(t, reg.OrdersOf(owner), 1)
	require.Equal(t, uint64(1), reg.LastProcessedBlock().Number)
}

func TestProcessSkipsPollWhenNotOnCadence(t *testing.T) {
	p, reg := newTestProcessor(t, 5)

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	co := registry.NewConditionalOrder(common.HexToHash("0xaa"), registry.Params{Handler: common.HexToAddress("0x2")}, nil, common.HexToAddress("0x3"))
	reg.Add(owner, co)

	err := p.Process(context.Background(), Block{Number: 3, Timestamp: 100}, nil, nil, Overrides{})
	require.NoError(t, err)
	require.Nil(t, co.LastPoll, "poll must not run on a block outside the cadence")

	err = p.Process(context.Background(), Block{Number: 5, Timestamp: 100}, nil, nil, Overrides{})
	require.NoError(t, err)
	require.NotNil(t, co.LastPoll, "poll must run on a cadence-aligned block")
}

func TestProcessPersistsCursorForBlockWithoutEvents(t *testing.T) {
	p, reg := newTestProcessor(t, 1)

	err := p.Process(context.Background(), Block{Number: 7, Timestamp: 100}, nil, nil, Overrides{})
	require.NoError(t, err)
	require.Equal(t, uint64(7), reg.LastProcessedBlock().Number)
}
