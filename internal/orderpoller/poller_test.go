package orderpoller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/watch-tower/internal/filterpolicy"
	"github.com/goran-ethernal/watch-tower/internal/handler"
	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/orderbook"
	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/registrystore"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

type fakeLibrary struct {
	result werrors.PollResult
}

func (f *fakeLibrary) Poll(ctx context.Context, params registry.Params, proof *registry.Proof, block handler.BlockContext) werrors.PollResult {
	return f.result
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	store, err := registrystore.Open(dir+"/db.bolt", logger.NewNop())
	require.NoError(t, err)
	netStore, err := store.ForNetwork("test")
	require.NoError(t, err)
	return registry.New("test", netStore, logger.NewNop())
}

func TestPollSuccessSubmitsAndMarksOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	co := registry.NewConditionalOrder(common.HexToHash("0xaa"), registry.Params{Handler: common.HexToAddress("0x2")}, nil, common.HexToAddress("0x3"))
	reg.Add(owner, co)

	var uid [56]byte
	uid[0] = 0x7

	lib := &fakeLibrary{result: werrors.Success(&werrors.Order{UID: uid, Signature: []byte("sig"), Data: []byte("data")})}
	ob := orderbook.New(srv.URL, logger.NewNop())
	reloader := filterpolicy.NewReloader("http://unused", 0, nil)

	p := New(reloader, lib, ob, nil, logger.NewNop())
	p.Poll(context.Background(), reg, owner, co.Params.Key(), co, handler.BlockContext{Number: 10, Timestamp: 100}, Overrides{})

	require.Equal(t, registry.StatusSubmitted, co.Orders[registry.OrderUID(uid)])
	require.NotNil(t, co.LastPoll)
	require.Equal(t, "SUCCESS", co.LastPoll.Result.Kind)
}

func TestPollSuccessIdempotentSkipsResubmit(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	reg := newTestRegistry(t)
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	co := registry.NewConditionalOrder(common.HexToHash("0xaa"), registry.Params{Handler: common.HexToAddress("0x2")}, nil, common.HexToAddress("0x3"))
	var uid [56]byte
	uid[0] = 0x7
	co.Orders[registry.OrderUID(uid)] = registry.StatusSubmitted
	reg.Add(owner, co)

	lib := &fakeLibrary{result: werrors.Success(&werrors.Order{UID: uid})}
	ob := orderbook.New(srv.URL, logger.NewNop())
	reloader := filterpolicy.NewReloader("http://unused", 0, nil)

	p := New(reloader, lib, ob, nil, logger.NewNop())
	p.Poll(context.Background(), reg, owner, co.Params.Key(), co, handler.BlockContext{Number: 10, Timestamp: 100}, Overrides{})

	require.False(t, called, "order-book must not be re-hit for an already-submitted uid")
}

func TestPollDontTryAgainDeletesConditionalOrder(t *testing.T) {
	reg := newTestRegistry(t)
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	co := registry.NewConditionalOrder(common.HexToHash("0xaa"), registry.Params{Handler: common.HexToAddress("0x2")}, nil, common.HexToAddress("0x3"))
	key := co.Params.Key()
	reg.Add(owner, co)

	lib := &fakeLibrary{result: werrors.DontTryAgain("expired")}
	ob := orderbook.New("http://unused", logger.NewNop())
	reloader := filterpolicy.NewReloader("http://unused", 0, nil)

	p := New(reloader, lib, ob, nil, logger.NewNop())
	p.Poll(context.Background(), reg, owner, key, co, handler.BlockContext{Number: 10, Timestamp: 100}, Overrides{})

	require.Empty(t, reg.OrdersOf(owner))
}
