package filterpolicy

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestEvaluateDefaultsToAllow(t *testing.T) {
	p := Empty()
	action := p.Evaluate(Query{Owner: common.HexToAddress("0x1")})
	require.Equal(t, ActionAllow, action)
}

func TestEvaluatePrecedenceMostSpecificWins(t *testing.T) {
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	handler := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := common.HexToHash("0xaaaa")
	coID := common.HexToHash("0xbbbb")

	p := &Policy{
		DefaultAction:        ActionDrop,
		ByHandler:            map[string]Action{handler.Hex(): ActionAllow},
		ByOwner:              map[string]Action{owner.Hex(): ActionDrop},
		ByTransaction:        map[string]Action{tx.Hex(): ActionAllow},
		ByConditionalOrderID: map[string]Action{coID.Hex(): ActionDrop},
	}

	// conditional-order-id entry outranks everything else.
	require.Equal(t, ActionDrop, p.Evaluate(Query{
		ConditionalOrderID: coID, Transaction: tx, Owner: owner, Handler: handler,
	}))

	// without a conditional-order-id match, transaction wins over owner/handler.
	require.Equal(t, ActionAllow, p.Evaluate(Query{
		Transaction: tx, Owner: owner, Handler: handler,
	}))

	// without tx or co-id, owner wins over handler.
	require.Equal(t, ActionDrop, p.Evaluate(Query{Owner: owner, Handler: handler}))

	// only handler matches.
	require.Equal(t, ActionAllow, p.Evaluate(Query{Handler: handler}))

	// nothing matches, falls back to default.
	require.Equal(t, ActionDrop, p.Evaluate(Query{}))
}

func TestReloaderKeepsLastGoodSnapshotOnFailure(t *testing.T) {
	r := NewReloader("http://127.0.0.1:0/policy.yaml", 0, nil)
	good := &Policy{DefaultAction: ActionDrop}
	r.current.Store(good)

	err := r.Reload(context.Background())
	require.Error(t, err)
	require.Same(t, good, r.Current())
}
