package rpcprovider

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
)

var _ Provider = (*wsProvider)(nil)

// wsProvider wraps a ws[s]:// endpoint, reusing httpProvider for every
// RPC method and adding a real push subscription for new heads (spec
// §9: "ws[s]:// -> streaming subscription").
type wsProvider struct {
	*httpProvider
}

func newWSProvider(ctx context.Context, endpoint string, retry *RetryConfig) (*wsProvider, error) {
	base, err := newHTTPProvider(ctx, endpoint, retry)
	if err != nil {
		return nil, err
	}
	return &wsProvider{httpProvider: base}, nil
}

// SubscribeBlocks subscribes to new block headers over the websocket
// connection, overriding httpProvider's poll-based simulation.
func (p *wsProvider) SubscribeBlocks(ctx context.Context, onBlock func(*types.Header)) error {
	headers := make(chan *types.Header, 16)
	sub, err := p.eth.SubscribeNewHead(ctx, headers)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case header := <-headers:
			onBlock(header)
		}
	}
}
