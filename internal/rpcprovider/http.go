package rpcprovider

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// pollInterval is the rate at which an http[s]:// provider simulates
// the "new block" notification a real subscription would push (spec
// §9: "http[s]:// -> poll-on-'block'-event simulation at roughly the
// chain's block interval").
const pollInterval = 2 * time.Second

var _ Provider = (*httpProvider)(nil)

// httpProvider wraps a plain JSON-RPC endpoint, grounded on the
// teacher's internal/rpc.Client method shapes.
type httpProvider struct {
	eth   *ethclient.Client
	rpc   *rpc.Client
	retry *RetryConfig
}

func newHTTPProvider(ctx context.Context, endpoint string, retry *RetryConfig) (*httpProvider, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &httpProvider{eth: ethclient.NewClient(rpcClient), rpc: rpcClient, retry: retry}, nil
}

func (p *httpProvider) GetBlockHeader(ctx context.Context, number uint64) (*types.Header, error) {
	return p.call(ctx, "eth_getBlockByNumber", func() (*types.Header, error) {
		return p.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	})
}

func (p *httpProvider) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	return p.call(ctx, "eth_getBlockByNumber", func() (*types.Header, error) {
		return p.eth.HeaderByNumber(ctx, nil)
	})
}

func (p *httpProvider) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	start := time.Now()
	rpcMethodInc("eth_getLogs")
	defer func() { rpcMethodDuration("eth_getLogs", time.Since(start)) }()

	var logs []types.Log
	err := retryWithBackoff(ctx, p.retry, "eth_getLogs", func() error {
		var fetchErr error
		logs, fetchErr = p.eth.FilterLogs(ctx, query)
		return fetchErr
	})
	if err != nil {
		rpcMethodError("eth_getLogs")
		return nil, err
	}
	return logs, nil
}

func (p *httpProvider) GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	rpcMethodInc("eth_getTransactionReceipt")
	defer func() { rpcMethodDuration("eth_getTransactionReceipt", time.Since(start)) }()

	var receipt *types.Receipt
	err := retryWithBackoff(ctx, p.retry, "eth_getTransactionReceipt", func() error {
		var fetchErr error
		receipt, fetchErr = p.eth.TransactionReceipt(ctx, hash)
		return fetchErr
	})
	if err != nil {
		rpcMethodError("eth_getTransactionReceipt")
		return nil, err
	}
	return receipt, nil
}

// SubscribeBlocks simulates a block subscription by polling for the
// latest header on an interval and invoking onBlock whenever the head
// number advances.
func (p *httpProvider) SubscribeBlocks(ctx context.Context, onBlock func(*types.Header)) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastSeen uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			header, err := p.GetLatestBlockHeader(ctx)
			if err != nil {
				continue
			}
			number := header.Number.Uint64()
			if number > lastSeen {
				lastSeen = number
				onBlock(header)
			}
		}
	}
}

func (p *httpProvider) Close() {
	p.eth.Close()
}

func (p *httpProvider) call(ctx context.Context, method string, fn func() (*types.Header, error)) (*types.Header, error) {
	start := time.Now()
	rpcMethodInc(method)
	defer func() { rpcMethodDuration(method, time.Since(start)) }()

	var header *types.Header
	err := retryWithBackoff(ctx, p.retry, method, func() error {
		var fetchErr error
		header, fetchErr = fn()
		return fetchErr
	})
	if err != nil {
		rpcMethodError(method)
		return nil, err
	}
	return header, nil
}
