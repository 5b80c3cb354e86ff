// Package rpcprovider adapts a chain RPC endpoint to the narrow
// interface the chain watcher actually needs. ws[s]:// endpoints get a
// real subscription; http[s]:// endpoints get a poll loop simulating
// the same callback shape, so chainwatcher never has to know which
// one it's talking to.
package rpcprovider

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Provider is the abstract contract both transports satisfy:
// {getBlock, getLogs, getTransactionReceipt, subscribeBlocks, close}.
type Provider interface {
	GetBlockHeader(ctx context.Context, number uint64) (*types.Header, error)
	GetLatestBlockHeader(ctx context.Context) (*types.Header, error)
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	GetTransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	// SubscribeBlocks invokes onBlock for every new head. It blocks
	// until ctx is cancelled or an unrecoverable error occurs.
	SubscribeBlocks(ctx context.Context, onBlock func(*types.Header)) error
	Close()
}
