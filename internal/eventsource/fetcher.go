package eventsource

import (
	"context"
	"math/big"
	"sort"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/watch-tower/internal/logger"
	"github.com/goran-ethernal/watch-tower/internal/rpcprovider"
)

// Source fetches and decodes conditional-order events over a block
// range. It is grounded on the staging of
// internal/fetcher/log_fetcher.go's fetchRange: build a filter query,
// pull logs, decode, drop what doesn't parse.
type Source struct {
	provider    rpcprovider.Provider
	ownerFilter map[common.Address]struct{}
	log         *logger.Logger
}

// New builds a Source. ownerAllowList, if non-empty, restricts the
// returned events to those whose decoded owner is in the list; the RPC
// log fetch itself is never narrowed by it, since the allow-list is a
// property of the decoded event payload (the owner field), not of the
// emitting contract address. An empty list means "no allow-list" —
// every owner is considered.
func New(provider rpcprovider.Provider, ownerAllowList []common.Address, log *logger.Logger) *Source {
	var filter map[common.Address]struct{}
	if len(ownerAllowList) > 0 {
		filter = make(map[common.Address]struct{}, len(ownerAllowList))
		for _, owner := range ownerAllowList {
			filter[owner] = struct{}{}
		}
	}
	return &Source{provider: provider, ownerFilter: filter, log: log}
}

// allowsOwner reports whether owner passes the configured allow-list.
func (s *Source) allowsOwner(owner common.Address) bool {
	if s.ownerFilter == nil {
		return true
	}
	_, ok := s.ownerFilter[owner]
	return ok
}

// Batch is the decoded, time-ordered result of one range fetch.
type Batch struct {
	Created      []ConditionalOrderCreated
	MerkleRoots  []MerkleRootSet
	DroppedCount int
}

// FetchRange pulls every ConditionalOrderCreated and MerkleRootSet log
// in [fromBlock, toBlock], decodes what it can, and returns the
// results sorted by (blockNumber, logIndex).
// toBlock == nil means the "latest" sentinel.
func (s *Source) FetchRange(ctx context.Context, fromBlock uint64, toBlock *uint64) (*Batch, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Topics:    [][]common.Hash{{TopicConditionalOrderCreated, TopicMerkleRootSet}},
	}
	if toBlock != nil {
		query.ToBlock = new(big.Int).SetUint64(*toBlock)
	}

	logs, err := s.provider.GetLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	batch := &Batch{}
	for _, l := range logs {
		if decoded, ok := decodeConditionalOrderCreated(l); ok {
			if !s.allowsOwner(decoded.Owner) {
				continue
			}
			batch.Created = append(batch.Created, *decoded)
			continue
		}
		if decoded, ok := decodeMerkleRootSet(l); ok {
			if !s.allowsOwner(decoded.Owner) {
				continue
			}
			batch.MerkleRoots = append(batch.MerkleRoots, *decoded)
			continue
		}
		batch.DroppedCount++
		if s.log != nil {
			s.log.Debugw("dropping non-decodable log", "tx", l.TxHash, "block", l.BlockNumber, "logIndex", l.Index)
		}
	}

	if batch.DroppedCount > 0 && s.log != nil {
		s.log.Warnw("some logs could not be decoded", "dropped", batch.DroppedCount, "fromBlock", fromBlock)
	}

	return batch, nil
}

// FetchBlock is a convenience wrapper for fetching a single block,
// used by the Chain Watcher's live tail and the replay commands.
func (s *Source) FetchBlock(ctx context.Context, blockNumber uint64) (*Batch, error) {
	return s.FetchRange(ctx, blockNumber, &blockNumber)
}
