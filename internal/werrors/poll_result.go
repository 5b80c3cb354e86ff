// Package werrors holds the closed sum types and typed errors shared
// across watch-tower's chain-watcher pipeline.
package werrors

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PollKind enumerates the outcomes the handler library may return for a
// single conditional order poll — a closed sum over conditional-order
// results.
type PollKind int

const (
	PollSuccess PollKind = iota
	PollTryNextBlock
	PollTryAtBlock
	PollTryAtEpoch
	PollDontTryAgain
	PollUnexpectedError
)

func (k PollKind) String() string {
	switch k {
	case PollSuccess:
		return "SUCCESS"
	case PollTryNextBlock:
		return "TRY_NEXT_BLOCK"
	case PollTryAtBlock:
		return "TRY_AT_BLOCK"
	case PollTryAtEpoch:
		return "TRY_AT_EPOCH"
	case PollDontTryAgain:
		return "DONT_TRY_AGAIN"
	case PollUnexpectedError:
		return "UNEXPECTED_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Order is the discrete, signable order a handler produces on success.
type Order struct {
	UID       [56]byte
	Signature []byte
	Data      []byte
}

// PollResult is the tagged variant dispatched by the Order Poller.
// Exactly one payload field is meaningful for a given Kind; the rest
// are zero values.
type PollResult struct {
	Kind PollKind

	// PollSuccess
	Order *Order

	// PollTryAtBlock
	AtBlock uint64

	// PollTryAtEpoch
	AtEpoch *big.Int

	// Reason accompanies TRY_NEXT_BLOCK, TRY_AT_BLOCK, TRY_AT_EPOCH and
	// DONT_TRY_AGAIN.
	Reason string

	// PollUnexpectedError
	Err error
}

func Success(order *Order) PollResult { return PollResult{Kind: PollSuccess, Order: order} }

func TryNextBlock(reason string) PollResult {
	return PollResult{Kind: PollTryNextBlock, Reason: reason}
}

func TryAtBlock(block uint64, reason string) PollResult {
	return PollResult{Kind: PollTryAtBlock, AtBlock: block, Reason: reason}
}

func TryAtEpoch(epoch *big.Int, reason string) PollResult {
	return PollResult{Kind: PollTryAtEpoch, AtEpoch: epoch, Reason: reason}
}

func DontTryAgain(reason string) PollResult {
	return PollResult{Kind: PollDontTryAgain, Reason: reason}
}

func UnexpectedError(err error) PollResult {
	return PollResult{Kind: PollUnexpectedError, Err: err}
}

// ReorgDetectedError is returned by the live-tail reorg check when a
// previously received block hash changes at the same height.
type ReorgDetectedError struct {
	Network         string
	FirstReorgBlock uint64
	Depth           uint64
	OldHash         common.Hash
	NewHash         common.Hash
}

func (e *ReorgDetectedError) Error() string {
	return fmt.Sprintf("reorg on %s at block %d (depth %d): %s -> %s",
		e.Network, e.FirstReorgBlock, e.Depth, e.OldHash.Hex(), e.NewHash.Hex())
}

func NewReorgDetectedError(network string, block, depth uint64, oldHash, newHash common.Hash) error {
	return &ReorgDetectedError{
		Network:         network,
		FirstReorgBlock: block,
		Depth:           depth,
		OldHash:         oldHash,
		NewHash:         newHash,
	}
}
