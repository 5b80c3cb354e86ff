// Package registry holds the in-memory conditional-order registry:
// the per-chain model of owner -> set of conditional orders, plus the
// cursor and bookkeeping fields persisted alongside it.
package registry

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

// SchemaVersion is the current on-disk registry schema version.
// Bumping it requires a written migration in registrystore.
const SchemaVersion uint32 = 1

// Block is the persisted cursor denoting the last block fully
// processed.
type Block struct {
	Number    uint64      `json:"number"`
	Hash      common.Hash `json:"hash"`
	Timestamp int64       `json:"timestamp"`
}

// Params identifies a conditional order within an owner. Equality is
// bytewise over all three fields.
type Params struct {
	Handler     common.Address `json:"handler"`
	Salt        [32]byte       `json:"salt"`
	StaticInput []byte         `json:"staticInput"`
}

// Key is a Params value reduced to a comparable map key. StaticInput is
// a slice and can't be a map key directly, so it's folded in via its
// keccak256 digest; two Params with the same digest are treated as
// bytewise-equal for registry set semantics.
type Key struct {
	Handler         common.Address
	Salt            [32]byte
	StaticInputHash common.Hash
}

// Key derives the comparable identity of a Params value.
func (p Params) Key() Key {
	return Key{
		Handler:         p.Handler,
		Salt:            p.Salt,
		StaticInputHash: crypto.Keccak256Hash(p.StaticInput),
	}
}

// Proof is the optional merkle membership proof. A nil Proof means
// the order is a "single" order.
type Proof struct {
	MerkleRoot common.Hash   `json:"merkleRoot"`
	Path       []common.Hash `json:"path"`
}

// OrderStatus is the lifecycle of a discrete order we've already
// submitted for a conditional order.
type OrderStatus int

const (
	StatusSubmitted OrderStatus = iota
	StatusFilled
)

func (s OrderStatus) String() string {
	if s == StatusFilled {
		return "FILLED"
	}
	return "SUBMITTED"
}

// OrderUID is the opaque 56-byte identifier of a discrete order.
type OrderUID [56]byte

// LastPollResult is a serializable snapshot of a werrors.PollResult,
// stored on ConditionalOrder.LastPoll. It drops the payload (a handler
// error and an unsigned order aren't meaningfully persisted) and keeps
// just enough to answer "what happened last time we polled this".
type LastPollResult struct {
	Kind    string   `json:"kind"`
	Reason  string   `json:"reason,omitempty"`
	AtBlock uint64   `json:"atBlock,omitempty"`
	AtEpoch *big.Int `json:"atEpoch,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// SnapshotPollResult reduces a werrors.PollResult to its persisted form.
func SnapshotPollResult(r werrors.PollResult) LastPollResult {
	snap := LastPollResult{Kind: r.Kind.String(), Reason: r.Reason, AtBlock: r.AtBlock, AtEpoch: r.AtEpoch}
	if r.Err != nil {
		snap.Error = r.Err.Error()
	}
	return snap
}

// LastPoll records the outcome of the most recent Order Poller
// invocation for a conditional order.
type LastPoll struct {
	Timestamp   int64          `json:"timestamp"`
	BlockNumber uint64         `json:"blockNumber"`
	Result      LastPollResult `json:"result"`
}

// ConditionalOrder is a single contract-declared intent tracked by the
// registry.
type ConditionalOrder struct {
	TxHash         common.Hash                `json:"tx"`
	Params         Params                     `json:"params"`
	Proof          *Proof                     `json:"proof,omitempty"`
	Orders         map[OrderUID]OrderStatus   `json:"orders"`
	SourceContract common.Address             `json:"sourceContract"`
	LastPoll       *LastPoll                  `json:"lastPoll,omitempty"`
	createdAt      time.Time
}

// NewConditionalOrder builds a fresh ConditionalOrder as observed on a
// ConditionalOrderCreated event.
func NewConditionalOrder(tx common.Hash, params Params, proof *Proof, source common.Address) *ConditionalOrder {
	return &ConditionalOrder{
		TxHash:         tx,
		Params:         params,
		Proof:          proof,
		Orders:         make(map[OrderUID]OrderStatus),
		SourceContract: source,
		createdAt:      time.Now(),
	}
}
