// Package eventsource implements the Event Source: turning a half-open
// block range into a time-ordered stream of decoded conditional-order
// events.
package eventsource

import (
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/goran-ethernal/watch-tower/internal/registry"
)

// MerkleProofLocation mirrors the on-chain enum a MerkleRootSet event
// carries, distinguishing where the proof payload for the batch lives.
type MerkleProofLocation uint8

const (
	LocationOnChain MerkleProofLocation = iota
	LocationOffChain
)

// paramsTuple is the ABI tuple shape of ConditionalOrderParams:
// "(address,bytes32,bytes)".
var paramsTuple, _ = abi.NewType("tuple", "", []abi.ArgumentMarshaling{
	{Name: "handler", Type: "address"},
	{Name: "salt", Type: "bytes32"},
	{Name: "staticInput", Type: "bytes"},
})

// conditionalOrderCreatedArgs decodes
// ConditionalOrderCreated(address,(address,bytes32,bytes)).
var conditionalOrderCreatedArgs = abi.Arguments{
	{Name: "owner", Type: mustType("address")},
	{Name: "params", Type: paramsTuple},
}

// merkleRootSetArgs decodes
// MerkleRootSet(address,bytes32,uint8,(address,bytes32,bytes)[]) — the
// trailing dynamic array of params is only meaningful when location is
// LocationOnChain: the orders travel with the event itself rather than
// needing a second subscription target.
var merkleRootSetArgs = abi.Arguments{
	{Name: "owner", Type: mustType("address")},
	{Name: "root", Type: mustType("bytes32")},
	{Name: "location", Type: mustType("uint8")},
	{Name: "orders", Type: mustSliceType(paramsTuple)},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func mustSliceType(elem abi.Type) abi.Type {
	typ, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "handler", Type: "address"},
		{Name: "salt", Type: "bytes32"},
		{Name: "staticInput", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return typ
}

// TopicConditionalOrderCreated and TopicMerkleRootSet are the event
// topic hashes the Event Source filters logs by, generalized to a topic
// set instead of one hash.
var (
	TopicConditionalOrderCreated = crypto.Keccak256Hash([]byte("ConditionalOrderCreated(address,(address,bytes32,bytes))"))
	TopicMerkleRootSet           = crypto.Keccak256Hash([]byte("MerkleRootSet(address,bytes32,uint8,(address,bytes32,bytes)[])"))
)

// ConditionalOrderCreated is a decoded ConditionalOrderCreated log.
type ConditionalOrderCreated struct {
	Owner          common.Address
	Params         registry.Params
	TxHash         common.Hash
	SourceContract common.Address
	BlockNumber    uint64
	LogIndex       uint
}

// MerkleRootSet is a decoded MerkleRootSet log.
type MerkleRootSet struct {
	Owner       common.Address
	Root        common.Hash
	Location    MerkleProofLocation
	Orders      []registry.Params
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

type rawParams struct {
	Handler     common.Address
	Salt        [32]byte
	StaticInput []byte
}

// decodeConditionalOrderCreated decodes one log, returning ok=false
// (never an error) when the log doesn't match the expected shape: logs
// that fail to decode are dropped, non-fatally.
func decodeConditionalOrderCreated(log types.Log) (*ConditionalOrderCreated, bool) {
	if len(log.Topics) == 0 || log.Topics[0] != TopicConditionalOrderCreated {
		return nil, false
	}

	values, err := conditionalOrderCreatedArgs.Unpack(log.Data)
	if err != nil || len(values) != 2 {
		return nil, false
	}

	owner, ok := values[0].(common.Address)
	if !ok {
		return nil, false
	}
	params, ok := decodeParamsTupleValue(values[1])
	if !ok {
		return nil, false
	}

	return &ConditionalOrderCreated{
		Owner:          owner,
		Params:         params,
		TxHash:         log.TxHash,
		SourceContract: log.Address,
		BlockNumber:    log.BlockNumber,
		LogIndex:       log.Index,
	}, true
}

func decodeMerkleRootSet(log types.Log) (*MerkleRootSet, bool) {
	if len(log.Topics) == 0 || log.Topics[0] != TopicMerkleRootSet {
		return nil, false
	}

	values, err := merkleRootSetArgs.Unpack(log.Data)
	if err != nil || len(values) != 4 {
		return nil, false
	}

	owner, ok := values[0].(common.Address)
	if !ok {
		return nil, false
	}
	rootBytes, ok := values[1].([32]byte)
	if !ok {
		return nil, false
	}
	location, ok := values[2].(uint8)
	if !ok {
		return nil, false
	}

	var orders []registry.Params
	if rawOrders := reflect.ValueOf(values[3]); rawOrders.Kind() == reflect.Slice {
		orders = make([]registry.Params, 0, rawOrders.Len())
		for i := 0; i < rawOrders.Len(); i++ {
			if params, ok := decodeParamsTupleValue(rawOrders.Index(i).Interface()); ok {
				orders = append(orders, params)
			}
		}
	}

	return &MerkleRootSet{
		Owner:       owner,
		Root:        common.BytesToHash(rootBytes[:]),
		Location:    MerkleProofLocation(location),
		Orders:      orders,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}, true
}

// decodeParamsTupleValue converts the anonymous struct the abi package
// unpacks a params tuple into (same fields as rawParams, plus json tags)
// to registry.Params.
func decodeParamsTupleValue(v any) (registry.Params, bool) {
	rv := reflect.ValueOf(v)
	target := reflect.TypeOf(rawParams{})
	if !rv.IsValid() || !rv.Type().ConvertibleTo(target) {
		return registry.Params{}, false
	}
	rp := rv.Convert(target).Interface().(rawParams)
	return registry.Params{Handler: rp.Handler, Salt: rp.Salt, StaticInput: rp.StaticInput}, true
}
