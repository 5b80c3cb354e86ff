// Package handler defines the narrow boundary between watch-tower and
// the external conditional-order handler library: given a conditional
// order's params and a block context, decide whether a discrete order
// should exist right now.
package handler

import (
	"context"

	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

// BlockContext is the poll-time view of the chain the handler library
// evaluates a conditional order against.
type BlockContext struct {
	Number    uint64
	Timestamp int64
}

// Library is implemented by the external handler package. watch-tower
// never interprets staticInput itself — it is opaque bytes the library
// understands.
type Library interface {
	// Poll evaluates one conditional order and returns exactly one of
	// the werrors.PollResult variants.
	Poll(ctx context.Context, params registry.Params, proof *registry.Proof, block BlockContext) werrors.PollResult
}
