package handler

import (
	"context"

	"github.com/goran-ethernal/watch-tower/internal/registry"
	"github.com/goran-ethernal/watch-tower/internal/werrors"
)

// Deferring is the built-in Library watch-tower ships when no external
// handler package is wired in: it always defers to the next block,
// a working, registered default rather than a stub that panics, the
// same way the built-in erc20 example indexer is a real one. Real
// deployments supply their own Library over the real condition logic.
type Deferring struct{}

func (Deferring) Poll(ctx context.Context, params registry.Params, proof *registry.Proof, block BlockContext) werrors.PollResult {
	return werrors.TryNextBlock("no handler library wired; deferring")
}
