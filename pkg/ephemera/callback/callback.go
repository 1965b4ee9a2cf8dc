// Package callback defines the application hook interface (component G),
// grounded in node/src/broadcast/broadcast_callback.rs's BroadcastCallBack
// trait: five hooks, any of which may veto or transform the in-flight
// payload. A non-nil error from any hook aborts the current transition
// (spec §4.4 edge case iii): the Context moves to Dropped with no outbound
// emission.
package callback

import (
	"context"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// Callback hooks must be non-blocking relative to the coordinator loop
// (spec §4.7); implementations that need to do real work should dispatch it
// to a separate worker and return promptly.
type Callback interface {
	// PrePrepare runs when a Context is first created from a peer's
	// PrePrepare; a local proposal does not call it. Returning a non-nil
	// Block replaces the Context's block.
	PrePrepare(ctx context.Context, block types.Block, cc *types.ConsensusContext) (*types.Block, error)

	// Prepare runs per accepted Echo, before a possible Prepared transition.
	Prepare(ctx context.Context, origin types.PeerId, block types.Block, cc *types.ConsensusContext) (*types.Block, error)

	// Commit runs per accepted Vote, before a possible Committed transition.
	Commit(ctx context.Context, origin types.PeerId, cc *types.ConsensusContext) error

	// Prepared runs exactly once, when the echo threshold is first met.
	Prepared(ctx context.Context, cc *types.ConsensusContext) error

	// Committed runs exactly once, when the vote threshold is first met,
	// before persistence is asked to store the block.
	Committed(ctx context.Context, cc *types.ConsensusContext) error
}

// Noop is a do-nothing Callback, the equivalent of the original's
// DummyBroadcastCallBack, useful as the default when an application does
// not need any hook.
type Noop struct{}

func (Noop) PrePrepare(context.Context, types.Block, *types.ConsensusContext) (*types.Block, error) {
	return nil, nil
}

func (Noop) Prepare(context.Context, types.PeerId, types.Block, *types.ConsensusContext) (*types.Block, error) {
	return nil, nil
}

func (Noop) Commit(context.Context, types.PeerId, *types.ConsensusContext) error { return nil }

func (Noop) Prepared(context.Context, *types.ConsensusContext) error { return nil }

func (Noop) Committed(context.Context, *types.ConsensusContext) error { return nil }
