package api

import (
	"context"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/callback"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// NotifyingCallback wraps another callback.Callback and additionally pushes
// a delivered-block notification to the admin websocket hub when a block
// commits, so the Hub is driven by the real finalisation path rather than
// sitting unreferenced behind the HTTP upgrade route.
type NotifyingCallback struct {
	callback.Callback
	Hub *Hub
}

func (n NotifyingCallback) Committed(ctx context.Context, cc *types.ConsensusContext) error {
	if err := n.Callback.Committed(ctx, cc); err != nil {
		return err
	}
	if n.Hub != nil {
		n.Hub.NotifyDelivered(cc.Block)
	}
	return nil
}
