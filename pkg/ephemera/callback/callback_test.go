package callback_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/callback"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

func TestNoop_NeverVetoesOrTransformsAnyHook(t *testing.T) {
	var c callback.Callback = callback.Noop{}
	ctx := context.Background()
	cc := &types.ConsensusContext{}

	block, err := c.PrePrepare(ctx, types.Block{}, cc)
	require.NoError(t, err)
	require.Nil(t, block)

	block, err = c.Prepare(ctx, types.PeerId("p"), types.Block{}, cc)
	require.NoError(t, err)
	require.Nil(t, block)

	require.NoError(t, c.Commit(ctx, types.PeerId("p"), cc))
	require.NoError(t, c.Prepared(ctx, cc))
	require.NoError(t, c.Committed(ctx, cc))
}
