package quorum_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/quorum"
)

func TestUnanimous_RequiresExactSize(t *testing.T) {
	p := quorum.Unanimous{}
	require.False(t, p.EchoThreshold(4, 3))
	require.True(t, p.EchoThreshold(4, 4))
	require.False(t, p.EchoThreshold(0, 0))
}

func TestFraction_RoundsUp(t *testing.T) {
	p := quorum.Fraction{Num: 2, Den: 3}
	require.False(t, p.VoteThreshold(4, 2))
	require.True(t, p.VoteThreshold(4, 3))
	require.True(t, p.VoteThreshold(3, 2))
}

func TestFraction_Monotone(t *testing.T) {
	p := quorum.Fraction{Num: 2, Den: 3}
	size := 10
	wasTrue := false
	for count := 0; count <= size; count++ {
		got := p.VoteThreshold(size, count)
		if wasTrue {
			require.True(t, got, "threshold must stay true once satisfied")
		}
		wasTrue = wasTrue || got
	}
}
