package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/registry"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

func TestRegistry_CurrentOnEmptyIsSnapshotZero(t *testing.T) {
	r := registry.New()
	snap := r.Current()
	require.Equal(t, uint64(0), snap.Id)
	require.Equal(t, 0, snap.Size())
}

func TestRegistry_InstallAllocatesMonotonicIds(t *testing.T) {
	r := registry.New()
	a := types.PeerId("peer-a")
	b := types.PeerId("peer-b")

	s1 := r.Install([]types.PeerId{a})
	require.Equal(t, uint64(1), s1.Id)

	s2 := r.Install([]types.PeerId{a, b})
	require.Equal(t, uint64(2), s2.Id)
	require.Equal(t, s2.Id, r.Current().Id)

	got, ok := r.Get(1)
	require.True(t, ok)
	require.Equal(t, 1, got.Size())
}

func TestRegistry_InstallNeverMutatesPriorSnapshot(t *testing.T) {
	r := registry.New()
	a := types.PeerId("peer-a")
	s1 := r.Install([]types.PeerId{a})
	r.Install([]types.PeerId{a, types.PeerId("peer-b")})

	again, ok := r.Get(s1.Id)
	require.True(t, ok)
	require.Equal(t, 1, again.Size())
}

func TestRegistry_DiffersFromCurrent(t *testing.T) {
	r := registry.New()
	a := types.PeerId("peer-a")
	b := types.PeerId("peer-b")
	r.Install([]types.PeerId{a, b})

	require.False(t, r.DiffersFromCurrent([]types.PeerId{a, b}))
	require.False(t, r.DiffersFromCurrent([]types.PeerId{b, a}))
	require.True(t, r.DiffersFromCurrent([]types.PeerId{a}))
	require.True(t, r.DiffersFromCurrent([]types.PeerId{a, b, types.PeerId("peer-c")}))
}

func TestRegistry_BoundedHistoryEvictsOldestSnapshot(t *testing.T) {
	r := registry.NewWithCapacity(2)
	a := types.PeerId("peer-a")

	r.Install([]types.PeerId{a})
	r.Install([]types.PeerId{a})
	r.Install([]types.PeerId{a})

	_, ok := r.Get(1)
	require.False(t, ok, "oldest snapshot should have been evicted once capacity was exceeded")

	_, ok = r.Get(3)
	require.True(t, ok)
}
