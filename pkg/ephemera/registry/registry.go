// Package registry implements component B: the membership registry. It
// holds the current snapshot plus the most recent N, exactly mirroring
// node/src/broadcast/bracha/topology.rs's BroadcastTopology, which backs
// its snapshot cache with an `lru::LruCache<u64, HashSet<PeerId>>`.
package registry

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// DefaultCapacity is the bounded number of recent snapshots retained,
// matching the original's NonZeroUsize::new(1000).
const DefaultCapacity = 1000

// Registry stores the current and most-recent-N snapshots. Reads
// (Current/Get) may run concurrently with each other; Install is serialised
// by the engine's single reconciliation point (spec §4.2) but the internal
// mutex makes the type safe to call from tests without that discipline.
type Registry struct {
	mu        sync.RWMutex
	cache     *lru.Cache[uint64, types.Snapshot]
	currentId uint64
}

// New builds an empty Registry with the default bounded history.
func New() *Registry {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity builds a Registry retaining at most capacity snapshots.
func NewWithCapacity(capacity int) *Registry {
	cache, err := lru.New[uint64, types.Snapshot](capacity)
	if err != nil {
		// Only returns an error for capacity <= 0, which is a programmer error.
		panic(err)
	}
	return &Registry{cache: cache}
}

// Current returns the most recently installed snapshot. The zero Registry
// (no Install yet) reports snapshot id 0 with no members.
func (r *Registry) Current() types.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.cache.Get(r.currentId)
	if !ok {
		return types.Snapshot{Id: r.currentId, Members: map[types.PeerId]struct{}{}}
	}
	return snap
}

// Get returns the snapshot for a given id, if it is still in the bounded
// history.
func (r *Registry) Get(id uint64) (types.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Get(id)
}

// Install allocates a new snapshot id (previous + 1) over the given member
// set and stores it, returning the resulting Snapshot. It never mutates an
// existing Snapshot in place.
func (r *Registry) Install(members []types.PeerId) types.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentId++
	snap := types.NewSnapshot(r.currentId, members)
	r.cache.Add(r.currentId, snap)
	return snap
}

// DiffersFromCurrent reports whether the given member set differs from the
// currently installed snapshot's members, used by the peer-discovery
// reconciliation (spec §6 "Peer discovery contract") to avoid installing a
// redundant snapshot on every discovery tick.
func (r *Registry) DiffersFromCurrent(members []types.PeerId) bool {
	current := r.Current()
	if len(members) != len(current.Members) {
		return true
	}
	for _, m := range members {
		if !current.Contains(m) {
			return true
		}
	}
	return false
}
