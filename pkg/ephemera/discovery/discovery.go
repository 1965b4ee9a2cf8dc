// Package discovery implements the peer-discovery contract named in spec §6:
// an external collaborator pushes PeerInfo at its own cadence, and the
// engine reconciles the resulting membership into the registry only when it
// actually changed.
package discovery

import (
	"github.com/mr-tron/base58"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/registry"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// PeerInfo is what the discovery collaborator reports for one known peer.
// PublicKeyBase58 is base58-decoded and turned into a PeerId the same way
// luxfi-consensus decodes validator keys (its go.mod pulls in
// github.com/mr-tron/base58 for exactly this).
type PeerInfo struct {
	Name            string
	Multiaddress    string
	PublicKeyBase58 string
}

// Reconciler installs a new snapshot from a discovery push, but only when
// the resulting member set actually differs from the one currently
// installed (spec §6: "installs the resulting set as a new snapshot only if
// it differs from the current members").
type Reconciler struct {
	registry *registry.Registry
	log      logging.Logger
}

func NewReconciler(reg *registry.Registry, log logging.Logger) *Reconciler {
	return &Reconciler{registry: reg, log: log.Named("discovery")}
}

// PushPeers is the entry point the discovery collaborator calls at its own
// cadence (default 60s per spec §6). Entries with an undecodable key are
// skipped and logged rather than aborting the whole push, since one bad
// entry from a third-party discovery source should not block membership
// reconciliation for every other peer.
func (r *Reconciler) PushPeers(infos []PeerInfo) (types.Snapshot, bool) {
	members := make([]types.PeerId, 0, len(infos))
	for _, info := range infos {
		pub, err := base58.Decode(info.PublicKeyBase58)
		if err != nil {
			r.log.Warnw("discarding peer with undecodable public key", "name", info.Name, "err", err)
			continue
		}
		id, err := types.PeerIDFromEd25519(pub)
		if err != nil {
			r.log.Warnw("discarding peer with invalid public key", "name", info.Name, "err", err)
			continue
		}
		members = append(members, id)
	}

	if !r.registry.DiffersFromCurrent(members) {
		return r.registry.Current(), false
	}

	snap := r.registry.Install(members)
	r.log.Infow("installed new snapshot from discovery push", "snapshot_id", snap.Id, "size", snap.Size())
	return snap, true
}
