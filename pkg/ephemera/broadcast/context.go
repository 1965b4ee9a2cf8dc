package broadcast

import "github.com/nymtech/ephemera-sub001/pkg/ephemera/types"

// insertEcho records peer's echo signature if this is the first echo seen
// from peer for this Context. Re-receipt from the same peer is idempotently
// ignored even if the signature differs — first signature wins (spec §4.4
// "Ordering and tie-breaks").
func insertEcho(cc *types.ConsensusContext, peer types.PeerId, signature string) bool {
	if _, seen := cc.Echo[peer]; seen {
		return false
	}
	cc.Echo[peer] = signature
	return true
}

// insertVote records peer's vote signature under the same first-wins rule.
func insertVote(cc *types.ConsensusContext, peer types.PeerId, signature string) bool {
	if _, seen := cc.Vote[peer]; seen {
		return false
	}
	cc.Vote[peer] = signature
	return true
}

// advance moves a Context to a new phase. It never moves backward: the
// caller is responsible for only calling this with a phase greater than the
// current one (spec §8 invariant 2), which every call site in coordinator.go
// upholds by construction.
func advance(cc *types.ConsensusContext, to types.Phase) {
	cc.Phase = to
}
