package types

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// BlockHash is a keccak-256 digest over a block's canonical serialisation.
type BlockHash [32]byte

// GenesisHash is the well-known parent hash used by the first block of a
// chain, when the store is empty.
var GenesisHash BlockHash

// Header carries everything about a Block except its body.
type Header struct {
	Hash       BlockHash
	Height     uint64
	ParentHash BlockHash
	Proposer   PeerId
	SnapshotId uint64
}

// Block is the unit totalised by the broadcast engine: a proposer-sealed,
// ordered batch of SignedMessage, chained to its parent by hash.
type Block struct {
	Header Header
	Body   []SignedMessage
}

// Certificate is a peer's signature over a block hash, evidence that the
// peer endorsed the block during broadcast.
type Certificate struct {
	Signer    PeerId
	Signature string
}

// ComputeHash derives the canonical keccak-256 hash of a block: the header
// minus its own Hash field, concatenated with the ordered body.
func ComputeHash(header Header, body []SignedMessage) BlockHash {
	h := sha3.NewLegacyKeccak256()

	var height [8]byte
	binary.BigEndian.PutUint64(height[:], header.Height)
	h.Write(height[:])
	h.Write(header.ParentHash[:])
	h.Write([]byte(header.Proposer))

	var snapshotId [8]byte
	binary.BigEndian.PutUint64(snapshotId[:], header.SnapshotId)
	h.Write(snapshotId[:])

	for _, sm := range body {
		h.Write([]byte(sm.Message.RequestId))
		h.Write(sm.Message.Bytes)
		h.Write(sm.SignerPublicKey)
		h.Write([]byte(sm.Signature))
	}

	var out BlockHash
	copy(out[:], h.Sum(nil))
	return out
}

// Seal computes and fixes Header.Hash for a freshly assembled block.
func Seal(header Header, body []SignedMessage) Block {
	header.Hash = ComputeHash(header, body)
	return Block{Header: header, Body: body}
}
