// Package storage implements component H: the persistence contract. The
// shape of Store is grounded in the original's EphemeraDatabase trait
// (node/src/storage/mod.rs) — one atomic write covering a block, its
// certificates and its broadcast group, plus the six read paths spec §4.8
// and §6 name.
package storage

import "github.com/nymtech/ephemera-sub001/pkg/ephemera/types"

// Store is the persistence contract the engine depends on. StoreBlock must
// be atomic across its three logical writes (block body, certificate set,
// broadcast-group peer list); calling it twice for the same hash is
// observationally equivalent to calling it once (spec §8 invariant 8) and
// returns ErrAlreadyExists, which callers treat as idempotent success.
type Store interface {
	StoreBlock(block types.Block, certificates []types.Certificate, broadcastGroup []types.PeerId) error
	GetBlockByID(hash types.BlockHash) (types.Block, bool, error)
	GetBlockByHeight(height uint64) (types.Block, bool, error)
	GetLastBlock() (types.Block, bool, error)
	GetBlockCertificates(hash types.BlockHash) ([]types.Certificate, bool, error)
	GetBlockBroadcastGroup(hash types.BlockHash) ([]types.PeerId, bool, error)

	// GetMessageByRequestID supports the query API's `GET message/{request_id}`
	// (spec §6); it looks the id up in a request-id index that StoreBlock
	// writes for every message of a stored block.
	GetMessageByRequestID(requestID string) (types.SignedMessage, bool, error)
}
