package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/errs"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// Key prefixes for the logical collections named in spec §6 "Persisted
// layout": blocks, heights, certs, groups, and a singleton last_block_hash.
const (
	prefixBlock       = 'b'
	prefixHeight       = 'h'
	prefixCertificates = 'c'
	prefixGroup        = 'g'
	prefixRequestIndex = 'r'
	lastBlockKey       = "last_block_hash"
)

// PebbleStore is the production Store backend, an embedded LSM KV store —
// the Go-ecosystem analogue of the original's RocksDB backend
// (node/src/storage/rocksdb), reusing the pack's own
// cockroachdb/pebble dependency (luxfi-consensus's go.mod).
type PebbleStore struct {
	db *pebble.DB
}

// Open opens (creating if absent) a PebbleStore at dir.
func Open(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func blockKey(hash types.BlockHash) []byte {
	return append([]byte{prefixBlock}, hash[:]...)
}

func heightKey(height uint64) []byte {
	buf := make([]byte, 9)
	buf[0] = prefixHeight
	binary.BigEndian.PutUint64(buf[1:], height)
	return buf
}

func certsKey(hash types.BlockHash) []byte {
	return append([]byte{prefixCertificates}, hash[:]...)
}

func groupKey(hash types.BlockHash) []byte {
	return append([]byte{prefixGroup}, hash[:]...)
}

func requestIndexKey(requestID string) []byte {
	return append([]byte{prefixRequestIndex}, []byte(requestID)...)
}

// StoreBlock atomically writes the block, its height index, its
// certificates, its broadcast group, the request-id index for every message
// in its body, and advances last_block_hash — all inside a single
// pebble.Batch, Pebble's analogue of the original's single SQL transaction
// (node/src/storage/sqlite/store.rs).
func (s *PebbleStore) StoreBlock(block types.Block, certificates []types.Certificate, broadcastGroup []types.PeerId) error {
	if _, closer, err := s.db.Get(blockKey(block.Header.Hash)); err == nil {
		_ = closer.Close()
		return errs.ErrAlreadyExists
	}

	blockBytes, err := json.Marshal(block)
	if err != nil {
		return err
	}
	certBytes, err := json.Marshal(certificates)
	if err != nil {
		return err
	}
	groupBytes, err := json.Marshal(broadcastGroup)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(blockKey(block.Header.Hash), blockBytes, nil); err != nil {
		return err
	}
	if err := batch.Set(heightKey(block.Header.Height), block.Header.Hash[:], nil); err != nil {
		return err
	}
	if err := batch.Set(certsKey(block.Header.Hash), certBytes, nil); err != nil {
		return err
	}
	if err := batch.Set(groupKey(block.Header.Hash), groupBytes, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(lastBlockKey), block.Header.Hash[:], nil); err != nil {
		return err
	}
	for _, sm := range block.Body {
		if sm.Message.RequestId == "" {
			continue
		}
		if err := batch.Set(requestIndexKey(sm.Message.RequestId), block.Header.Hash[:], nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) getBlockByHash(hash types.BlockHash) (types.Block, bool, error) {
	data, closer, err := s.db.Get(blockKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Block{}, false, nil
	}
	if err != nil {
		return types.Block{}, false, err
	}
	defer closer.Close()

	var block types.Block
	if err := json.Unmarshal(data, &block); err != nil {
		return types.Block{}, false, err
	}
	return block, true, nil
}

func (s *PebbleStore) GetBlockByID(hash types.BlockHash) (types.Block, bool, error) {
	return s.getBlockByHash(hash)
}

func (s *PebbleStore) GetBlockByHeight(height uint64) (types.Block, bool, error) {
	data, closer, err := s.db.Get(heightKey(height))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Block{}, false, nil
	}
	if err != nil {
		return types.Block{}, false, err
	}
	var hash types.BlockHash
	copy(hash[:], data)
	closer.Close()
	return s.getBlockByHash(hash)
}

func (s *PebbleStore) GetLastBlock() (types.Block, bool, error) {
	data, closer, err := s.db.Get([]byte(lastBlockKey))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.Block{}, false, nil
	}
	if err != nil {
		return types.Block{}, false, err
	}
	var hash types.BlockHash
	copy(hash[:], data)
	closer.Close()
	return s.getBlockByHash(hash)
}

func (s *PebbleStore) GetBlockCertificates(hash types.BlockHash) ([]types.Certificate, bool, error) {
	data, closer, err := s.db.Get(certsKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	var certs []types.Certificate
	if err := json.Unmarshal(data, &certs); err != nil {
		return nil, false, err
	}
	return certs, true, nil
}

func (s *PebbleStore) GetBlockBroadcastGroup(hash types.BlockHash) ([]types.PeerId, bool, error) {
	data, closer, err := s.db.Get(groupKey(hash))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	var group []types.PeerId
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, false, err
	}
	return group, true, nil
}

func (s *PebbleStore) GetMessageByRequestID(requestID string) (types.SignedMessage, bool, error) {
	data, closer, err := s.db.Get(requestIndexKey(requestID))
	if errors.Is(err, pebble.ErrNotFound) {
		return types.SignedMessage{}, false, nil
	}
	if err != nil {
		return types.SignedMessage{}, false, err
	}
	var hash types.BlockHash
	copy(hash[:], data)
	closer.Close()

	block, ok, err := s.getBlockByHash(hash)
	if err != nil || !ok {
		return types.SignedMessage{}, false, err
	}
	for _, sm := range block.Body {
		if sm.Message.RequestId == requestID {
			return sm, true, nil
		}
	}
	return types.SignedMessage{}, false, nil
}
