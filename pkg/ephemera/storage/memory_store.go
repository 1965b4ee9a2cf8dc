package storage

import (
	"sync"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/errs"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// MemoryStore is an in-process Store backend for tests and single-process
// demos, mirroring the teacher's lightweight map-backed Storage type
// (pkg/mcast/types/storage.go) rather than the production pebble backend.
type MemoryStore struct {
	mu sync.RWMutex

	blocks       map[types.BlockHash]types.Block
	byHeight     map[uint64]types.BlockHash
	certificates map[types.BlockHash][]types.Certificate
	groups       map[types.BlockHash][]types.PeerId
	byRequestID  map[string]types.SignedMessage
	lastHash     types.BlockHash
	hasLast      bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:       make(map[types.BlockHash]types.Block),
		byHeight:     make(map[uint64]types.BlockHash),
		certificates: make(map[types.BlockHash][]types.Certificate),
		groups:       make(map[types.BlockHash][]types.PeerId),
		byRequestID:  make(map[string]types.SignedMessage),
	}
}

func (s *MemoryStore) StoreBlock(block types.Block, certificates []types.Certificate, broadcastGroup []types.PeerId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[block.Header.Hash]; ok {
		return errs.ErrAlreadyExists
	}

	s.blocks[block.Header.Hash] = block
	s.byHeight[block.Header.Height] = block.Header.Hash

	certsCopy := make([]types.Certificate, len(certificates))
	copy(certsCopy, certificates)
	s.certificates[block.Header.Hash] = certsCopy

	groupCopy := make([]types.PeerId, len(broadcastGroup))
	copy(groupCopy, broadcastGroup)
	s.groups[block.Header.Hash] = groupCopy

	for _, sm := range block.Body {
		if sm.Message.RequestId == "" {
			continue
		}
		s.byRequestID[sm.Message.RequestId] = sm
	}

	s.lastHash = block.Header.Hash
	s.hasLast = true
	return nil
}

func (s *MemoryStore) GetBlockByID(hash types.BlockHash) (types.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	block, ok := s.blocks[hash]
	return block, ok, nil
}

func (s *MemoryStore) GetBlockByHeight(height uint64) (types.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hash, ok := s.byHeight[height]
	if !ok {
		return types.Block{}, false, nil
	}
	block, ok := s.blocks[hash]
	return block, ok, nil
}

func (s *MemoryStore) GetLastBlock() (types.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasLast {
		return types.Block{}, false, nil
	}
	block, ok := s.blocks[s.lastHash]
	return block, ok, nil
}

func (s *MemoryStore) GetBlockCertificates(hash types.BlockHash) ([]types.Certificate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	certs, ok := s.certificates[hash]
	return certs, ok, nil
}

func (s *MemoryStore) GetBlockBroadcastGroup(hash types.BlockHash) ([]types.PeerId, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group, ok := s.groups[hash]
	return group, ok, nil
}

func (s *MemoryStore) GetMessageByRequestID(requestID string) (types.SignedMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sm, ok := s.byRequestID[requestID]
	return sm, ok, nil
}
