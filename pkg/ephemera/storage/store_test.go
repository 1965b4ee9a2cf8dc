package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/errs"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/storage"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

func newPeerID(t *testing.T) types.PeerId {
	t.Helper()
	kp, err := crypto.Generate()
	require.NoError(t, err)
	return kp.PeerId()
}

func sampleBlock(height uint64, requestID string, proposer types.PeerId) types.Block {
	header := types.Header{
		Height:     height,
		ParentHash: types.GenesisHash,
		SnapshotId: 1,
		Proposer:   proposer,
	}
	body := []types.SignedMessage{
		{
			Message: types.Message{
				RequestId: requestID,
				CustomId:  "c1",
				Bytes:     []byte("payload"),
			},
			SignerPublicKey: []byte("pub"),
			Signature:       "sig",
		},
	}
	return types.Seal(header, body)
}

func testStoreRoundTrip(t *testing.T, store storage.Store) {
	t.Helper()

	peerA, peerB := newPeerID(t), newPeerID(t)
	block := sampleBlock(1, "req-1", peerA)
	certs := []types.Certificate{{Signer: peerA, Signature: "sig-a"}}
	group := []types.PeerId{peerA, peerB}

	require.NoError(t, store.StoreBlock(block, certs, group))

	err := store.StoreBlock(block, certs, group)
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	gotByID, ok, err := store.GetBlockByID(block.Header.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Header.Hash, gotByID.Header.Hash)

	gotByHeight, ok, err := store.GetBlockByHeight(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Header.Hash, gotByHeight.Header.Hash)

	last, ok, err := store.GetLastBlock()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, block.Header.Hash, last.Header.Hash)

	gotCerts, ok, err := store.GetBlockCertificates(block.Header.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, certs, gotCerts)

	gotGroup, ok, err := store.GetBlockBroadcastGroup(block.Header.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, group, gotGroup)

	sm, ok, err := store.GetMessageByRequestID("req-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "req-1", sm.Message.RequestId)

	_, ok, err = store.GetMessageByRequestID("does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	testStoreRoundTrip(t, storage.NewMemoryStore())
}

func TestPebbleStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.Open(dir)
	require.NoError(t, err)
	defer store.Close()

	testStoreRoundTrip(t, store)
}

func TestMemoryStore_MissingBlockByHeight(t *testing.T) {
	store := storage.NewMemoryStore()
	_, ok, err := store.GetBlockByHeight(99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStore_MissingLastBlock(t *testing.T) {
	store := storage.NewMemoryStore()
	_, ok, err := store.GetLastBlock()
	require.NoError(t, err)
	require.False(t, ok)
}
