package broadcast_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/broadcast"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/callback"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/errs"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/metrics"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/quorum"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/registry"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/storage"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

type capturingTransport struct {
	sent []broadcast.ProtocolMessage
}

func (c *capturingTransport) Send(_ context.Context, msg broadcast.ProtocolMessage, _ []types.PeerId) error {
	c.sent = append(c.sent, msg)
	return nil
}

func (c *capturingTransport) last() broadcast.ProtocolMessage {
	return c.sent[len(c.sent)-1]
}

type harness struct {
	self, peerB, peerC *crypto.Ed25519KeyPair
	reg                *registry.Registry
	store              *storage.MemoryStore
	transport          *capturingTransport
	coord              *broadcast.Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	self, err := crypto.Generate()
	require.NoError(t, err)
	peerB, err := crypto.Generate()
	require.NoError(t, err)
	peerC, err := crypto.Generate()
	require.NoError(t, err)

	reg := registry.New()
	reg.Install([]types.PeerId{self.PeerId(), peerB.PeerId(), peerC.PeerId()})

	store := storage.NewMemoryStore()
	m := metrics.New(prometheus.NewRegistry())
	log := logging.NewDevelopment()
	transport := &capturingTransport{}

	coord := broadcast.NewCoordinator(self.PeerId(), reg, quorum.Unanimous{}, self, transport, callback.Noop{}, store, m, log)

	return &harness{self: self, peerB: peerB, peerC: peerC, reg: reg, store: store, transport: transport, coord: coord}
}

func sampleBlock(h *harness, height uint64) types.Block {
	header := types.Header{
		Height:     height,
		ParentHash: types.GenesisHash,
		Proposer:   h.self.PeerId(),
		SnapshotId: h.reg.Current().Id,
	}
	return types.Seal(header, nil)
}

func echoFrom(t *testing.T, kp *crypto.Ed25519KeyPair, hash types.BlockHash, snapshotId uint64) broadcast.ProtocolMessage {
	t.Helper()
	sig, err := kp.Sign(hash[:])
	require.NoError(t, err)
	return broadcast.ProtocolMessage{
		Tag:        broadcast.TagEcho,
		BlockHash:  hash,
		SnapshotId: snapshotId,
		Signer:     kp.PeerId(),
		Signature:  sig,
	}
}

func voteFrom(t *testing.T, kp *crypto.Ed25519KeyPair, hash types.BlockHash, snapshotId uint64) broadcast.ProtocolMessage {
	t.Helper()
	sig, err := kp.Sign(hash[:])
	require.NoError(t, err)
	return broadcast.ProtocolMessage{
		Tag:        broadcast.TagVote,
		BlockHash:  hash,
		SnapshotId: snapshotId,
		Signer:     kp.PeerId(),
		Signature:  sig,
	}
}

func TestPropose_CreatesLiveContextWithSelfEcho(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)

	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)
	require.Equal(t, types.PrePrepared, cc.Phase)
	require.Len(t, cc.Echo, 1)

	_, live := h.coord.Live(blk.Header.Hash)
	require.True(t, live)
	require.Equal(t, broadcast.TagPrePrepare, h.transport.last().Tag)
}

func TestEchoQuorum_BoundaryTransitionExactlyOnce(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)
	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.coord.Handle(ctx, h.peerB.PeerId(), echoFrom(t, h.peerB, blk.Header.Hash, cc.SnapshotId)))
	require.Equal(t, types.PrePrepared, cc.Phase, "N-1 of N echoes must not trigger Prepared")

	sentBefore := len(h.transport.sent)
	require.NoError(t, h.coord.Handle(ctx, h.peerC.PeerId(), echoFrom(t, h.peerC, blk.Header.Hash, cc.SnapshotId)))
	require.Equal(t, types.Prepared, cc.Phase, "the Nth echo must trigger exactly one Prepared transition")
	require.Equal(t, sentBefore+1, len(h.transport.sent), "exactly one Vote must be emitted")
	require.Equal(t, broadcast.TagVote, h.transport.last().Tag)
}

func TestVoteQuorum_FinalisesAndPersists(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)
	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, h.coord.Handle(ctx, h.peerB.PeerId(), echoFrom(t, h.peerB, blk.Header.Hash, cc.SnapshotId)))
	require.NoError(t, h.coord.Handle(ctx, h.peerC.PeerId(), echoFrom(t, h.peerC, blk.Header.Hash, cc.SnapshotId)))
	require.Equal(t, types.Prepared, cc.Phase)

	require.NoError(t, h.coord.Handle(ctx, h.peerB.PeerId(), voteFrom(t, h.peerB, blk.Header.Hash, cc.SnapshotId)))
	require.NoError(t, h.coord.Handle(ctx, h.peerC.PeerId(), voteFrom(t, h.peerC, blk.Header.Hash, cc.SnapshotId)))

	require.Equal(t, types.Delivered, cc.Phase)
	_, stillLive := h.coord.Live(blk.Header.Hash)
	require.False(t, stillLive, "a Delivered context must leave the live table")

	stored, ok, err := h.store.GetBlockByID(blk.Header.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, blk.Header.Hash, stored.Header.Hash)

	certs, ok, err := h.store.GetBlockCertificates(blk.Header.Hash)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, certs, 3)
}

func TestDuplicateEcho_FirstSignatureWins(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)
	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)

	ctx := context.Background()
	first := echoFrom(t, h.peerB, blk.Header.Hash, cc.SnapshotId)
	require.NoError(t, h.coord.Handle(ctx, h.peerB.PeerId(), first))

	second := echoFrom(t, h.peerB, blk.Header.Hash, cc.SnapshotId)
	err = h.coord.Handle(ctx, h.peerB.PeerId(), second)
	require.ErrorIs(t, err, errs.ErrDuplicateEndorsement)
	require.Equal(t, first.Signature, cc.Echo[h.peerB.PeerId()])
}

func TestUnknownPeer_EchoIsRejected(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)
	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)

	intruder, err := crypto.Generate()
	require.NoError(t, err)

	err = h.coord.Handle(context.Background(), intruder.PeerId(), echoFrom(t, intruder, blk.Header.Hash, cc.SnapshotId))
	require.ErrorIs(t, err, errs.ErrUnknownPeer)
}

func TestVerificationFailure_DroppedWithoutBlockingRetry(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)
	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)

	bad := echoFrom(t, h.peerB, blk.Header.Hash, cc.SnapshotId)
	bad.Signature = "deadbeef"
	err = h.coord.Handle(context.Background(), h.peerB.PeerId(), bad)
	require.ErrorIs(t, err, errs.ErrVerificationFailed)
	require.NotContains(t, cc.Echo, h.peerB.PeerId())

	good := echoFrom(t, h.peerB, blk.Header.Hash, cc.SnapshotId)
	require.NoError(t, h.coord.Handle(context.Background(), h.peerB.PeerId(), good))
	require.Contains(t, cc.Echo, h.peerB.PeerId())
}

func TestVoteBeforePrePrepare_IsBufferedThenReplayed(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)
	snapshotId := h.reg.Current().Id

	earlyVote := voteFrom(t, h.peerB, blk.Header.Hash, snapshotId)
	require.NoError(t, h.coord.Handle(context.Background(), h.peerB.PeerId(), earlyVote))
	_, live := h.coord.Live(blk.Header.Hash)
	require.False(t, live)

	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)
	require.Contains(t, cc.Vote, h.peerB.PeerId(), "buffered vote must be replayed once the Context exists")
}

func TestEvictStalled_RemovesOnlyContextsPastDeadline(t *testing.T) {
	h := newHarness(t)
	h.coord.SetStallTimeout(10 * time.Millisecond)

	blk := sampleBlock(h, 0)
	_, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)

	evicted := h.coord.EvictStalled(time.Now())
	require.Equal(t, 0, evicted, "context has not exceeded the stall timeout yet")

	evicted = h.coord.EvictStalled(time.Now().Add(time.Hour))
	require.Equal(t, 1, evicted)
	_, live := h.coord.Live(blk.Header.Hash)
	require.False(t, live)
}

func TestSnapshotChangeMidFlight_InFlightContextKeepsOriginalSnapshot(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)
	cc, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)
	originalSnapshot := cc.SnapshotId

	// A new snapshot replaces peerC with peerD while blk is still in flight
	// (spec S5: {P1,P2,P3} at snapshot 5 -> {P1,P2,P4} at snapshot 6).
	peerD, err := crypto.Generate()
	require.NoError(t, err)
	newSnapshot := h.reg.Install([]types.PeerId{h.self.PeerId(), h.peerB.PeerId(), peerD.PeerId()})
	require.NotEqual(t, originalSnapshot, newSnapshot.Id)

	ctx := context.Background()
	err = h.coord.Handle(ctx, peerD.PeerId(), echoFrom(t, peerD, blk.Header.Hash, originalSnapshot))
	require.ErrorIs(t, err, errs.ErrUnknownPeer, "peerD is not a member of the snapshot blk was proposed under, even though it is a member of the current one")

	require.NoError(t, h.coord.Handle(ctx, h.peerB.PeerId(), echoFrom(t, h.peerB, blk.Header.Hash, originalSnapshot)))
	require.NoError(t, h.coord.Handle(ctx, h.peerC.PeerId(), echoFrom(t, h.peerC, blk.Header.Hash, originalSnapshot)))
	require.Equal(t, types.Prepared, cc.Phase, "quorum must still be computed against the 3-peer snapshot blk proposed under, including the since-evicted peerC")

	require.NoError(t, h.coord.Handle(ctx, h.peerB.PeerId(), voteFrom(t, h.peerB, blk.Header.Hash, originalSnapshot)))
	require.NoError(t, h.coord.Handle(ctx, h.peerC.PeerId(), voteFrom(t, h.peerC, blk.Header.Hash, originalSnapshot)))
	require.Equal(t, types.Delivered, cc.Phase, "the in-flight context must reach Delivered against its own snapshot, unaffected by the later Install")

	// A fresh proposal after the change uses the new snapshot.
	blk2 := sampleBlock(h, 1)
	cc2, err := h.coord.Propose(ctx, blk2)
	require.NoError(t, err)
	require.Equal(t, newSnapshot.Id, cc2.SnapshotId)
}

func TestPropose_RejectsSecondProposalForSameHash(t *testing.T) {
	h := newHarness(t)
	blk := sampleBlock(h, 0)

	_, err := h.coord.Propose(context.Background(), blk)
	require.NoError(t, err)

	_, err = h.coord.Propose(context.Background(), blk)
	require.Error(t, err)
}
