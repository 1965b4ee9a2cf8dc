// Package broadcast implements components D and E: the per-message
// four-phase reliable broadcast state machine and the coordinator that owns
// the table of live instances, dispatches inbound protocol messages to
// them, and emits outbound ones. It is grounded in the teacher's
// pkg/mcast/core/peer.go (a single owner polling a channel, dispatching by
// message type, re-sending on local state changes) generalised from "one
// in-flight message" to "one Context per block hash".
package broadcast

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

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

// RecentDeliveredCapacity bounds the LRU absorbing late-arriving duplicates
// after a Context reaches Delivered (spec §3 "Lifecycle").
const RecentDeliveredCapacity = 1024

// PendingVoteCapacity bounds the per-hash buffer of Votes that arrive before
// their Context exists (spec §4.4 edge case i).
const PendingVoteCapacity = 256

// DefaultStallTimeout is the wall-clock bound a Context may remain short of
// Committed before being garbage-collected (spec §4.5).
const DefaultStallTimeout = 30 * time.Second

// Transport is the capability the coordinator uses to emit outbound
// protocol messages. Implementations are given cloneable send handles only
// (spec §3 "Ownership") — the coordinator never reaches back into the
// transport's internals.
type Transport interface {
	Send(ctx context.Context, msg ProtocolMessage, destinations []types.PeerId) error
}

type pendingVote struct {
	signer    types.PeerId
	signature string
}

// Coordinator owns live and recent and is the single entry point for both
// inbound protocol messages (Handle) and local proposals (Propose). Per
// spec §5 it is not meant to be called concurrently with itself; the engine
// runtime's single task is the only caller in production, but every method
// is safe to call serially from tests without that discipline.
type Coordinator struct {
	self         types.PeerId
	registry     *registry.Registry
	policy       quorum.Policy
	keypair      crypto.KeyPair
	transport    Transport
	callback     callback.Callback
	store        storage.Store
	metrics      *metrics.Metrics
	log          logging.Logger
	stallTimeout time.Duration

	live    map[types.BlockHash]*types.ConsensusContext
	recent  *lru.Cache[types.BlockHash, struct{}]
	pending map[types.BlockHash][]pendingVote
}

// NewCoordinator builds a Coordinator. Tests typically pass
// storage.NewMemoryStore() and callback.Noop{} as store and callback.
func NewCoordinator(
	self types.PeerId,
	reg *registry.Registry,
	policy quorum.Policy,
	keypair crypto.KeyPair,
	transport Transport,
	cb callback.Callback,
	store storage.Store,
	m *metrics.Metrics,
	log logging.Logger,
) *Coordinator {
	recent, err := lru.New[types.BlockHash, struct{}](RecentDeliveredCapacity)
	if err != nil {
		panic(err)
	}
	return &Coordinator{
		self:         self,
		registry:     reg,
		policy:       policy,
		keypair:      keypair,
		transport:    transport,
		callback:     cb,
		store:        store,
		metrics:      m,
		log:          log.Named("broadcast"),
		stallTimeout: DefaultStallTimeout,
		live:         make(map[types.BlockHash]*types.ConsensusContext),
		recent:       recent,
		pending:      make(map[types.BlockHash][]pendingVote),
	}
}

// SetStallTimeout overrides DefaultStallTimeout, mainly for tests that want
// to exercise S2-style stalls without waiting 30 seconds.
func (c *Coordinator) SetStallTimeout(d time.Duration) {
	c.stallTimeout = d
}

// Live reports whether a Context for hash is currently tracked, for tests
// asserting invariant 3 (at most one Context per block_hash is ever live).
func (c *Coordinator) Live(hash types.BlockHash) (*types.ConsensusContext, bool) {
	cc, ok := c.live[hash]
	return cc, ok
}

func (c *Coordinator) drop(reason string, fields ...interface{}) {
	c.metrics.MessagesDropped.WithLabelValues(reason).Inc()
	c.log.Debugw("dropping protocol message", append([]interface{}{"reason", reason}, fields...)...)
}

// Propose opens a new Context for a locally-sealed block: the "local
// propose(block)" row of spec §4.4's transition table. The caller (the
// block producer) has already stamped block.Header.SnapshotId with the
// registry's current snapshot id.
func (c *Coordinator) Propose(ctx context.Context, block types.Block) (*types.ConsensusContext, error) {
	hash := block.Header.Hash
	if _, ok := c.live[hash]; ok {
		return nil, fmt.Errorf("broadcast: context for %x already live", hash)
	}
	if c.recent.Contains(hash) {
		return nil, fmt.Errorf("broadcast: block %x already delivered", hash)
	}

	snapshot, ok := c.registry.Get(block.Header.SnapshotId)
	if !ok {
		return nil, fmt.Errorf("broadcast: unknown snapshot %d", block.Header.SnapshotId)
	}

	cc := types.NewConsensusContext(hash, block.Header.SnapshotId, c.self, block, time.Now())
	c.live[hash] = cc

	sig, err := c.keypair.Sign(hash[:])
	if err != nil {
		return nil, err
	}
	insertEcho(cc, c.self, sig)
	advance(cc, types.PrePrepared)

	blockBytes, err := encodeBlock(block)
	if err != nil {
		return nil, err
	}
	msg := ProtocolMessage{
		Tag:        TagPrePrepare,
		BlockHash:  hash,
		SnapshotId: cc.SnapshotId,
		Signer:     c.self,
		BlockBytes: blockBytes,
	}
	msg.Signature = sig
	c.emit(ctx, snapshot, msg)

	c.replayPending(ctx, cc, snapshot)
	return cc, nil
}

// Handle is the single dispatch entry point for inbound protocol messages
// (spec §4.5). It is not concurrent with itself.
func (c *Coordinator) Handle(ctx context.Context, origin types.PeerId, msg ProtocolMessage) error {
	switch msg.Tag {
	case TagPrePrepare:
		return c.handlePrePrepare(ctx, origin, msg)
	case TagEcho:
		return c.handleEcho(ctx, origin, msg)
	case TagVote:
		return c.handleVote(ctx, origin, msg)
	case TagAck:
		// Optional heartbeat; spec §9 specifies no behaviour.
		return nil
	default:
		c.drop("unknown-tag", "tag", msg.Tag)
		return nil
	}
}

func (c *Coordinator) handlePrePrepare(ctx context.Context, origin types.PeerId, msg ProtocolMessage) error {
	if _, already := c.live[msg.BlockHash]; already {
		return nil
	}
	if c.recent.Contains(msg.BlockHash) {
		return nil
	}

	snapshot, ok := c.registry.Get(msg.SnapshotId)
	if !ok || !snapshot.Contains(origin) {
		c.drop("unknown-peer", "peer", origin, "hash", msg.BlockHash)
		return errs.ErrUnknownPeer
	}

	block, err := decodeBlock(msg.BlockBytes)
	if err != nil {
		c.drop("bad-preprepare", "peer", origin, "err", err)
		return err
	}
	if block.Header.Hash != msg.BlockHash {
		c.drop("hash-mismatch", "peer", origin)
		return errs.ErrVerificationFailed
	}
	if err := crypto.VerifyPeer(origin, msg.BlockHash[:], msg.Signature); err != nil {
		c.metrics.VerificationFailures.Inc()
		c.drop("verification-failed", "peer", origin)
		return errs.ErrVerificationFailed
	}

	cc := types.NewConsensusContext(msg.BlockHash, msg.SnapshotId, origin, block, time.Now())
	c.live[msg.BlockHash] = cc
	// The PrePrepare signature is the proposer's own echo over the hash.
	insertEcho(cc, origin, msg.Signature)

	replacement, err := c.callback.PrePrepare(ctx, block, cc)
	if err != nil {
		c.dropContext(cc, "callback-veto")
		return errs.ErrCallbackVeto
	}
	if replacement != nil {
		cc.Block = *replacement
	}

	sig, err := c.keypair.Sign(msg.BlockHash[:])
	if err != nil {
		return err
	}
	insertEcho(cc, c.self, sig)
	advance(cc, types.PrePrepared)

	echoMsg := ProtocolMessage{
		Tag:        TagEcho,
		BlockHash:  msg.BlockHash,
		SnapshotId: msg.SnapshotId,
		Signer:     c.self,
		Signature:  sig,
	}
	c.emit(ctx, snapshot, echoMsg)

	c.replayPending(ctx, cc, snapshot)
	return nil
}

func (c *Coordinator) handleEcho(ctx context.Context, origin types.PeerId, msg ProtocolMessage) error {
	cc, ok := c.live[msg.BlockHash]
	if !ok {
		// No Context yet: unlike Vote, an Echo arriving before PrePrepare
		// carries no information we can act on later, so it is dropped.
		c.drop("no-context", "tag", "echo", "hash", msg.BlockHash)
		return nil
	}
	return c.applyEcho(ctx, cc, origin, msg)
}

func (c *Coordinator) applyEcho(ctx context.Context, cc *types.ConsensusContext, origin types.PeerId, msg ProtocolMessage) error {
	snapshot, ok := c.registry.Get(cc.SnapshotId)
	if !ok || !snapshot.Contains(origin) {
		c.drop("unknown-peer", "peer", origin, "hash", msg.BlockHash)
		return errs.ErrUnknownPeer
	}
	if msg.BlockHash != cc.Key {
		c.drop("hash-mismatch", "peer", origin)
		return nil
	}
	if _, dup := cc.Echo[origin]; dup {
		c.drop("duplicate-echo", "peer", origin)
		return errs.ErrDuplicateEndorsement
	}
	if err := crypto.VerifyPeer(origin, cc.Key[:], msg.Signature); err != nil {
		c.metrics.VerificationFailures.Inc()
		c.drop("verification-failed", "peer", origin)
		return errs.ErrVerificationFailed
	}

	wasPrePrepared := cc.Phase == types.PrePrepared
	insertEcho(cc, origin, msg.Signature)

	replacement, err := c.callback.Prepare(ctx, origin, cc.Block, cc)
	if err != nil {
		c.dropContext(cc, "callback-veto")
		return errs.ErrCallbackVeto
	}
	if replacement != nil {
		cc.Block = *replacement
	}

	if wasPrePrepared && c.policy.EchoThreshold(snapshot.Size(), len(cc.Echo)) {
		if err := c.callback.Prepared(ctx, cc); err != nil {
			c.dropContext(cc, "callback-veto")
			return errs.ErrCallbackVeto
		}

		sig, err := c.keypair.Sign(cc.Key[:])
		if err != nil {
			return err
		}
		insertVote(cc, c.self, sig)
		advance(cc, types.Prepared)

		voteMsg := ProtocolMessage{
			Tag:        TagVote,
			BlockHash:  cc.Key,
			SnapshotId: cc.SnapshotId,
			Signer:     c.self,
			Signature:  sig,
		}
		c.emit(ctx, snapshot, voteMsg)
		c.replayPending(ctx, cc, snapshot)
	}
	return nil
}

func (c *Coordinator) handleVote(ctx context.Context, origin types.PeerId, msg ProtocolMessage) error {
	cc, ok := c.live[msg.BlockHash]
	if !ok {
		c.bufferVote(msg.BlockHash, origin, msg.Signature)
		return nil
	}
	return c.applyVote(ctx, cc, origin, msg)
}

func (c *Coordinator) bufferVote(hash types.BlockHash, signer types.PeerId, signature string) {
	bucket := c.pending[hash]
	if len(bucket) >= PendingVoteCapacity {
		c.drop("pending-vote-buffer-full", "hash", hash)
		return
	}
	c.pending[hash] = append(bucket, pendingVote{signer: signer, signature: signature})
}

func (c *Coordinator) replayPending(ctx context.Context, cc *types.ConsensusContext, snapshot types.Snapshot) {
	bucket := c.pending[cc.Key]
	if len(bucket) == 0 {
		return
	}
	delete(c.pending, cc.Key)
	for _, v := range bucket {
		msg := ProtocolMessage{Tag: TagVote, BlockHash: cc.Key, SnapshotId: cc.SnapshotId, Signer: v.signer, Signature: v.signature}
		_ = c.applyVote(ctx, cc, v.signer, msg)
	}
	_ = snapshot
}

func (c *Coordinator) applyVote(ctx context.Context, cc *types.ConsensusContext, origin types.PeerId, msg ProtocolMessage) error {
	snapshot, ok := c.registry.Get(cc.SnapshotId)
	if !ok || !snapshot.Contains(origin) {
		c.drop("unknown-peer", "peer", origin, "hash", msg.BlockHash)
		return errs.ErrUnknownPeer
	}
	if msg.BlockHash != cc.Key {
		c.drop("hash-mismatch", "peer", origin)
		return nil
	}
	if _, dup := cc.Vote[origin]; dup {
		c.drop("duplicate-vote", "peer", origin)
		return errs.ErrDuplicateEndorsement
	}
	if err := crypto.VerifyPeer(origin, cc.Key[:], msg.Signature); err != nil {
		c.metrics.VerificationFailures.Inc()
		c.drop("verification-failed", "peer", origin)
		return errs.ErrVerificationFailed
	}

	wasPrepared := cc.Phase == types.Prepared
	insertVote(cc, origin, msg.Signature)

	if err := c.callback.Commit(ctx, origin, cc); err != nil {
		c.dropContext(cc, "callback-veto")
		return errs.ErrCallbackVeto
	}

	if wasPrepared && c.policy.VoteThreshold(snapshot.Size(), len(cc.Vote)) {
		if err := c.callback.Committed(ctx, cc); err != nil {
			c.dropContext(cc, "callback-veto")
			return errs.ErrCallbackVeto
		}
		advance(cc, types.Committed)
		return c.finalise(ctx, cc)
	}
	return nil
}

// finalise persists a Committed block and its broadcast-group certificates,
// then moves the Context from live into recent (spec §3 "Lifecycle", §4.4
// "storage ack" -> Delivered).
func (c *Coordinator) finalise(ctx context.Context, cc *types.ConsensusContext) error {
	certs := make([]types.Certificate, 0, len(cc.Vote))
	group := make([]types.PeerId, 0, len(cc.Vote))
	for peer, sig := range cc.Vote {
		certs = append(certs, types.Certificate{Signer: peer, Signature: sig})
		group = append(group, peer)
	}

	if err := c.store.StoreBlock(cc.Block, certs, group); err != nil {
		if err == errs.ErrAlreadyExists {
			// Idempotent success, per spec §4.8.
		} else {
			c.log.Errorw("persistence failure, escalating to fatal", "hash", cc.Key, "err", err)
			return errs.ErrPersistence
		}
	}

	advance(cc, types.Delivered)
	delete(c.live, cc.Key)
	c.recent.Add(cc.Key, struct{}{})
	delete(c.pending, cc.Key)
	c.metrics.ContextsDelivered.Inc()
	c.metrics.BlocksFinalised.Inc()
	_ = ctx
	return nil
}

func (c *Coordinator) dropContext(cc *types.ConsensusContext, reason string) {
	advance(cc, types.Dropped)
	delete(c.live, cc.Key)
	delete(c.pending, cc.Key)
	c.drop(reason, "hash", cc.Key)
}

// EvictStalled garbage-collects live contexts whose FirstSeenAt exceeds the
// stall timeout without reaching Committed (spec §4.5 "Garbage collection").
// It is meant to be called once a second from the engine's single task, not
// from a free-running goroutine, so that eviction never races a transition.
func (c *Coordinator) EvictStalled(now time.Time) int {
	evicted := 0
	for hash, cc := range c.live {
		if cc.Phase == types.Committed || cc.Phase == types.Delivered {
			continue
		}
		if now.Sub(cc.FirstSeenAt) > c.stallTimeout {
			delete(c.live, hash)
			delete(c.pending, hash)
			c.metrics.ContextsEvicted.Inc()
			c.log.Warnw("context stalled, evicting", "hash", hash, "phase", cc.Phase.String())
			evicted++
		}
	}
	return evicted
}

func (c *Coordinator) emit(ctx context.Context, snapshot types.Snapshot, msg ProtocolMessage) {
	destinations := make([]types.PeerId, 0, len(snapshot.Members))
	for peer := range snapshot.Members {
		destinations = append(destinations, peer)
	}
	if err := c.transport.Send(ctx, msg, destinations); err != nil {
		c.log.Warnw("failed to emit protocol message", "tag", msg.Tag, "hash", msg.BlockHash, "err", err)
	}
}
