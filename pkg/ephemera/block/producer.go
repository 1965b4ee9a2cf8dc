// Package block implements component F: the block producer. It batches
// submitted SignedMessage values into candidate blocks and drives each one
// through the broadcast coordinator (D/E), the same "accumulate, then hand
// off to the protocol layer" shape as the teacher's Peer.Command, generalised
// from "one message at a time" to "a batch sealed into a Block".
package block

import (
	"context"
	"sync"
	"time"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/broadcast"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/errs"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/metrics"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/registry"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/storage"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// PendingQueueCapacity bounds the number of accepted-but-not-yet-sealed
// messages (spec §4.6).
const PendingQueueCapacity = 10_000

// DefaultMaxMessagesPerBlock is the default size trigger for sealing.
const DefaultMaxMessagesPerBlock = 200

// DefaultBlockInterval is the default time trigger for sealing.
const DefaultBlockInterval = 1 * time.Second

// Producer accepts submitted messages, verifies and queues them, and seals
// candidate blocks into the broadcast coordinator once one of the three
// triggers in spec §4.6 fires. It is safe for concurrent Submit calls from
// multiple API handlers; sealing itself runs under the same lock so at most
// one block is ever being assembled at a time.
type Producer struct {
	mu sync.Mutex

	self     types.PeerId
	registry *registry.Registry
	store    storage.Store
	coord    *broadcast.Coordinator
	callback ProducerCallback
	metrics  *metrics.Metrics
	log      logging.Logger

	maxMessagesPerBlock int
	blockInterval       time.Duration

	pending  []types.SignedMessage
	lastSeal time.Time
}

// New builds a Producer with the default size/interval triggers.
func New(
	self types.PeerId,
	reg *registry.Registry,
	store storage.Store,
	coord *broadcast.Coordinator,
	cb ProducerCallback,
	m *metrics.Metrics,
	log logging.Logger,
) *Producer {
	return &Producer{
		self:                self,
		registry:            reg,
		store:               store,
		coord:               coord,
		callback:            cb,
		metrics:             m,
		log:                 log.Named("block"),
		maxMessagesPerBlock: DefaultMaxMessagesPerBlock,
		blockInterval:       DefaultBlockInterval,
		lastSeal:            time.Now(),
	}
}

// SetMaxMessagesPerBlock overrides DefaultMaxMessagesPerBlock.
func (p *Producer) SetMaxMessagesPerBlock(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxMessagesPerBlock = n
}

// SetBlockInterval overrides DefaultBlockInterval.
func (p *Producer) SetBlockInterval(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockInterval = d
}

// Pending reports the current queue depth, for tests and metrics.
func (p *Producer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Submit verifies and enqueues a SignedMessage, sealing a block immediately
// if doing so satisfies one of the size/interval/callback triggers. Verification
// failure and a full queue are both reported as typed errors (spec §3,
// §4.6); neither ever panics.
func (p *Producer) Submit(ctx context.Context, sm types.SignedMessage) (*types.ConsensusContext, error) {
	if err := crypto.Verify(sm.SignerPublicKey, sm.Message.Bytes, sm.Signature); err != nil {
		p.metrics.VerificationFailures.Inc()
		return nil, errs.ErrVerificationFailed
	}

	p.mu.Lock()
	if p.duplicateLocked(sm.Message.RequestId) {
		p.mu.Unlock()
		p.metrics.DuplicateSubmissions.Inc()
		return nil, nil
	}
	if len(p.pending) >= PendingQueueCapacity {
		p.mu.Unlock()
		p.metrics.QueueRejected.Inc()
		return nil, errs.ErrQueueFull
	}
	p.pending = append(p.pending, sm)

	seal, reason, err := p.shouldSealLocked()
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	if !seal {
		p.mu.Unlock()
		return nil, nil
	}
	candidate := p.takeLocked()
	defer p.mu.Unlock()

	return p.seal(ctx, candidate, reason)
}

// Tick lets the engine drive the time-based seal trigger even when no new
// Submit arrives, by re-checking the interval/empty-queue condition.
func (p *Producer) Tick(ctx context.Context) (*types.ConsensusContext, error) {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return nil, nil
	}
	if time.Since(p.lastSeal) < p.blockInterval {
		p.mu.Unlock()
		return nil, nil
	}
	candidate := p.takeLocked()
	defer p.mu.Unlock()

	return p.seal(ctx, candidate, "interval")
}

// shouldSealLocked decides whether the current pending batch should be
// sealed, per the three triggers of spec §4.6. Must be called with mu held.
func (p *Producer) shouldSealLocked() (bool, string, error) {
	if len(p.pending) >= p.maxMessagesPerBlock {
		return true, "size", nil
	}
	if time.Since(p.lastSeal) >= p.blockInterval && len(p.pending) > 0 {
		return true, "interval", nil
	}
	forced, err := p.callback.OnProposedMessages(p.pending)
	if err != nil {
		return false, "", err
	}
	if forced {
		return true, "callback", nil
	}
	return false, "", nil
}

// duplicateLocked reports whether requestID already has an entry in the
// pending queue (spec §8 invariant 7): a resubmission is accepted by the API
// but deduplicated here rather than sealed into two separate blocks. Must be
// called with mu held.
func (p *Producer) duplicateLocked(requestID string) bool {
	for _, sm := range p.pending {
		if sm.Message.RequestId == requestID {
			return true
		}
	}
	return false
}

// takeLocked drains up to maxMessagesPerBlock pending messages into a
// candidate batch, leaving any overflow queued for the next block. Must be
// called with mu held.
func (p *Producer) takeLocked() []types.SignedMessage {
	n := len(p.pending)
	if n > p.maxMessagesPerBlock {
		n = p.maxMessagesPerBlock
	}
	candidate := make([]types.SignedMessage, n)
	copy(candidate, p.pending[:n])
	p.pending = append([]types.SignedMessage(nil), p.pending[n:]...)
	p.lastSeal = time.Now()
	return candidate
}

// seal assembles a Block from candidate, chained to the store's last
// finalised block (or the genesis hash if the store is empty), and hands it
// to the coordinator to start reliable broadcast.
func (p *Producer) seal(ctx context.Context, candidate []types.SignedMessage, reason string) (*types.ConsensusContext, error) {
	parentHash := types.GenesisHash
	height := uint64(0)
	if last, ok, err := p.store.GetLastBlock(); err == nil && ok {
		parentHash = last.Header.Hash
		height = last.Header.Height + 1
	}

	header := types.Header{
		Height:     height,
		ParentHash: parentHash,
		Proposer:   p.self,
		SnapshotId: p.registry.Current().Id,
	}
	candidateBlock := types.Seal(header, candidate)

	p.metrics.BlocksSealed.Inc()
	p.log.Debugw("sealed candidate block", "height", height, "messages", len(candidate), "reason", reason)

	return p.coord.Propose(ctx, candidateBlock)
}
