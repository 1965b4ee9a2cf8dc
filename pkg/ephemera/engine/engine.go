// Package engine implements component I: the single-task runtime that owns
// every other component and multiplexes the three inbound event streams
// spec §4.9 names. It is grounded in the teacher's Peer.poll — one
// goroutine, one select loop, no internal locking of the live table — but
// generalised from two channels (transport + self-update) to the three
// spec §4.9 and §5 name (protocol, app, peer updates), plus a ticker driving
// the per-second stall eviction (§4.5) and the block producer's interval
// trigger (§4.6).
package engine

import (
	"context"
	"time"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/block"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/broadcast"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/discovery"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/errs"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/registry"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// ProtocolChannelCapacity bounds inbound_protocol (spec §5).
const ProtocolChannelCapacity = 500

// AppChannelCapacity bounds inbound_app. Not named explicitly by spec §5
// (only protocol and peer_updates get numbers); sized the same as the
// protocol channel since submissions arrive at a comparable or higher rate
// in the expected deployment, and are equally subject to the "typed
// overloaded error rather than blocking the caller" backpressure policy.
const AppChannelCapacity = 500

// PeerUpdatesChannelCapacity bounds peer_updates (spec §5).
const PeerUpdatesChannelCapacity = 1000

// EvictionTickInterval is how often the engine checks for stalled contexts
// (spec §4.5 "a background tick (every second)").
const EvictionTickInterval = 1 * time.Second

type protocolEnvelope struct {
	origin types.PeerId
	msg    broadcast.ProtocolMessage
}

// Engine owns the coordinator, producer, registry and discovery reconciler,
// and is the only caller of Coordinator.Handle/Producer.Submit/
// Registry.Install, satisfying spec §5's "no locking needed" shared-resource
// policy for the live table.
type Engine struct {
	coordinator *broadcast.Coordinator
	producer    *block.Producer
	registry    *registry.Registry
	discovery   *discovery.Reconciler
	log         logging.Logger

	inboundProtocol chan protocolEnvelope
	inboundApp      chan types.SignedMessage
	peerUpdates     chan []discovery.PeerInfo

	stallTimeout time.Duration
	shutdown     chan struct{}
	done         chan struct{}
}

// New builds an Engine around already-constructed components. Wiring the
// components themselves (keypair, transport, storage) is the caller's job,
// typically cmd/ephemera's main.
func New(
	coord *broadcast.Coordinator,
	producer *block.Producer,
	reg *registry.Registry,
	rec *discovery.Reconciler,
	log logging.Logger,
) *Engine {
	return &Engine{
		coordinator:     coord,
		producer:        producer,
		registry:        reg,
		discovery:       rec,
		log:             log.Named("engine"),
		inboundProtocol: make(chan protocolEnvelope, ProtocolChannelCapacity),
		inboundApp:      make(chan types.SignedMessage, AppChannelCapacity),
		peerUpdates:     make(chan []discovery.PeerInfo, PeerUpdatesChannelCapacity),
		stallTimeout:    broadcast.DefaultStallTimeout,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// SetStallTimeout overrides the bound on how long Shutdown keeps draining
// already-queued inbound items, and propagates it to the coordinator's own
// eviction timeout. Shutdown does not wait for live contexts to finish.
func (e *Engine) SetStallTimeout(d time.Duration) {
	e.stallTimeout = d
	e.coordinator.SetStallTimeout(d)
}

// SubmitProtocolMessage enqueues an inbound protocol message from the
// transport. Returns ErrOverloaded rather than blocking if the channel is
// full (spec §5 "Backpressure").
func (e *Engine) SubmitProtocolMessage(origin types.PeerId, msg broadcast.ProtocolMessage) error {
	select {
	case e.inboundProtocol <- protocolEnvelope{origin: origin, msg: msg}:
		return nil
	default:
		return errs.ErrOverloaded
	}
}

// SubmitMessage verifies and enqueues a SignedMessage from the submit API.
// Verification runs synchronously, before the message ever reaches
// inbound_app, so a forged signature is rejected at the call site (spec §6
// "400 on verification failure") rather than surfacing only later when
// block.Producer dequeues it asynchronously.
func (e *Engine) SubmitMessage(sm types.SignedMessage) error {
	if err := crypto.Verify(sm.SignerPublicKey, sm.Message.Bytes, sm.Signature); err != nil {
		return errs.ErrVerificationFailed
	}
	select {
	case e.inboundApp <- sm:
		return nil
	default:
		return errs.ErrOverloaded
	}
}

// SubmitPeerUpdate enqueues a discovery push.
func (e *Engine) SubmitPeerUpdate(infos []discovery.PeerInfo) error {
	select {
	case e.peerUpdates <- infos:
		return nil
	default:
		return errs.ErrOverloaded
	}
}

// Run is the single task that multiplexes the three inbound streams plus
// the eviction/block-interval ticker, until ctx is cancelled or Shutdown is
// called, in which case it returns once every queued item has been drained
// or the stall-timeout grace period has elapsed, whichever comes first. A
// persistence failure (ErrPersistence) makes it return at once.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(EvictionTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return
		case <-e.shutdown:
			e.drain()
			return
		case env := <-e.inboundProtocol:
			if err := e.coordinator.Handle(ctx, env.origin, env.msg); err != nil {
				if err == errs.ErrPersistence {
					e.log.Errorw("persistence failure, stopping engine", "err", err)
					return
				}
				e.log.Debugw("protocol message handling returned an error", "err", err)
			}
		case sm := <-e.inboundApp:
			if _, err := e.producer.Submit(ctx, sm); err != nil {
				e.log.Debugw("submit rejected", "err", err)
			}
		case infos := <-e.peerUpdates:
			if _, installed := e.discovery.PushPeers(infos); installed {
				e.log.Infow("membership snapshot updated from discovery push")
			}
		case now := <-ticker.C:
			e.coordinator.EvictStalled(now)
			if _, err := e.producer.Tick(ctx); err != nil {
				e.log.Debugw("interval-triggered seal failed", "err", err)
			}
		}
	}
}

// Shutdown requests cooperative termination: Run drains whatever is already
// queued, up to stallTimeout, then returns. Shutdown blocks until Run has
// actually exited.
func (e *Engine) Shutdown() {
	close(e.shutdown)
	<-e.done
}

// drain gives in-flight channel contents up to stallTimeout to be consumed
// before Run returns, per spec §4.9's shutdown description.
func (e *Engine) drain() {
	deadline := time.NewTimer(e.stallTimeout)
	defer deadline.Stop()
	for {
		select {
		case env := <-e.inboundProtocol:
			_ = e.coordinator.Handle(context.Background(), env.origin, env.msg)
		case sm := <-e.inboundApp:
			_, _ = e.producer.Submit(context.Background(), sm)
		case infos := <-e.peerUpdates:
			e.discovery.PushPeers(infos)
		case <-deadline.C:
			return
		default:
			return
		}
	}
}
