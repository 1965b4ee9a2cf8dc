// Package transport implements the gossip peer-to-peer transport
// named as an external collaborator in spec §1: a libp2p host joins one
// pubsub topic per snapshot id and fans protocol messages out to every
// member of that snapshot, the same shape kwil-db's node.go wires up with
// pubsub.NewGossipSub plus one topic per gossiped concern
// (startAckGossip/startConsensusResetGossip).
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/broadcast"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

// topicName derives the pubsub topic for a snapshot id. Every member of the
// snapshot subscribes to the same topic, so a single Publish reaches the
// whole broadcast group — Send therefore ignores the destinations slice the
// Coordinator hands it and does not address individual peers.
func topicName(snapshotId uint64) string {
	return fmt.Sprintf("ephemera/broadcast/%d", snapshotId)
}

// wireEnvelope is the JSON-serialisable form of a broadcast.ProtocolMessage.
// It exists because broadcast.ProtocolMessage.BlockHash is a fixed-size
// array the json package round-trips fine, but keeping the mapping
// explicit documents the wire shape spec §6 calls out as "length-delimited"
// (pubsub already length-delimits each published message for us).
type wireEnvelope struct {
	Tag        broadcast.Tag   `json:"tag"`
	BlockHash  types.BlockHash `json:"block_hash"`
	SnapshotId uint64          `json:"snapshot_id"`
	Signer     string          `json:"signer"`
	Signature  string          `json:"signature"`
	BlockBytes []byte          `json:"block_bytes,omitempty"`
}

// Handler is the callback a Transport delivers inbound messages to —
// satisfied by (*broadcast.Coordinator).Handle.
type Handler func(ctx context.Context, origin types.PeerId, msg broadcast.ProtocolMessage) error

// PubSubTransport implements broadcast.Transport over go-libp2p-pubsub.
type PubSubTransport struct {
	host host.Host
	ps   *pubsub.PubSub
	self types.PeerId
	log  logging.Logger

	handler Handler

	mu     sync.Mutex
	topics map[uint64]*pubsub.Topic
	subs   map[uint64]*pubsub.Subscription
	cancel map[uint64]context.CancelFunc
}

// New wraps an already-constructed libp2p host and pubsub router. Building
// the host itself (transports, security, listen addresses) is explicitly
// out of scope per spec §1 — callers assemble it the way go-libp2p's own
// functional-options constructor expects and hand it in here.
func New(h host.Host, ps *pubsub.PubSub, self types.PeerId, log logging.Logger) *PubSubTransport {
	return &PubSubTransport{
		host:   h,
		ps:     ps,
		self:   self,
		log:    log.Named("transport"),
		topics: make(map[uint64]*pubsub.Topic),
		subs:   make(map[uint64]*pubsub.Subscription),
		cancel: make(map[uint64]context.CancelFunc),
	}
}

// SetHandler installs the function inbound messages are dispatched to. Must
// be called before JoinSnapshot.
func (t *PubSubTransport) SetHandler(h Handler) {
	t.handler = h
}

// JoinSnapshot subscribes to the topic for snapshotId and starts a reader
// goroutine that decodes and dispatches every message not originated by
// self. Safe to call more than once for the same id; later calls are no-ops.
func (t *PubSubTransport) JoinSnapshot(ctx context.Context, snapshotId uint64) error {
	t.mu.Lock()
	if _, ok := t.topics[snapshotId]; ok {
		t.mu.Unlock()
		return nil
	}
	topic, err := t.ps.Join(topicName(snapshotId))
	if err != nil {
		t.mu.Unlock()
		return err
	}
	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		t.mu.Unlock()
		return err
	}
	subCtx, cancel := context.WithCancel(ctx)
	t.topics[snapshotId] = topic
	t.subs[snapshotId] = sub
	t.cancel[snapshotId] = cancel
	t.mu.Unlock()

	go t.readLoop(subCtx, sub)
	return nil
}

// LeaveSnapshot tears down the topic subscription for a snapshot whose
// history has aged out of the registry's bounded cache.
func (t *PubSubTransport) LeaveSnapshot(snapshotId uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.cancel[snapshotId]; ok {
		cancel()
		delete(t.cancel, snapshotId)
	}
	if sub, ok := t.subs[snapshotId]; ok {
		sub.Cancel()
		delete(t.subs, snapshotId)
	}
	if topic, ok := t.topics[snapshotId]; ok {
		topic.Close()
		delete(t.topics, snapshotId)
	}
}

func (t *PubSubTransport) readLoop(ctx context.Context, sub *pubsub.Subscription) {
	for {
		msg, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warnw("pubsub subscription read failed", "err", err)
			return
		}
		if msg.ReceivedFrom == t.host.ID() {
			continue
		}

		var env wireEnvelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			t.log.Warnw("discarding malformed protocol message", "err", err)
			continue
		}

		origin, err := peer.Decode(env.Signer)
		if err != nil {
			t.log.Warnw("discarding protocol message with bad signer id", "err", err)
			continue
		}

		pm := broadcast.ProtocolMessage{
			Tag:        env.Tag,
			BlockHash:  env.BlockHash,
			SnapshotId: env.SnapshotId,
			Signer:     origin,
			Signature:  env.Signature,
			BlockBytes: env.BlockBytes,
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(ctx, origin, pm); err != nil {
			t.log.Debugw("handler rejected inbound protocol message", "err", err)
		}
	}
}

// Send publishes msg to the topic for msg.SnapshotId. destinations is
// accepted to satisfy broadcast.Transport but otherwise unused: pubsub
// fan-out already reaches every subscriber of the snapshot's topic, which by
// construction is every member of that snapshot (spec §4.2).
func (t *PubSubTransport) Send(ctx context.Context, msg broadcast.ProtocolMessage, destinations []types.PeerId) error {
	t.mu.Lock()
	topic, ok := t.topics[msg.SnapshotId]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: not joined to snapshot %d", msg.SnapshotId)
	}

	env := wireEnvelope{
		Tag:        msg.Tag,
		BlockHash:  msg.BlockHash,
		SnapshotId: msg.SnapshotId,
		Signer:     msg.Signer.String(),
		Signature:  msg.Signature,
		BlockBytes: msg.BlockBytes,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return topic.Publish(ctx, data)
}
