package transport

import (
	"encoding/json"
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/broadcast"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

func TestTopicName_StableForSameSnapshot(t *testing.T) {
	require.Equal(t, topicName(1), topicName(1))
	require.NotEqual(t, topicName(1), topicName(2))
}

func TestWireEnvelope_RoundTripsThroughPeerDecode(t *testing.T) {
	kp, err := crypto.Generate()
	require.NoError(t, err)

	var hash types.BlockHash
	copy(hash[:], []byte("a-block-hash-padded-to-32-bytes"))

	env := wireEnvelope{
		Tag:        broadcast.TagEcho,
		BlockHash:  hash,
		SnapshotId: 7,
		Signer:     kp.PeerId().String(),
		Signature:  "deadbeef",
	}

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded wireEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, env, decoded)

	recovered, err := peer.Decode(decoded.Signer)
	require.NoError(t, err)
	require.Equal(t, kp.PeerId(), recovered)
}
