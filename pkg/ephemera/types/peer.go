package types

import (
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// PeerId is a stable handle for a peer, derived deterministically from its
// public key. It is a thin alias over the libp2p peer identifier so the same
// value flows unmodified from signing through transport through discovery.
type PeerId = peer.ID

// PeerIDFromEd25519 derives a PeerId from a raw ed25519 public key. It is
// the single place a public key is turned into a PeerId, keeping the
// derivation a pure function of the key as required by spec §4.1.
func PeerIDFromEd25519(publicKey []byte) (PeerId, error) {
	pub, err := libp2pcrypto.UnmarshalEd25519PublicKey(publicKey)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pub)
}
