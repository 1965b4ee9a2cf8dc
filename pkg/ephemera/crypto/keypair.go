// Package crypto provides the cryptographic identity capability (component A):
// signing, verification, key generation and PeerId derivation. The engine
// never panics on a bad key or a failed verification — both surface as
// typed errors.
package crypto

import (
	stded25519 "crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/types"
)

var (
	// ErrInvalidKeyLength is returned when a key is the wrong byte length
	// for ed25519.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length")

	// ErrVerificationFailed is returned when a signature does not verify.
	ErrVerificationFailed = errors.New("crypto: signature verification failed")

	// ErrInvalidSignatureEncoding is returned when a signature is not valid hex.
	ErrInvalidSignatureEncoding = errors.New("crypto: invalid signature encoding")
)

// KeyPair is the identity capability threaded through the engine: its public
// key, its PeerId, and signing. Verification is done by the package-level
// Verify and VerifyPeer. Signatures are hex-encoded for transport-neutrality.
type KeyPair interface {
	PublicKey() []byte
	PeerId() types.PeerId
	Sign(message []byte) (string, error)
}

// Ed25519KeyPair implements KeyPair using stdlib crypto/ed25519, the same
// choice the retrieval pack's security-adjacent code (sage-x handshake
// server) makes directly against stdlib rather than a third-party wrapper.
type Ed25519KeyPair struct {
	private stded25519.PrivateKey
	public  stded25519.PublicKey
	peerId  types.PeerId
}

// Generate creates a fresh random keypair.
func Generate() (*Ed25519KeyPair, error) {
	pub, priv, err := stded25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return newKeyPair(pub, priv)
}

// FromPrivateKey reconstructs a keypair from a 64-byte ed25519 private key
// (seed || public key), as loaded from config (spec §6 "Environment").
func FromPrivateKey(private []byte) (*Ed25519KeyPair, error) {
	if len(private) != stded25519.PrivateKeySize {
		return nil, ErrInvalidKeyLength
	}
	priv := stded25519.PrivateKey(private)
	pub, ok := priv.Public().(stded25519.PublicKey)
	if !ok {
		return nil, ErrInvalidKeyLength
	}
	return newKeyPair(pub, priv)
}

func newKeyPair(pub stded25519.PublicKey, priv stded25519.PrivateKey) (*Ed25519KeyPair, error) {
	id, err := types.PeerIDFromEd25519(pub)
	if err != nil {
		return nil, err
	}
	return &Ed25519KeyPair{private: priv, public: pub, peerId: id}, nil
}

func (k *Ed25519KeyPair) PublicKey() []byte {
	return k.public
}

// PrivateKeyBytes returns the raw 64-byte ed25519 private key (seed||public
// key), the same layout cmd/ephemera persists across restarts and hands to
// libp2p's Ed25519 identity unmarshaller.
func (k *Ed25519KeyPair) PrivateKeyBytes() []byte {
	out := make([]byte, len(k.private))
	copy(out, k.private)
	return out
}

func (k *Ed25519KeyPair) PeerId() types.PeerId {
	return k.peerId
}

// Sign returns the hex-encoded ed25519 signature over message.
func (k *Ed25519KeyPair) Sign(message []byte) (string, error) {
	if len(k.private) != stded25519.PrivateKeySize {
		return "", ErrInvalidKeyLength
	}
	sig := stded25519.Sign(k.private, message)
	return hex.EncodeToString(sig), nil
}

// VerifyPeer checks a hex-encoded ed25519 signature over message against
// the public key embedded in peer's PeerId. Ed25519 keys are small enough
// that libp2p embeds them directly in the identifier (an "identity"
// multihash), so the public key never needs a side directory — it is
// recovered straight from the PeerId that accompanies every protocol
// message, the same property node/src/utilities/crypto/peer.rs leans on by
// wrapping libp2p::PeerId directly.
func VerifyPeer(peer types.PeerId, message []byte, hexSignature string) error {
	pub, err := peer.ExtractPublicKey()
	if err != nil {
		return ErrInvalidKeyLength
	}
	raw, err := pub.Raw()
	if err != nil {
		return ErrInvalidKeyLength
	}
	return Verify(raw, message, hexSignature)
}

// Verify checks a hex-encoded ed25519 signature over message against the
// given raw public key. It never panics: malformed keys/signatures and a
// rejected signature both surface as errors.
func Verify(publicKey []byte, message []byte, hexSignature string) error {
	if len(publicKey) != stded25519.PublicKeySize {
		return ErrInvalidKeyLength
	}
	sig, err := hex.DecodeString(hexSignature)
	if err != nil {
		return ErrInvalidSignatureEncoding
	}
	if len(sig) != stded25519.SignatureSize {
		return ErrInvalidSignatureEncoding
	}
	if !stded25519.Verify(stded25519.PublicKey(publicKey), message, sig) {
		return ErrVerificationFailed
	}
	return nil
}
