package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
)

func TestGenerate_PeerIdIsDeterministicForSamePublicKey(t *testing.T) {
	kp, err := crypto.Generate()
	require.NoError(t, err)

	require.Equal(t, kp.PeerId(), kp.PeerId())
}

func TestSignAndVerify_RoundTrips(t *testing.T) {
	kp, err := crypto.Generate()
	require.NoError(t, err)

	message := []byte("a message to endorse")
	sig, err := kp.Sign(message)
	require.NoError(t, err)

	require.NoError(t, crypto.Verify(kp.PublicKey(), message, sig))
}

func TestVerify_RejectsTamperedMessage(t *testing.T) {
	kp, err := crypto.Generate()
	require.NoError(t, err)

	sig, err := kp.Sign([]byte("original"))
	require.NoError(t, err)

	err = crypto.Verify(kp.PublicKey(), []byte("tampered"), sig)
	require.ErrorIs(t, err, crypto.ErrVerificationFailed)
}

func TestVerify_RejectsBadEncoding(t *testing.T) {
	kp, err := crypto.Generate()
	require.NoError(t, err)

	err = crypto.Verify(kp.PublicKey(), []byte("msg"), "not-hex!!")
	require.ErrorIs(t, err, crypto.ErrInvalidSignatureEncoding)
}

func TestVerify_RejectsWrongKeyLength(t *testing.T) {
	err := crypto.Verify([]byte("too-short"), []byte("msg"), "deadbeef")
	require.ErrorIs(t, err, crypto.ErrInvalidKeyLength)
}

func TestVerifyPeer_RecoversPublicKeyFromPeerId(t *testing.T) {
	kp, err := crypto.Generate()
	require.NoError(t, err)

	message := []byte("echo over a block hash")
	sig, err := kp.Sign(message)
	require.NoError(t, err)

	require.NoError(t, crypto.VerifyPeer(kp.PeerId(), message, sig))
}

func TestVerifyPeer_RejectsSignatureFromDifferentKey(t *testing.T) {
	kp1, err := crypto.Generate()
	require.NoError(t, err)
	kp2, err := crypto.Generate()
	require.NoError(t, err)

	message := []byte("echo")
	sig, err := kp2.Sign(message)
	require.NoError(t, err)

	err = crypto.VerifyPeer(kp1.PeerId(), message, sig)
	require.ErrorIs(t, err, crypto.ErrVerificationFailed)
}

func TestFromPrivateKey_RejectsWrongLength(t *testing.T) {
	_, err := crypto.FromPrivateKey([]byte("short"))
	require.ErrorIs(t, err, crypto.ErrInvalidKeyLength)
}
