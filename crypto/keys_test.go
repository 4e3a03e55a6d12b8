package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	encoded := addr.String()
	require.Contains(t, encoded, string(IdentityPrefix)+"1")

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.Equal(t, addr.Raw(), decoded.Raw())
	require.Equal(t, IdentityPrefix, decoded.Prefix())
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	_, err := DecodeAddress("not-an-address")
	require.Error(t, err)
}

func TestSignRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	digest := Keccak256([]byte("auction_bid"), []byte("payload"))

	sig, err := key.Sign(digest)
	require.NoError(t, err)

	recovered, err := RecoverAddress(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.PubKey().Address().Raw(), recovered.Raw())

	_, err = RecoverAddress(digest, sig[:64])
	require.Error(t, err)
}

func TestDeriveProgramAddressDeterministic(t *testing.T) {
	first := DeriveProgramAddress([]byte("auction-house"), "escrow")
	second := DeriveProgramAddress([]byte("auction-house"), "escrow")
	require.Equal(t, first, second)

	other := DeriveProgramAddress([]byte("auction-house"), "vault")
	require.NotEqual(t, first, other)
	require.False(t, bytes.Equal(first[:], make([]byte, AddressLength)))
}
