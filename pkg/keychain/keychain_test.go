package keychain

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

var testEntropy = bytes.Repeat([]byte{0x5a}, 32)

func newTestKeychain(t *testing.T) *Software {
	t.Helper()
	kc, err := NewSoftware(testEntropy, nil)
	require.NoError(t, err)
	return kc
}

func TestRootScalarIsClamped(t *testing.T) {
	root, err := RootXPrv(testEntropy, []byte("passphrase"))
	require.NoError(t, err)
	assert.Zero(t, root.data[0]&0x07)
	assert.Equal(t, byte(0x40), root.data[31]&0xe0)

	other, err := RootXPrv(testEntropy, nil)
	require.NoError(t, err)
	assert.NotEqual(t, root.data, other.data, "passphrase must change the master key")
}

func TestRootRejectsBadEntropy(t *testing.T) {
	_, err := RootXPrv(make([]byte, 15), nil)
	assert.ErrorIs(t, err, ErrEntropySize)
}

func TestSignVerifiesWithStandardEd25519(t *testing.T) {
	kc := newTestKeychain(t)
	h, err := kc.Derive(paths.MustParse("m/1852'/1815'/0'/0/0"))
	require.NoError(t, err)
	defer h.Wipe()

	msg := bytes.Repeat([]byte{0x11}, 32)
	sig, err := h.Sign(msg)
	require.NoError(t, err)
	require.Len(t, sig, ed25519.SignatureSize)
	assert.True(t, ed25519.Verify(h.PublicKey(), msg, sig))

	again, err := h.Sign(msg)
	require.NoError(t, err)
	assert.Equal(t, sig, again, "signatures are deterministic")

	msg[0] ^= 1
	assert.False(t, ed25519.Verify(h.PublicKey(), msg, sig))
}

func TestPublicDerivationMatchesPrivate(t *testing.T) {
	kc := newTestKeychain(t)
	account, err := kc.AccountXPub(paths.MustParse("m/1852'/1815'/0'"))
	require.NoError(t, err)

	chain, err := account.Child(0)
	require.NoError(t, err)
	leaf, err := chain.Child(5)
	require.NoError(t, err)

	h, err := kc.Derive(paths.MustParse("m/1852'/1815'/0'/0/5"))
	require.NoError(t, err)
	assert.Equal(t, []byte(h.PublicKey()), []byte(leaf.PublicKey()))
	assert.Equal(t, h.ChainCode(), leaf.ChainCode())

	_, err = account.Child(paths.H(0))
	assert.ErrorIs(t, err, ErrHardenedPublic)
}

func TestDistinctPathsGiveDistinctKeys(t *testing.T) {
	kc := newTestKeychain(t)
	a, err := kc.Derive(paths.MustParse("m/1852'/1815'/0'/0/0"))
	require.NoError(t, err)
	b, err := kc.Derive(paths.MustParse("m/1852'/1815'/1'/0/0"))
	require.NoError(t, err)
	c, err := kc.Derive(paths.MustParse("m/44'/1815'/0'/0/0"))
	require.NoError(t, err)
	assert.NotEqual(t, a.PublicKey(), b.PublicKey())
	assert.NotEqual(t, a.PublicKey(), c.PublicKey())
}

func TestXPubRoundTrip(t *testing.T) {
	kc := newTestKeychain(t)
	xpub, err := kc.AccountXPub(paths.MustParse("m/1852'/1815'/0'"))
	require.NoError(t, err)

	parsed, err := XPubFromBytes(xpub.Bytes())
	require.NoError(t, err)
	assert.Equal(t, xpub, parsed)

	_, err = XPubFromBytes(make([]byte, 10))
	assert.Error(t, err)
}

func TestForbiddenPathAndWipe(t *testing.T) {
	kc := newTestKeychain(t)
	_, err := kc.Derive(paths.MustParse("m/44'/0'/0'/0/0"))
	assert.ErrorIs(t, err, ErrForbiddenPath)

	h, err := kc.Derive(paths.MustParse("m/1855'/1815'/0'"))
	require.NoError(t, err)
	h.Wipe()
	_, err = h.Sign(make([]byte, 32))
	assert.ErrorIs(t, err, ErrWiped)

	kc.Wipe()
	_, err = kc.Derive(paths.MustParse("m/1852'/1815'/0'/2/0"))
	assert.ErrorIs(t, err, ErrWiped)
}

func TestMul8AndAdd256(t *testing.T) {
	x := []byte{0xff, 0x01}
	got := mul8(x)
	assert.Equal(t, byte(0xf8), got[0])
	assert.Equal(t, byte(0x0f), got[1])

	var dst [32]byte
	a := make([]byte, 32)
	b := make([]byte, 32)
	a[0], b[0] = 0xff, 0x02
	add256(dst[:], a, b)
	assert.Equal(t, byte(0x01), dst[0])
	assert.Equal(t, byte(0x01), dst[1])
}
