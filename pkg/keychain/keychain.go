// Package keychain implements the derive-and-sign oracle the signer consumes.
//
// The signer only ever sees the Keychain and Handle interfaces. The software
// implementation in this package follows BIP32-Ed25519 as used by Cardano
// wallets (Icarus master key generation, V2 child derivation):
//
//   - extended private keys are 96 bytes: kL (scalar), kR (nonce prefix) and
//     a 32 byte chain code
//   - hardened children are derived from the private key, soft children
//     from the public key, so an account xpub can derive every address below
//     it
//   - signatures are ordinary Ed25519 signatures over the expanded key and
//     verify with crypto/ed25519
package keychain

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/pbkdf2"

	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

const (
	XPrvSize      = 96
	XPubSize      = 64
	ChainCodeSize = 32

	icarusIterations = 4096
)

var (
	ErrForbiddenPath  = errors.New("keychain: path outside the Cardano namespaces")
	ErrHardenedPublic = errors.New("keychain: hardened child from public key")
	ErrEntropySize    = errors.New("keychain: entropy must be 16, 20, 24, 28 or 32 bytes")
	ErrWiped          = errors.New("keychain: key material was wiped")
)

// Keychain derives signing handles for derivation paths.
type Keychain interface {
	Derive(path paths.Path) (Handle, error)
}

// Handle is a derived key. Callers Wipe it once the signing call is done.
type Handle interface {
	PublicKey() []byte
	ChainCode() []byte
	Sign(hash []byte) ([]byte, error)
	Wipe()
}

// XPrv is an extended private key: kL || kR || chain code.
type XPrv struct{ data [XPrvSize]byte }

// XPub is an extended public key: A || chain code.
type XPub struct{ data [XPubSize]byte }

// RootXPrv builds the Icarus master key from BIP39 entropy.
func RootXPrv(entropy, passphrase []byte) (xprv XPrv, err error) {
	switch len(entropy) {
	case 16, 20, 24, 28, 32:
	default:
		return xprv, ErrEntropySize
	}
	seed := pbkdf2.Key(passphrase, entropy, icarusIterations, XPrvSize, sha512.New)
	copy(xprv.data[:], seed)
	wipe(seed)
	modifyRootScalar(xprv.data[:32])
	return xprv, nil
}

// This is not plain Ed25519 clamping: the third highest bit is also cleared
// so that derived scalars cannot overflow.
func modifyRootScalar(s []byte) {
	s[0] &= 248
	s[31] &= 31
	s[31] |= 64
}

func (xprv XPrv) scalar() *edwards25519.Scalar {
	var wide [64]byte
	copy(wide[:], xprv.data[:32])
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic(fmt.Sprintf("keychain: scalar: %v", err))
	}
	return s
}

func (xprv XPrv) publicKey() []byte {
	return new(edwards25519.Point).ScalarBaseMult(xprv.scalar()).Bytes()
}

// XPub returns the extended public key.
func (xprv XPrv) XPub() (xpub XPub) {
	copy(xpub.data[:32], xprv.publicKey())
	copy(xpub.data[32:], xprv.data[64:])
	return xpub
}

// Child derives the child at index, hardened or soft depending on the index.
func (xprv XPrv) Child(index uint32) (res XPrv) {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)

	zMac := hmac.New(sha512.New, xprv.data[64:])
	ccMac := hmac.New(sha512.New, xprv.data[64:])
	if index&paths.Hardened != 0 {
		zMac.Write([]byte{0x00})
		zMac.Write(xprv.data[:64])
		ccMac.Write([]byte{0x01})
		ccMac.Write(xprv.data[:64])
	} else {
		pub := xprv.publicKey()
		zMac.Write([]byte{0x02})
		zMac.Write(pub)
		ccMac.Write([]byte{0x03})
		ccMac.Write(pub)
	}
	zMac.Write(idx[:])
	ccMac.Write(idx[:])

	z := zMac.Sum(nil)
	cc := ccMac.Sum(nil)

	// kL' = kL + 8*ZL[:28], kR' = kR + ZR, both truncated to 256 bits
	zl8 := mul8(z[:28])
	add256(res.data[:32], xprv.data[:32], zl8[:])
	add256(res.data[32:64], xprv.data[32:64], z[32:64])
	copy(res.data[64:], cc[32:])

	wipe(z)
	wipe(zl8[:])
	return res
}

// Derive walks path from xprv.
func (xprv XPrv) Derive(path paths.Path) XPrv {
	res := xprv
	for _, idx := range path {
		res = res.Child(idx)
	}
	return res
}

// Sign produces an Ed25519 signature of msg with the extended key.
func (xprv XPrv) Sign(msg []byte) []byte {
	var nonceDigest, hramDigest [64]byte

	h := sha512.New()
	h.Write(xprv.data[32:64])
	h.Write(msg)
	h.Sum(nonceDigest[:0])

	r, err := edwards25519.NewScalar().SetUniformBytes(nonceDigest[:])
	if err != nil {
		panic(fmt.Sprintf("keychain: nonce: %v", err))
	}
	encodedR := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	a := xprv.scalar()
	h.Reset()
	h.Write(encodedR)
	h.Write(new(edwards25519.Point).ScalarBaseMult(a).Bytes())
	h.Write(msg)
	h.Sum(hramDigest[:0])

	k, err := edwards25519.NewScalar().SetUniformBytes(hramDigest[:])
	if err != nil {
		panic(fmt.Sprintf("keychain: challenge: %v", err))
	}
	s := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	signature := make([]byte, ed25519.SignatureSize)
	copy(signature, encodedR)
	copy(signature[32:], s.Bytes())
	wipe(nonceDigest[:])
	return signature
}

// Wipe zeroes the key material.
func (xprv *XPrv) Wipe() { wipe(xprv.data[:]) }

// PublicKey extracts the Ed25519 public key.
func (xpub XPub) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(append([]byte(nil), xpub.data[:32]...))
}

// ChainCode returns the chain code.
func (xpub XPub) ChainCode() []byte {
	return append([]byte(nil), xpub.data[32:]...)
}

// Bytes returns A || chain code.
func (xpub XPub) Bytes() []byte { return append([]byte(nil), xpub.data[:]...) }

// XPubFromBytes parses a 64 byte extended public key.
func XPubFromBytes(b []byte) (xpub XPub, err error) {
	if len(b) != XPubSize {
		return xpub, fmt.Errorf("keychain: xpub must be %d bytes, got %d", XPubSize, len(b))
	}
	if _, err := new(edwards25519.Point).SetBytes(b[:32]); err != nil {
		return xpub, fmt.Errorf("keychain: invalid public key: %w", err)
	}
	copy(xpub.data[:], b)
	return xpub, nil
}

// Child derives a soft child. Hardened indices need the private key.
func (xpub XPub) Child(index uint32) (res XPub, err error) {
	if index&paths.Hardened != 0 {
		return res, ErrHardenedPublic
	}
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)

	zMac := hmac.New(sha512.New, xpub.data[32:])
	zMac.Write([]byte{0x02})
	zMac.Write(xpub.data[:32])
	zMac.Write(idx[:])
	z := zMac.Sum(nil)

	ccMac := hmac.New(sha512.New, xpub.data[32:])
	ccMac.Write([]byte{0x03})
	ccMac.Write(xpub.data[:32])
	ccMac.Write(idx[:])
	cc := ccMac.Sum(nil)

	var wide [64]byte
	zl8 := mul8(z[:28])
	copy(wide[:], zl8[:])
	f, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return res, err
	}
	parent, err := new(edwards25519.Point).SetBytes(xpub.data[:32])
	if err != nil {
		return res, fmt.Errorf("keychain: invalid public key: %w", err)
	}
	child := new(edwards25519.Point).Add(parent, new(edwards25519.Point).ScalarBaseMult(f))

	copy(res.data[:32], child.Bytes())
	copy(res.data[32:], cc[32:])
	return res, nil
}

// mul8 returns 8*x for a little-endian x of at most 28 bytes.
func mul8(x []byte) (out [32]byte) {
	var carry byte
	for i := 0; i < len(x); i++ {
		out[i] = x[i]<<3 | carry
		carry = x[i] >> 5
	}
	out[len(x)] = carry
	return out
}

// add256 sets dst = a + b mod 2^256, all little-endian.
func add256(dst, a, b []byte) {
	var carry uint16
	for i := 0; i < 32; i++ {
		sum := uint16(a[i]) + uint16(b[i]) + carry
		dst[i] = byte(sum)
		carry = sum >> 8
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
