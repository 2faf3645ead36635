package keychain

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

// Software is an in-memory keychain seeded from BIP39 entropy. It is what
// the CLI and the tests sign with; a hardware build plugs a secure element
// in behind the same interface.
type Software struct {
	mu    sync.Mutex
	root  XPrv
	wiped bool
}

var _ Keychain = (*Software)(nil)

// NewSoftware creates a keychain from raw entropy and an optional
// passphrase.
func NewSoftware(entropy, passphrase []byte) (*Software, error) {
	root, err := RootXPrv(entropy, passphrase)
	if err != nil {
		return nil, err
	}
	return &Software{root: root}, nil
}

// NewSoftwareFromHex is NewSoftware for hex encoded entropy, as found in
// configuration files.
func NewSoftwareFromHex(entropyHex, passphrase string) (*Software, error) {
	entropy, err := hex.DecodeString(entropyHex)
	if err != nil {
		return nil, fmt.Errorf("keychain: entropy: %w", err)
	}
	defer wipe(entropy)
	return NewSoftware(entropy, []byte(passphrase))
}

// Derive returns a handle for path. Paths outside the Cardano purposes are
// refused.
func (s *Software) Derive(path paths.Path) (Handle, error) {
	if !path.IsCardano() {
		return nil, fmt.Errorf("%w: %s", ErrForbiddenPath, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wiped {
		return nil, ErrWiped
	}
	return &softwareKey{xprv: s.root.Derive(path)}, nil
}

// AccountXPub returns the extended public key of an account-level path, from
// which addresses can be derived without the private key.
func (s *Software) AccountXPub(path paths.Path) (XPub, error) {
	h, err := s.Derive(path)
	if err != nil {
		return XPub{}, err
	}
	defer h.Wipe()
	return h.(*softwareKey).xprv.XPub(), nil
}

// Wipe zeroes the master key. Further derivations fail.
func (s *Software) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root.Wipe()
	s.wiped = true
}

type softwareKey struct {
	xprv  XPrv
	wiped bool
}

func (k *softwareKey) PublicKey() []byte {
	return k.xprv.XPub().PublicKey()
}

func (k *softwareKey) ChainCode() []byte {
	return k.xprv.XPub().ChainCode()
}

func (k *softwareKey) Sign(hash []byte) ([]byte, error) {
	if k.wiped {
		return nil, ErrWiped
	}
	return k.xprv.Sign(hash), nil
}

func (k *softwareKey) Wipe() {
	k.xprv.Wipe()
	k.wiped = true
}
