// Package paths models BIP32 derivation paths and the Cardano path schemas
// the signer accepts.
//
// Cardano keys live under four purposes, all with coin type 1815':
//
//	44'   Byron (legacy) wallets
//	1852' Shelley wallets
//	1854' multisig keys
//	1855' minting policy keys
package paths

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Hardened marks a hardened path component.
const Hardened uint32 = 0x80000000

// Purpose and coin type components, already hardened.
const (
	PurposeByron    = 44 | Hardened
	PurposeShelley  = 1852 | Hardened
	PurposeMultisig = 1854 | Hardened
	PurposeMinting  = 1855 | Hardened
	CoinType        = 1815 | Hardened
)

// Role components of a Shelley-style path.
const (
	ChainExternal = 0
	ChainInternal = 1
	ChainStaking  = 2
)

const (
	maxSafeAccount      = 100
	maxSafeAddressIndex = 1_000_000
)

var ErrInvalidPath = errors.New("invalid derivation path")

// Path is a sequence of BIP32 child indices.
type Path []uint32

// H returns i as a hardened index.
func H(i uint32) uint32 { return i | Hardened }

// Parse reads a path in the usual "m/1852'/1815'/0'/0/0" notation. Both ' and
// h mark hardened components; the leading "m" is optional.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "m")
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return Path{}, nil
	}

	parts := strings.Split(s, "/")
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		hardened := strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h")
		if hardened {
			part = part[:len(part)-1]
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || uint32(n) >= Hardened {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPath, s)
		}
		idx := uint32(n)
		if hardened {
			idx |= Hardened
		}
		p = append(p, idx)
	}
	return p, nil
}

// MustParse is Parse for constant paths in tests and defaults.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	var sb strings.Builder
	sb.WriteString("m")
	for _, idx := range p {
		sb.WriteByte('/')
		if idx&Hardened != 0 {
			sb.WriteString(strconv.FormatUint(uint64(idx&^Hardened), 10))
			sb.WriteByte('\'')
		} else {
			sb.WriteString(strconv.FormatUint(uint64(idx), 10))
		}
	}
	return sb.String()
}

// Equal reports whether both paths have identical components.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// Account returns the account-level prefix (purpose, coin type, account)
// or nil for paths that are too short.
func (p Path) Account() Path {
	if len(p) < 3 {
		return nil
	}
	return p[:3:3]
}

func (p Path) hasPrefix(purpose uint32) bool {
	return len(p) >= 2 && p[0] == purpose && p[1] == CoinType
}

// IsByron reports whether p lies under 44'/1815'.
func (p Path) IsByron() bool { return p.hasPrefix(PurposeByron) }

// IsShelley reports whether p lies under 1852'/1815'.
func (p Path) IsShelley() bool { return p.hasPrefix(PurposeShelley) }

// IsMultisig reports whether p lies under 1854'/1815'.
func (p Path) IsMultisig() bool { return p.hasPrefix(PurposeMultisig) }

// IsMinting reports whether p lies under 1855'/1815'.
func (p Path) IsMinting() bool { return p.hasPrefix(PurposeMinting) }

// IsCardano reports whether p lies in any of the Cardano namespaces. The
// keychain refuses to derive anything else.
func (p Path) IsCardano() bool {
	return p.IsByron() || p.IsShelley() || p.IsMultisig() || p.IsMinting()
}

func safeAccount(idx uint32) bool {
	return idx&Hardened != 0 && idx&^Hardened <= maxSafeAccount
}

func safeAddressIndex(idx uint32) bool {
	return idx&Hardened == 0 && idx <= maxSafeAddressIndex
}

// IsPayment matches m/[44',1852']/1815'/[0-100]'/[0,1]/[0-1000000].
func (p Path) IsPayment() bool {
	return len(p) == 5 && (p.IsByron() || p.IsShelley()) &&
		safeAccount(p[2]) &&
		(p[3] == ChainExternal || p[3] == ChainInternal) &&
		safeAddressIndex(p[4])
}

// IsStaking matches m/1852'/1815'/[0-100]'/2/0.
func (p Path) IsStaking() bool {
	return p.IsStakingAnyAccount() && safeAccount(p[2])
}

// IsStakingAnyAccount matches m/1852'/1815'/x'/2/0 for any hardened account.
func (p Path) IsStakingAnyAccount() bool {
	return len(p) == 5 && p.IsShelley() && p[2]&Hardened != 0 &&
		p[3] == ChainStaking && p[4] == 0
}

// IsMultisigKey matches m/1854'/1815'/[0-100]'/[0,2]/[0-1000000].
func (p Path) IsMultisigKey() bool {
	return len(p) == 5 && p.IsMultisig() && safeAccount(p[2]) &&
		(p[3] == ChainExternal || p[3] == ChainStaking) &&
		safeAddressIndex(p[4])
}

// IsMintKey matches m/1855'/1815'/x' for any hardened policy index.
func (p Path) IsMintKey() bool {
	return len(p) == 3 && p.IsMinting() && p[2]&Hardened != 0
}
