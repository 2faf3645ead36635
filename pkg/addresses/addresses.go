// Package addresses validates, derives and encodes Cardano addresses.
//
// Shelley-era addresses are a header byte (address type in the high nibble,
// network id in the low nibble) followed by payment and staking parts, and
// are written in bech32. Byron addresses are CBOR structures written in
// base58.
package addresses

import (
	"errors"
	"fmt"

	blake2b "github.com/minio/blake2b-simd"

	"github.com/suffix-labs/cardano-signtx/pkg/keychain"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

// Type is the address type stored in the high nibble of the header.
type Type uint8

const (
	Base             Type = 0
	BaseScriptKey    Type = 1
	BaseKeyScript    Type = 2
	BaseScriptScript Type = 3
	Pointer          Type = 4
	PointerScript    Type = 5
	Enterprise       Type = 6
	EnterpriseScript Type = 7
	Byron            Type = 8
	Reward           Type = 14
	RewardScript     Type = 15
)

var typeNames = map[Type]string{
	Base:             "base",
	BaseScriptKey:    "base_script_key",
	BaseKeyScript:    "base_key_script",
	BaseScriptScript: "base_script_script",
	Pointer:          "pointer",
	PointerScript:    "pointer_script",
	Enterprise:       "enterprise",
	EnterpriseScript: "enterprise_script",
	Byron:            "byron",
	Reward:           "reward",
	RewardScript:     "reward_script",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType maps a type name back to its value.
func ParseType(name string) (Type, error) {
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown address type %q", name)
}

// IsShelley reports whether t is one of the Shelley-era types.
func (t Type) IsShelley() bool {
	switch t {
	case Base, BaseScriptKey, BaseKeyScript, BaseScriptScript,
		Pointer, PointerScript, Enterprise, EnterpriseScript,
		Reward, RewardScript:
		return true
	}
	return false
}

// HasPaymentKey reports whether the payment part of t is a key hash.
func (t Type) HasPaymentKey() bool {
	switch t {
	case Base, BaseKeyScript, Pointer, Enterprise, Byron:
		return true
	}
	return false
}

// HasPaymentScript reports whether the payment part of t is a script hash.
func (t Type) HasPaymentScript() bool {
	switch t {
	case BaseScriptKey, BaseScriptScript, PointerScript, EnterpriseScript:
		return true
	}
	return false
}

// IsReward reports whether t is a reward (stake) address type.
func (t Type) IsReward() bool { return t == Reward || t == RewardScript }

const (
	KeyHashSize    = 28
	ScriptHashSize = 28

	minShelleySize = 29
	maxShelleySize = 65
)

// Network constants.
const (
	MainnetProtocolMagic uint32 = 764824073
	MainnetNetworkID     uint8  = 1
	TestnetNetworkID     uint8  = 0
)

// IsMainnetNetworkID reports whether id is the mainnet network id.
func IsMainnetNetworkID(id uint8) bool { return id == MainnetNetworkID }

// IsMainnetProtocolMagic reports whether magic is the mainnet protocol magic.
func IsMainnetProtocolMagic(magic uint32) bool { return magic == MainnetProtocolMagic }

var (
	ErrInvalidParameters = errors.New("invalid address parameters")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrNetworkMismatch   = errors.New("output address network mismatch")
)

// CertificatePointer locates a stake registration certificate on chain.
type CertificatePointer struct {
	BlockIndex       uint64 `json:"block_index"`
	TxIndex          uint64 `json:"tx_index"`
	CertificateIndex uint64 `json:"certificate_index"`
}

// Parameters describe an address the device derives itself.
type Parameters struct {
	Type              Type
	Path              paths.Path
	StakingPath       paths.Path
	StakingKeyHash    []byte
	Pointer           *CertificatePointer
	ScriptPaymentHash []byte
	ScriptStakingHash []byte
}

type field uint8

const (
	fieldPath field = 1 << iota
	fieldStakingPath
	fieldStakingKeyHash
	fieldPointer
	fieldScriptPaymentHash
	fieldScriptStakingHash
)

// fields that must be empty for each type
var emptyFields = map[Type]field{
	Base:             fieldPointer | fieldScriptPaymentHash | fieldScriptStakingHash,
	BaseKeyScript:    fieldStakingPath | fieldPointer | fieldScriptPaymentHash,
	BaseScriptKey:    fieldPath | fieldPointer | fieldScriptStakingHash,
	BaseScriptScript: fieldPath | fieldStakingPath | fieldPointer,
	Pointer:          fieldStakingPath | fieldStakingKeyHash | fieldScriptPaymentHash | fieldScriptStakingHash,
	PointerScript:    fieldPath | fieldStakingPath | fieldStakingKeyHash | fieldScriptStakingHash,
	Enterprise:       fieldStakingPath | fieldStakingKeyHash | fieldPointer | fieldScriptPaymentHash | fieldScriptStakingHash,
	EnterpriseScript: fieldPath | fieldStakingPath | fieldStakingKeyHash | fieldPointer | fieldScriptStakingHash,
	Byron:            fieldStakingPath | fieldStakingKeyHash | fieldPointer | fieldScriptPaymentHash | fieldScriptStakingHash,
	Reward:           fieldPath | fieldStakingKeyHash | fieldPointer | fieldScriptPaymentHash | fieldScriptStakingHash,
	RewardScript:     fieldPath | fieldStakingPath | fieldStakingKeyHash | fieldPointer | fieldScriptPaymentHash,
}

func (p Parameters) present() field {
	var f field
	if len(p.Path) > 0 {
		f |= fieldPath
	}
	if len(p.StakingPath) > 0 {
		f |= fieldStakingPath
	}
	if len(p.StakingKeyHash) > 0 {
		f |= fieldStakingKeyHash
	}
	if p.Pointer != nil {
		f |= fieldPointer
	}
	if len(p.ScriptPaymentHash) > 0 {
		f |= fieldScriptPaymentHash
	}
	if len(p.ScriptStakingHash) > 0 {
		f |= fieldScriptStakingHash
	}
	return f
}

func check(cond bool) error {
	if !cond {
		return ErrInvalidParameters
	}
	return nil
}

// ValidateParameters checks that p names a well-formed address of its type.
func ValidateParameters(p Parameters) error {
	empty, ok := emptyFields[p.Type]
	if !ok || p.present()&empty != 0 {
		return ErrInvalidParameters
	}

	switch p.Type {
	case Byron:
		return check(p.Path.IsByron())
	case Base:
		if err := check(p.Path.IsShelley()); err != nil {
			return err
		}
		return validateStakingInfo(p.StakingPath, p.StakingKeyHash)
	case BaseScriptKey:
		if err := checkScriptHash(p.ScriptPaymentHash); err != nil {
			return err
		}
		return validateStakingInfo(p.StakingPath, p.StakingKeyHash)
	case BaseKeyScript:
		if err := check(p.Path.IsShelley()); err != nil {
			return err
		}
		return checkScriptHash(p.ScriptStakingHash)
	case BaseScriptScript:
		if err := checkScriptHash(p.ScriptPaymentHash); err != nil {
			return err
		}
		return checkScriptHash(p.ScriptStakingHash)
	case Pointer:
		return check(p.Path.IsShelley() && p.Pointer != nil)
	case PointerScript:
		if err := checkScriptHash(p.ScriptPaymentHash); err != nil {
			return err
		}
		return check(p.Pointer != nil)
	case Enterprise:
		return check(p.Path.IsShelley())
	case EnterpriseScript:
		return checkScriptHash(p.ScriptPaymentHash)
	case Reward:
		return check(p.StakingPath.IsShelley() && p.StakingPath.IsStakingAnyAccount())
	case RewardScript:
		return checkScriptHash(p.ScriptStakingHash)
	}
	return ErrInvalidParameters
}

// ValidateOutputParameters additionally restricts change outputs to types
// whose payment part is a key the device owns.
func ValidateOutputParameters(p Parameters) error {
	if err := ValidateParameters(p); err != nil {
		return err
	}
	return check(p.Type.HasPaymentKey())
}

func validateStakingInfo(stakingPath paths.Path, stakingKeyHash []byte) error {
	switch {
	case len(stakingKeyHash) > 0 && len(stakingPath) > 0:
		return ErrInvalidParameters
	case len(stakingKeyHash) > 0:
		return check(len(stakingKeyHash) == KeyHashSize)
	case len(stakingPath) > 0:
		return check(stakingPath.IsStakingAnyAccount())
	default:
		return ErrInvalidParameters
	}
}

func checkScriptHash(h []byte) error {
	return check(len(h) == ScriptHashSize)
}

// PublicKeyHash returns blake2b-224 of the public key at path.
func PublicKeyHash(kc keychain.Keychain, path paths.Path) ([]byte, error) {
	h, err := kc.Derive(path)
	if err != nil {
		return nil, err
	}
	defer h.Wipe()
	return Blake2b224(h.PublicKey()), nil
}

// Blake2b224 hashes data into a 28 byte digest.
func Blake2b224(data []byte) []byte {
	h, err := blake2b.New(&blake2b.Config{Size: KeyHashSize})
	if err != nil {
		panic(fmt.Sprintf("addresses: blake2b-224: %v", err))
	}
	h.Write(data)
	return h.Sum(nil)
}

// Derive builds the address bytes described by p.
func Derive(kc keychain.Keychain, p Parameters, protocolMagic uint32, networkID uint8) ([]byte, error) {
	if err := ValidateParameters(p); err != nil {
		return nil, err
	}
	if p.Type == Byron {
		h, err := kc.Derive(p.Path)
		if err != nil {
			return nil, err
		}
		defer h.Wipe()
		return DeriveByron(h.PublicKey(), h.ChainCode(), protocolMagic)
	}

	out := []byte{byte(p.Type)<<4 | networkID&0x0f}

	switch {
	case len(p.Path) > 0:
		kh, err := PublicKeyHash(kc, p.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, kh...)
	case len(p.ScriptPaymentHash) > 0:
		out = append(out, p.ScriptPaymentHash...)
	}

	switch {
	case len(p.StakingKeyHash) > 0:
		out = append(out, p.StakingKeyHash...)
	case len(p.StakingPath) > 0:
		kh, err := PublicKeyHash(kc, p.StakingPath)
		if err != nil {
			return nil, err
		}
		out = append(out, kh...)
	case len(p.ScriptStakingHash) > 0:
		out = append(out, p.ScriptStakingHash...)
	case p.Pointer != nil:
		out = appendVarUint(out, p.Pointer.BlockIndex)
		out = appendVarUint(out, p.Pointer.TxIndex)
		out = appendVarUint(out, p.Pointer.CertificateIndex)
	}
	return out, nil
}

// RewardAddress builds the reward address for a staking key hash or script
// hash.
func RewardAddress(credential []byte, script bool, networkID uint8) []byte {
	t := Reward
	if script {
		t = RewardScript
	}
	return append([]byte{byte(t)<<4 | networkID&0x0f}, credential...)
}

// appendVarUint writes n in big-endian groups of seven bits, the high bit
// marking every group but the last.
func appendVarUint(dst []byte, n uint64) []byte {
	var tmp [10]byte
	i := len(tmp) - 1
	tmp[i] = byte(n & 0x7f)
	n >>= 7
	for n > 0 {
		i--
		tmp[i] = byte(n&0x7f) | 0x80
		n >>= 7
	}
	return append(dst, tmp[i:]...)
}

// TypeOf returns the type of encoded address bytes.
func TypeOf(addr []byte) Type {
	if len(addr) == 0 {
		return 0xff
	}
	return Type(addr[0] >> 4)
}

// NetworkIDOf returns the network id of a Shelley address.
func NetworkIDOf(addr []byte) uint8 { return addr[0] & 0x0f }

// Validate decodes a human readable address and checks it belongs to the
// given network. It returns the address bytes and type.
func Validate(address string, protocolMagic uint32, networkID uint8) ([]byte, Type, error) {
	if address == "" {
		return nil, 0, ErrInvalidAddress
	}
	raw, hrp, err := decode(address)
	if err != nil {
		return nil, 0, err
	}
	if len(raw) == 0 {
		return nil, 0, ErrInvalidAddress
	}
	t := TypeOf(raw)

	switch {
	case t == Byron:
		if hrp != "" {
			return nil, 0, ErrInvalidAddress
		}
		if err := ValidateByron(raw, protocolMagic); err != nil {
			return nil, 0, err
		}
	case t.IsShelley():
		if len(raw) < minShelleySize || len(raw) > maxShelleySize {
			return nil, 0, ErrInvalidAddress
		}
		if hrp != bech32Prefix(t, networkID) {
			return nil, 0, ErrInvalidAddress
		}
		if NetworkIDOf(raw) != networkID {
			return nil, 0, ErrNetworkMismatch
		}
	default:
		return nil, 0, ErrInvalidAddress
	}
	return raw, t, nil
}

// ValidateAnyNetwork checks an address is well formed without binding it to
// a network: a Byron address must carry a valid checksum, a Shelley address
// must have a valid size and the bech32 prefix its header byte implies.
func ValidateAnyNetwork(address string) ([]byte, Type, error) {
	if address == "" {
		return nil, 0, ErrInvalidAddress
	}
	raw, hrp, err := decode(address)
	if err != nil {
		return nil, 0, err
	}
	t := TypeOf(raw)

	switch {
	case t == Byron:
		if hrp != "" {
			return nil, 0, ErrInvalidAddress
		}
		if _, _, err := byronMagic(raw); err != nil {
			return nil, 0, err
		}
	case t.IsShelley():
		if len(raw) < minShelleySize || len(raw) > maxShelleySize {
			return nil, 0, ErrInvalidAddress
		}
		if hrp != bech32Prefix(t, NetworkIDOf(raw)) {
			return nil, 0, ErrInvalidAddress
		}
	default:
		return nil, 0, ErrInvalidAddress
	}
	return raw, t, nil
}

// ValidateOutput accepts any valid non-reward address.
func ValidateOutput(address string, protocolMagic uint32, networkID uint8) ([]byte, error) {
	raw, t, err := Validate(address, protocolMagic, networkID)
	if err != nil {
		return nil, err
	}
	if t.IsReward() {
		return nil, ErrInvalidAddress
	}
	return raw, nil
}

// ValidateReward accepts only reward addresses.
func ValidateReward(address string, protocolMagic uint32, networkID uint8) ([]byte, error) {
	raw, t, err := Validate(address, protocolMagic, networkID)
	if err != nil {
		return nil, err
	}
	if !t.IsReward() {
		return nil, ErrInvalidAddress
	}
	return raw, nil
}
