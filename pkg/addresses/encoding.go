package addresses

import (
	"fmt"
	"hash/crc32"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/sha3"

	"github.com/suffix-labs/cardano-signtx/pkg/cbor"
)

// Bech32 human readable prefixes.
const (
	HRPAddress              = "addr"
	HRPTestnetAddress       = "addr_test"
	HRPRewardAddress        = "stake"
	HRPTestnetRewardAddress = "stake_test"
)

func bech32Prefix(t Type, networkID uint8) string {
	mainnet := IsMainnetNetworkID(networkID)
	switch {
	case t.IsReward() && mainnet:
		return HRPRewardAddress
	case t.IsReward():
		return HRPTestnetRewardAddress
	case mainnet:
		return HRPAddress
	default:
		return HRPTestnetAddress
	}
}

// decode accepts bech32 first and falls back to base58. The returned prefix
// is empty for base58 input.
func decode(address string) ([]byte, string, error) {
	// Cardano addresses exceed the 90 character limit of BIP173.
	hrp, data, err := bech32.DecodeNoLimit(address)
	if err == nil {
		raw, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, "", ErrInvalidAddress
		}
		return raw, hrp, nil
	}

	raw := base58.Decode(address)
	if len(raw) == 0 {
		return nil, "", ErrInvalidAddress
	}
	return raw, "", nil
}

// Decode returns the bytes of a bech32 or base58 address without checking
// its network.
func Decode(address string) ([]byte, error) {
	raw, _, err := decode(address)
	return raw, err
}

// Encode renders address bytes in their human readable form.
func Encode(addr []byte) (string, error) {
	t := TypeOf(addr)
	switch {
	case t == Byron:
		return base58.Encode(addr), nil
	case t.IsShelley():
		data, err := bech32.ConvertBits(addr, 8, 5, true)
		if err != nil {
			return "", err
		}
		return bech32.Encode(bech32Prefix(t, NetworkIDOf(addr)), data)
	default:
		return "", fmt.Errorf("%w: unknown type %s", ErrInvalidAddress, t)
	}
}

// byronAttributeNetworkMagic is the attribute key carrying the protocol
// magic of non-mainnet Byron addresses.
const byronAttributeNetworkMagic = 2

type byronAddress struct {
	_       struct{} `cbor:",toarray"`
	Payload cbor.Tag
	CRC     uint32
}

type byronPayload struct {
	_          struct{} `cbor:",toarray"`
	Root       []byte
	Attributes map[uint64]cbor.RawMessage
	Type       uint64
}

func byronAttributes(protocolMagic uint32) (map[uint64][]byte, error) {
	attrs := map[uint64][]byte{}
	if !IsMainnetProtocolMagic(protocolMagic) {
		magic, err := cbor.Encode(protocolMagic)
		if err != nil {
			return nil, err
		}
		attrs[byronAttributeNetworkMagic] = magic
	}
	return attrs, nil
}

// DeriveByron builds the Byron address of an extended public key.
func DeriveByron(publicKey, chainCode []byte, protocolMagic uint32) ([]byte, error) {
	attrs, err := byronAttributes(protocolMagic)
	if err != nil {
		return nil, err
	}
	xpub := append(append([]byte(nil), publicKey...), chainCode...)

	spending, err := cbor.Encode([]any{uint64(0), []any{uint64(0), xpub}, attrs})
	if err != nil {
		return nil, err
	}
	digest := sha3.Sum256(spending)
	root := Blake2b224(digest[:])

	payload, err := cbor.Encode([]any{root, attrs, uint64(0)})
	if err != nil {
		return nil, err
	}
	return cbor.Encode([]any{
		cbor.Tag{Number: cbor.TagEncodedCBOR, Content: payload},
		crc32.ChecksumIEEE(payload),
	})
}

// byronMagic checks the structure and checksum of a Byron address and
// returns the protocol magic it carries. hasMagic is false for mainnet
// addresses, which carry none.
func byronMagic(raw []byte) (magic uint32, hasMagic bool, err error) {
	var addr byronAddress
	if err := cbor.Unmarshal(raw, &addr); err != nil {
		return 0, false, ErrInvalidAddress
	}
	payload, ok := addr.Payload.Content.([]byte)
	if addr.Payload.Number != cbor.TagEncodedCBOR || !ok {
		return 0, false, ErrInvalidAddress
	}
	if crc32.ChecksumIEEE(payload) != addr.CRC {
		return 0, false, ErrInvalidAddress
	}

	var inner byronPayload
	if err := cbor.Unmarshal(payload, &inner); err != nil {
		return 0, false, ErrInvalidAddress
	}
	magicAttr, ok := inner.Attributes[byronAttributeNetworkMagic]
	if !ok {
		return 0, false, nil
	}
	var encoded []byte
	if err := cbor.Unmarshal(magicAttr, &encoded); err != nil {
		return 0, false, ErrInvalidAddress
	}
	if err := cbor.Unmarshal(encoded, &magic); err != nil {
		return 0, false, ErrInvalidAddress
	}
	return magic, true, nil
}

// ValidateByron checks the checksum and protocol magic of a Byron address.
func ValidateByron(raw []byte, protocolMagic uint32) error {
	magic, hasMagic, err := byronMagic(raw)
	if err != nil {
		return err
	}
	if !hasMagic {
		if !IsMainnetProtocolMagic(protocolMagic) {
			return ErrNetworkMismatch
		}
		return nil
	}
	if magic != protocolMagic {
		return ErrNetworkMismatch
	}
	return nil
}
