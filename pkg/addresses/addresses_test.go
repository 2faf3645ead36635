package addresses

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cardano-signtx/pkg/keychain"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

const testnetMagic uint32 = 1097911063

func testKeychain(t *testing.T) *keychain.Software {
	t.Helper()
	kc, err := keychain.NewSoftware(bytes.Repeat([]byte{0x01}, 16), nil)
	require.NoError(t, err)
	return kc
}

func TestEncodeKnownVectors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		address string
	}{
		{
			"enterprise mainnet",
			"61" + "9493315cd92eb5d8c4304e67b7e16ae36d61d34502694657811a2c8e",
			"addr1vx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzers66hrl8",
		},
		{
			"reward mainnet",
			"e1" + "337b62cfff6403a06a3acbc34f8c46003c69fe79a3628cefa9c47251",
			"stake1uyehkck0lajq8gr28t9uxnuvgcqrc6070x3k9r8048z8y5gh6ffgw",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tt.raw)
			require.NoError(t, err)

			encoded, err := Encode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.address, encoded)

			decoded, err := Decode(tt.address)
			require.NoError(t, err)
			assert.Equal(t, raw, decoded)
		})
	}
}

func TestValidateOutput(t *testing.T) {
	_, err := ValidateOutput("addr1vx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzers66hrl8",
		MainnetProtocolMagic, MainnetNetworkID)
	require.NoError(t, err)

	// wrong prefix for the network
	_, err = ValidateOutput("addr1vx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzers66hrl8",
		testnetMagic, TestnetNetworkID)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	// reward addresses are not outputs
	_, err = ValidateOutput("stake1uyehkck0lajq8gr28t9uxnuvgcqrc6070x3k9r8048z8y5gh6ffgw",
		MainnetProtocolMagic, MainnetNetworkID)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = ValidateReward("stake1uyehkck0lajq8gr28t9uxnuvgcqrc6070x3k9r8048z8y5gh6ffgw",
		MainnetProtocolMagic, MainnetNetworkID)
	assert.NoError(t, err)

	_, err = ValidateOutput("", MainnetProtocolMagic, MainnetNetworkID)
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = ValidateOutput("not an address 0OIl", MainnetProtocolMagic, MainnetNetworkID)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestValidateNetworkMismatch(t *testing.T) {
	// testnet header under the mainnet prefix
	raw := append([]byte{0x60}, bytes.Repeat([]byte{0x42}, 28)...)
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	require.NoError(t, err)
	address, err := bech32.Encode(HRPAddress, data)
	require.NoError(t, err)

	_, err = ValidateOutput(address, MainnetProtocolMagic, MainnetNetworkID)
	assert.ErrorIs(t, err, ErrNetworkMismatch)
}

func TestValidateShortShelleyAddress(t *testing.T) {
	raw := append([]byte{0x61}, bytes.Repeat([]byte{0x42}, 20)...)
	data, err := bech32.ConvertBits(raw, 8, 5, true)
	require.NoError(t, err)
	address, err := bech32.Encode(HRPAddress, data)
	require.NoError(t, err)

	_, err = ValidateOutput(address, MainnetProtocolMagic, MainnetNetworkID)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestByronMainnetVector(t *testing.T) {
	const address = "Ae2tdPwUPEZFRbyhz3cpfC2CumGzNkFBN2L42rcUc2yjQpEkxDbkPodpMAi"
	raw, typ, err := Validate(address, MainnetProtocolMagic, MainnetNetworkID)
	require.NoError(t, err)
	assert.Equal(t, Byron, typ)

	encoded, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, address, encoded)

	assert.ErrorIs(t, ValidateByron(raw, testnetMagic), ErrNetworkMismatch)
}

func TestValidateAnyNetwork(t *testing.T) {
	_, typ, err := ValidateAnyNetwork("addr1vx2fxv2umyhttkxyxp8x0dlpdt3k6cwng5pxj3jhsydzers66hrl8")
	require.NoError(t, err)
	assert.Equal(t, Enterprise, typ)

	_, typ, err = ValidateAnyNetwork("Ae2tdPwUPEZFRbyhz3cpfC2CumGzNkFBN2L42rcUc2yjQpEkxDbkPodpMAi")
	require.NoError(t, err)
	assert.Equal(t, Byron, typ)

	// testnet Byron addresses carry their magic and are still well formed
	raw, err := Derive(testKeychain(t), Parameters{Type: Byron, Path: paths.MustParse("m/44'/1815'/0'/0/0")},
		testnetMagic, TestnetNetworkID)
	require.NoError(t, err)
	testnetByron, err := Encode(raw)
	require.NoError(t, err)
	_, _, err = ValidateAnyNetwork(testnetByron)
	assert.NoError(t, err)

	// testnet header under the mainnet prefix
	mismatched := append([]byte{0x60}, bytes.Repeat([]byte{0x42}, 28)...)
	data, err := bech32.ConvertBits(mismatched, 8, 5, true)
	require.NoError(t, err)
	wrongPrefix, err := bech32.Encode(HRPAddress, data)
	require.NoError(t, err)

	corrupt := append([]byte(nil), raw...)
	corrupt[len(corrupt)-1] ^= 0xff

	for _, address := range []string{
		"",
		// decodes as base58 but has no address structure
		"addr1notanaddress",
		wrongPrefix,
		base58.Encode(corrupt),
		base58.Encode(append([]byte{0x61}, bytes.Repeat([]byte{0x42}, 28)...)),
	} {
		_, _, err := ValidateAnyNetwork(address)
		assert.ErrorIs(t, err, ErrInvalidAddress, address)
	}
}

func TestByronDeriveAndValidate(t *testing.T) {
	kc := testKeychain(t)
	params := Parameters{Type: Byron, Path: paths.MustParse("m/44'/1815'/0'/0/0")}

	for _, magic := range []uint32{MainnetProtocolMagic, testnetMagic} {
		raw, err := Derive(kc, params, magic, MainnetNetworkID)
		require.NoError(t, err)
		assert.Equal(t, Byron, TypeOf(raw))
		assert.NoError(t, ValidateByron(raw, magic))

		other := MainnetProtocolMagic
		if magic == MainnetProtocolMagic {
			other = testnetMagic
		}
		assert.ErrorIs(t, ValidateByron(raw, other), ErrNetworkMismatch)

		corrupt := append([]byte(nil), raw...)
		corrupt[len(corrupt)-1] ^= 0xff
		assert.ErrorIs(t, ValidateByron(corrupt, magic), ErrInvalidAddress)
	}
}

func TestDeriveShelley(t *testing.T) {
	kc := testKeychain(t)
	payment := paths.MustParse("m/1852'/1815'/0'/0/0")
	staking := paths.MustParse("m/1852'/1815'/0'/2/0")

	paymentHash, err := PublicKeyHash(kc, payment)
	require.NoError(t, err)
	stakingHash, err := PublicKeyHash(kc, staking)
	require.NoError(t, err)

	base, err := Derive(kc, Parameters{Type: Base, Path: payment, StakingPath: staking}, MainnetProtocolMagic, MainnetNetworkID)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), base[0])
	assert.Equal(t, paymentHash, base[1:29])
	assert.Equal(t, stakingHash, base[29:])

	enterprise, err := Derive(kc, Parameters{Type: Enterprise, Path: payment}, testnetMagic, TestnetNetworkID)
	require.NoError(t, err)
	assert.Equal(t, byte(0x60), enterprise[0])
	assert.Len(t, enterprise, 29)

	pointer, err := Derive(kc, Parameters{
		Type:    Pointer,
		Path:    payment,
		Pointer: &CertificatePointer{BlockIndex: 128, TxIndex: 2, CertificateIndex: 0},
	}, MainnetProtocolMagic, MainnetNetworkID)
	require.NoError(t, err)
	assert.Equal(t, "41", hex.EncodeToString(pointer[:1]))
	assert.Equal(t, "81000200", hex.EncodeToString(pointer[29:]))

	reward, err := Derive(kc, Parameters{Type: Reward, StakingPath: staking}, MainnetProtocolMagic, MainnetNetworkID)
	require.NoError(t, err)
	assert.Equal(t, RewardAddress(stakingHash, false, MainnetNetworkID), reward)

	encoded, err := Encode(base)
	require.NoError(t, err)
	back, err := ValidateOutput(encoded, MainnetProtocolMagic, MainnetNetworkID)
	require.NoError(t, err)
	assert.Equal(t, base, back)
}

func TestValidateParameters(t *testing.T) {
	payment := paths.MustParse("m/1852'/1815'/0'/0/0")
	staking := paths.MustParse("m/1852'/1815'/0'/2/0")
	hash := bytes.Repeat([]byte{0x0a}, 28)

	tests := []struct {
		name   string
		params Parameters
		output bool
		ok     bool
	}{
		{"base", Parameters{Type: Base, Path: payment, StakingPath: staking}, true, true},
		{"base key hash", Parameters{Type: Base, Path: payment, StakingKeyHash: hash}, true, true},
		{"base both staking", Parameters{Type: Base, Path: payment, StakingPath: staking, StakingKeyHash: hash}, true, false},
		{"base no staking", Parameters{Type: Base, Path: payment}, true, false},
		{"base byron path", Parameters{Type: Base, Path: paths.MustParse("m/44'/1815'/0'/0/0"), StakingPath: staking}, true, false},
		{"base staking not staking path", Parameters{Type: Base, Path: payment, StakingPath: payment}, true, false},
		{"enterprise with pointer", Parameters{Type: Enterprise, Path: payment, Pointer: &CertificatePointer{}}, true, false},
		{"pointer", Parameters{Type: Pointer, Path: payment, Pointer: &CertificatePointer{}}, true, true},
		{"pointer missing", Parameters{Type: Pointer, Path: payment}, true, false},
		{"script payment change", Parameters{Type: EnterpriseScript, ScriptPaymentHash: hash}, true, false},
		{"script payment", Parameters{Type: EnterpriseScript, ScriptPaymentHash: hash}, false, true},
		{"short script hash", Parameters{Type: EnterpriseScript, ScriptPaymentHash: hash[:27]}, false, false},
		{"reward change", Parameters{Type: Reward, StakingPath: staking}, true, false},
		{"reward", Parameters{Type: Reward, StakingPath: staking}, false, true},
		{"byron", Parameters{Type: Byron, Path: paths.MustParse("m/44'/1815'/0'/0/0")}, true, true},
		{"unknown type", Parameters{Type: 9, Path: payment}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.output {
				err = ValidateOutputParameters(tt.params)
			} else {
				err = ValidateParameters(tt.params)
			}
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidParameters)
			}
		})
	}
}

func TestAppendVarUint(t *testing.T) {
	assert.Equal(t, []byte{0x00}, appendVarUint(nil, 0))
	assert.Equal(t, []byte{0x7f}, appendVarUint(nil, 127))
	assert.Equal(t, []byte{0x81, 0x00}, appendVarUint(nil, 128))
	assert.Equal(t, []byte{0x82, 0xa4, 0x07}, appendVarUint(nil, 37383))
}

func TestTypeNames(t *testing.T) {
	for typ := range typeNames {
		parsed, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, parsed)
	}
	_, err := ParseType("nope")
	assert.Error(t, err)
}
