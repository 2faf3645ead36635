// Package messages defines the typed items a host streams into the signer
// and the responses the signer sends back.
//
// Items form a closed set: every type implements Item through an unexported
// marker method, so the engine's type switches are exhaustive. Each item
// carries only the fields its envelope allows; where two fields are
// mutually exclusive the choice is part of the type (see Destination).
package messages

import (
	"fmt"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

// Kind names an item or response on the wire.
type Kind string

const (
	KindTxInput              Kind = "tx_input"
	KindTxOutput             Kind = "tx_output"
	KindAssetGroup           Kind = "asset_group"
	KindToken                Kind = "token"
	KindMintToken            Kind = "mint_token"
	KindInlineDatumChunk     Kind = "inline_datum_chunk"
	KindReferenceScriptChunk Kind = "reference_script_chunk"
	KindCertificate          Kind = "certificate"
	KindPoolOwner            Kind = "pool_owner"
	KindPoolRelay            Kind = "pool_relay"
	KindWithdrawal           Kind = "withdrawal"
	KindAuxiliaryData        Kind = "auxiliary_data"
	KindMint                 Kind = "mint"
	KindCollateralInput      Kind = "collateral_input"
	KindRequiredSigner       Kind = "required_signer"
	KindReferenceInput       Kind = "reference_input"
	KindWitnessRequest       Kind = "witness_request"
	KindHostAck              Kind = "host_ack"

	KindItemAck                 Kind = "item_ack"
	KindAuxiliaryDataSupplement Kind = "auxiliary_data_supplement"
	KindWitnessResponse         Kind = "witness_response"
	KindBodyHash                Kind = "body_hash"
	KindSignTxFinished          Kind = "sign_tx_finished"
)

// SigningMode selects the policy the signer enforces for a transaction.
type SigningMode uint8

const (
	ModeOrdinary SigningMode = iota
	ModePoolRegistrationAsOwner
	ModeMultisig
	ModePlutus
)

var modeNames = map[SigningMode]string{
	ModeOrdinary:                "ordinary",
	ModePoolRegistrationAsOwner: "pool_registration_as_owner",
	ModeMultisig:                "multisig",
	ModePlutus:                  "plutus",
}

func (m SigningMode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseSigningMode maps a mode name to its value.
func ParseSigningMode(s string) (SigningMode, error) {
	for m, n := range modeNames {
		if n == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown signing mode %q", s)
}

// TxInit is the header of a signing session. It fixes the item counts of
// every section before the first item arrives.
type TxInit struct {
	SigningMode   SigningMode
	ProtocolMagic uint32
	NetworkID     uint8

	InputsCount             uint32
	OutputsCount            uint32
	Fee                     uint64
	TTL                     *uint64
	CertificatesCount       uint32
	WithdrawalsCount        uint32
	HasAuxiliaryData        bool
	ValidityIntervalStart   *uint64
	MintingAssetGroupsCount uint32
	ScriptDataHash          []byte
	CollateralInputsCount   uint32
	RequiredSignersCount    uint32
	IncludeNetworkID        bool
	HasCollateralReturn     bool
	TotalCollateral         *uint64
	ReferenceInputsCount    uint32
	WitnessRequestsCount    uint32

	// TagCborSets wraps set-like sections in tag 258.
	TagCborSets bool
	// Chunkify shows long values split over several lines. It only affects
	// rendering.
	Chunkify bool
}

// Item is anything the host streams into the signer.
type Item interface {
	Kind() Kind
	isItem()
}

// Response is anything the signer sends back.
type Response interface {
	Kind() Kind
	isResponse()
}

// TxInput spends a previous output.
type TxInput struct {
	PrevHash  []byte
	PrevIndex uint32
}

// OutputFormat selects the output serialization.
type OutputFormat uint8

const (
	// FormatArrayLegacy is [address, amount, datum_hash?].
	FormatArrayLegacy OutputFormat = iota
	// FormatMapBabbage is {0: address, 1: amount, 2: datum_option?, 3: script_ref?}.
	FormatMapBabbage
)

// Destination is either a PlainAddress or *AddressParameters.
type Destination interface {
	isDestination()
}

// PlainAddress is a human readable address the device does not own.
type PlainAddress string

// AddressParameters describe an address the device derives, i.e. change.
type AddressParameters addresses.Parameters

func (PlainAddress) isDestination()       {}
func (*AddressParameters) isDestination() {}

// TxOutput opens an output. Asset groups, inline datum chunks and reference
// script chunks follow as separate items.
type TxOutput struct {
	Destination         Destination
	Amount              uint64
	AssetGroupsCount    uint32
	DatumHash           []byte
	Format              OutputFormat
	InlineDatumSize     uint32
	ReferenceScriptSize uint32
}

// AssetGroup opens a policy inside an output value or the mint.
type AssetGroup struct {
	PolicyID    []byte
	TokensCount uint32
}

// Token is an output token amount.
type Token struct {
	AssetName []byte
	Amount    uint64
}

// MintToken is a minted (positive) or burned (negative) amount.
type MintToken struct {
	AssetName []byte
	Amount    int64
}

// InlineDatumChunk carries part of an inline datum.
type InlineDatumChunk struct{ Data []byte }

// ReferenceScriptChunk carries part of a reference script.
type ReferenceScriptChunk struct{ Data []byte }

// CertificateType is the certificate tag in the body.
type CertificateType uint8

const (
	CertStakeRegistration         CertificateType = 0
	CertStakeDeregistration       CertificateType = 1
	CertStakeDelegation           CertificateType = 2
	CertStakePoolRegistration     CertificateType = 3
	CertStakeRegistrationConway   CertificateType = 7
	CertStakeDeregistrationConway CertificateType = 8
	CertVoteDelegation            CertificateType = 9
)

var certificateNames = map[CertificateType]string{
	CertStakeRegistration:         "stake_registration",
	CertStakeDeregistration:       "stake_deregistration",
	CertStakeDelegation:           "stake_delegation",
	CertStakePoolRegistration:     "stake_pool_registration",
	CertStakeRegistrationConway:   "stake_registration_conway",
	CertStakeDeregistrationConway: "stake_deregistration_conway",
	CertVoteDelegation:            "vote_delegation",
}

func (c CertificateType) String() string {
	if n, ok := certificateNames[c]; ok {
		return n
	}
	return fmt.Sprintf("certificate(%d)", uint8(c))
}

// ParseCertificateType maps a certificate name to its value.
func ParseCertificateType(s string) (CertificateType, error) {
	for c, n := range certificateNames {
		if n == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown certificate type %q", s)
}

// DRepType selects the kind of delegated representative.
type DRepType uint8

const (
	DRepKeyHash DRepType = iota
	DRepScriptHash
	DRepAlwaysAbstain
	DRepAlwaysNoConfidence
)

// DRep is a vote delegation target.
type DRep struct {
	Type       DRepType
	KeyHash    []byte
	ScriptHash []byte
}

// PoolMetadata points at off-chain pool metadata.
type PoolMetadata struct {
	URL  string
	Hash []byte
}

// PoolParameters describe a stake pool registration. Owners and relays
// follow as separate items.
type PoolParameters struct {
	PoolID            []byte
	VRFKeyHash        []byte
	Pledge            uint64
	Cost              uint64
	MarginNumerator   uint64
	MarginDenominator uint64
	RewardAccount     string
	OwnersCount       uint32
	RelaysCount       uint32
	Metadata          *PoolMetadata
}

// Certificate is one body certificate. Which credential field is used
// depends on the type and is checked by the signer.
type Certificate struct {
	Type           CertificateType
	Path           paths.Path
	ScriptHash     []byte
	KeyHash        []byte
	Pool           []byte
	PoolParameters *PoolParameters
	Deposit        *uint64
	DRep           *DRep
}

// PoolOwner is given either by staking path or by key hash.
type PoolOwner struct {
	StakingKeyPath paths.Path
	StakingKeyHash []byte
}

// RelayType is the pool relay variant.
type RelayType uint8

const (
	RelaySingleHostIP RelayType = iota
	RelaySingleHostName
	RelayMultipleHostName
)

// PoolRelay is one stake pool relay.
type PoolRelay struct {
	Type        RelayType
	Port        *uint16
	IPv4Address []byte
	IPv6Address []byte
	HostName    string
}

// Withdrawal withdraws rewards from a stake credential.
type Withdrawal struct {
	Path       paths.Path
	ScriptHash []byte
	KeyHash    []byte
	Amount     uint64
}

// AuxiliaryData is accepted by hash only.
type AuxiliaryData struct {
	Hash []byte
}

// Mint opens the mint section.
type Mint struct {
	AssetGroupsCount uint32
}

// CollateralInput is an input spent if script validation fails.
type CollateralInput struct {
	PrevHash  []byte
	PrevIndex uint32
}

// RequiredSigner is given either by key hash or by path.
type RequiredSigner struct {
	KeyHash []byte
	Path    paths.Path
}

// ReferenceInput is an input read but not spent by scripts.
type ReferenceInput struct {
	PrevHash  []byte
	PrevIndex uint32
}

// WitnessRequest asks for a signature of the body hash.
type WitnessRequest struct {
	Path paths.Path
}

// HostAck moves the protocol tail forward.
type HostAck struct{}

func (TxInput) Kind() Kind              { return KindTxInput }
func (TxOutput) Kind() Kind             { return KindTxOutput }
func (AssetGroup) Kind() Kind           { return KindAssetGroup }
func (Token) Kind() Kind                { return KindToken }
func (MintToken) Kind() Kind            { return KindMintToken }
func (InlineDatumChunk) Kind() Kind     { return KindInlineDatumChunk }
func (ReferenceScriptChunk) Kind() Kind { return KindReferenceScriptChunk }
func (Certificate) Kind() Kind          { return KindCertificate }
func (PoolOwner) Kind() Kind            { return KindPoolOwner }
func (PoolRelay) Kind() Kind            { return KindPoolRelay }
func (Withdrawal) Kind() Kind           { return KindWithdrawal }
func (AuxiliaryData) Kind() Kind        { return KindAuxiliaryData }
func (Mint) Kind() Kind                 { return KindMint }
func (CollateralInput) Kind() Kind      { return KindCollateralInput }
func (RequiredSigner) Kind() Kind       { return KindRequiredSigner }
func (ReferenceInput) Kind() Kind       { return KindReferenceInput }
func (WitnessRequest) Kind() Kind       { return KindWitnessRequest }
func (HostAck) Kind() Kind              { return KindHostAck }

func (TxInput) isItem()              {}
func (TxOutput) isItem()             {}
func (AssetGroup) isItem()           {}
func (Token) isItem()                {}
func (MintToken) isItem()            {}
func (InlineDatumChunk) isItem()     {}
func (ReferenceScriptChunk) isItem() {}
func (Certificate) isItem()          {}
func (PoolOwner) isItem()            {}
func (PoolRelay) isItem()            {}
func (Withdrawal) isItem()           {}
func (AuxiliaryData) isItem()        {}
func (Mint) isItem()                 {}
func (CollateralInput) isItem()      {}
func (RequiredSigner) isItem()       {}
func (ReferenceInput) isItem()       {}
func (WitnessRequest) isItem()       {}
func (HostAck) isItem()              {}

// ItemAck acknowledges an item and asks for the next one.
type ItemAck struct{}

// AuxiliaryDataSupplementType says what the device adds to auxiliary data.
type AuxiliaryDataSupplementType uint8

const (
	SupplementNone AuxiliaryDataSupplementType = iota
	SupplementGovernanceRegistrationSignature
)

// AuxiliaryDataSupplement answers an AuxiliaryData item.
type AuxiliaryDataSupplement struct {
	Type              AuxiliaryDataSupplementType
	AuxiliaryDataHash []byte
	Signature         []byte
}

// WitnessType is the witness flavour.
type WitnessType uint8

const (
	WitnessByron WitnessType = iota
	WitnessShelley
)

func (w WitnessType) String() string {
	if w == WitnessByron {
		return "byron"
	}
	return "shelley"
}

// WitnessResponse carries one signature of the body hash. ChainCode is set
// for Byron witnesses only.
type WitnessResponse struct {
	Type      WitnessType
	PubKey    []byte
	Signature []byte
	ChainCode []byte
}

// BodyHash reports the transaction id.
type BodyHash struct {
	TxHash []byte
}

// SignTxFinished ends the session.
type SignTxFinished struct{}

func (ItemAck) Kind() Kind                 { return KindItemAck }
func (AuxiliaryDataSupplement) Kind() Kind { return KindAuxiliaryDataSupplement }
func (WitnessResponse) Kind() Kind         { return KindWitnessResponse }
func (BodyHash) Kind() Kind                { return KindBodyHash }
func (SignTxFinished) Kind() Kind          { return KindSignTxFinished }

func (ItemAck) isResponse()                 {}
func (AuxiliaryDataSupplement) isResponse() {}
func (WitnessResponse) isResponse()         {}
func (BodyHash) isResponse()                {}
func (SignTxFinished) isResponse()          {}
