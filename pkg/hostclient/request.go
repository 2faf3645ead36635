// Package hostclient is the host side of a signing session.
//
// A TxRequest describes a whole transaction the way a wallet would hand it
// over: as JSON, with hex byte strings and derivation paths in their
// textual form. Build turns it into the session header and the item stream
// the device pulls, and Run drives a session over any link.Host.
package hostclient

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/cbor"
	"github.com/suffix-labs/cardano-signtx/pkg/cip13"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

// HexBytes is a byte string carried as hex in JSON.
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("hostclient: invalid hex: %w", err)
	}
	if len(b) == 0 {
		b = nil
	}
	*h = b
	return nil
}

// ============================================================================
// Request types
// ============================================================================

// Input spends a previous output. Path names the key that witnesses it.
type Input struct {
	PrevHash  HexBytes `json:"prev_hash"       validate:"len=32"`
	PrevIndex uint32   `json:"prev_index"`
	Path      string   `json:"path,omitempty"  validate:"omitempty,path"`
}

// Token is one asset of an output.
type Token struct {
	AssetName HexBytes `json:"asset_name" validate:"max=32"`
	Amount    uint64   `json:"amount"`
}

// AssetGroup holds the tokens of one policy.
type AssetGroup struct {
	PolicyID HexBytes `json:"policy_id" validate:"len=28"`
	Tokens   []Token  `json:"tokens"    validate:"min=1,dive"`
}

// MintToken is one minted (positive) or burned (negative) asset.
type MintToken struct {
	AssetName HexBytes `json:"asset_name" validate:"max=32"`
	Amount    int64    `json:"amount"`
}

// MintGroup holds the minted tokens of one policy.
type MintGroup struct {
	PolicyID HexBytes    `json:"policy_id" validate:"len=28"`
	Tokens   []MintToken `json:"tokens"    validate:"min=1,dive"`
}

// Pointer locates a stake registration certificate on chain.
type Pointer struct {
	BlockIndex       uint64 `json:"block_index"`
	TxIndex          uint64 `json:"tx_index"`
	CertificateIndex uint64 `json:"certificate_index"`
}

// AddressParameters derive an address from the device's own keys.
type AddressParameters struct {
	Type              string   `json:"type"                          validate:"required,address_type"`
	Path              string   `json:"path,omitempty"                validate:"omitempty,path"`
	StakingPath       string   `json:"staking_path,omitempty"        validate:"omitempty,path"`
	StakingKeyHash    HexBytes `json:"staking_key_hash,omitempty"    validate:"omitempty,len=28"`
	Pointer           *Pointer `json:"pointer,omitempty"`
	ScriptPaymentHash HexBytes `json:"script_payment_hash,omitempty" validate:"omitempty,len=28"`
	ScriptStakingHash HexBytes `json:"script_staking_hash,omitempty" validate:"omitempty,len=28"`
}

// Output is paid either to a plain address or to derived parameters.
// Format is "array" or "map"; an output with an inline datum or a
// reference script is always a map.
type Output struct {
	Address         string             `json:"address,omitempty"          validate:"required_without=Parameters,excluded_with=Parameters"`
	Parameters      *AddressParameters `json:"parameters,omitempty"       validate:"required_without=Address"`
	Amount          uint64             `json:"amount"`
	Tokens          []AssetGroup       `json:"tokens,omitempty"           validate:"dive"`
	DatumHash       HexBytes           `json:"datum_hash,omitempty"       validate:"omitempty,len=32,excluded_with=InlineDatum"`
	InlineDatum     HexBytes           `json:"inline_datum,omitempty"`
	ReferenceScript HexBytes           `json:"reference_script,omitempty"`
	Format          string             `json:"format,omitempty"           validate:"omitempty,oneof=array map"`
}

// DRep is a vote delegation target.
type DRep struct {
	Type       string   `json:"type"                  validate:"oneof=key_hash script_hash abstain no_confidence"`
	KeyHash    HexBytes `json:"key_hash,omitempty"    validate:"required_if=Type key_hash,omitempty,len=28"`
	ScriptHash HexBytes `json:"script_hash,omitempty" validate:"required_if=Type script_hash,omitempty,len=28"`
}

// PoolOwner is given by staking path (the device's own key) or key hash.
type PoolOwner struct {
	StakingPath    string   `json:"staking_path,omitempty"     validate:"required_without=StakingKeyHash,omitempty,path"`
	StakingKeyHash HexBytes `json:"staking_key_hash,omitempty" validate:"omitempty,len=28"`
}

// PoolRelay is one relay of a pool registration.
type PoolRelay struct {
	Type     string  `json:"type"               validate:"oneof=single_host_ip single_host_name multiple_host_name"`
	Port     *uint16 `json:"port,omitempty"`
	IPv4     string  `json:"ipv4,omitempty"     validate:"omitempty,ipv4"`
	IPv6     string  `json:"ipv6,omitempty"     validate:"omitempty,ipv6"`
	HostName string  `json:"host_name,omitempty" validate:"omitempty,max=64"`
}

// PoolMetadata points at off-chain pool metadata.
type PoolMetadata struct {
	URL  string   `json:"url"  validate:"required,max=64"`
	Hash HexBytes `json:"hash" validate:"len=32"`
}

// PoolParameters of a pool registration certificate.
type PoolParameters struct {
	PoolID            HexBytes      `json:"pool_id"            validate:"len=28"`
	VRFKeyHash        HexBytes      `json:"vrf_key_hash"       validate:"len=32"`
	Pledge            uint64        `json:"pledge"`
	Cost              uint64        `json:"cost"`
	MarginNumerator   uint64        `json:"margin_numerator"   validate:"ltefield=MarginDenominator"`
	MarginDenominator uint64        `json:"margin_denominator" validate:"gt=0"`
	RewardAccount     string        `json:"reward_account"     validate:"required"`
	Owners            []PoolOwner   `json:"owners"             validate:"dive"`
	Relays            []PoolRelay   `json:"relays"             validate:"dive"`
	Metadata          *PoolMetadata `json:"metadata,omitempty"`
}

// Certificate is one body certificate. Type is the certificate name as
// shown by the device, e.g. "stake_delegation".
type Certificate struct {
	Type           string          `json:"type"                      validate:"required,certificate_type"`
	Path           string          `json:"path,omitempty"            validate:"omitempty,path"`
	KeyHash        HexBytes        `json:"key_hash,omitempty"        validate:"omitempty,len=28"`
	ScriptHash     HexBytes        `json:"script_hash,omitempty"     validate:"omitempty,len=28"`
	Pool           HexBytes        `json:"pool,omitempty"            validate:"omitempty,len=28"`
	Deposit        *uint64         `json:"deposit,omitempty"`
	DRep           *DRep           `json:"drep,omitempty"`
	PoolParameters *PoolParameters `json:"pool_parameters,omitempty"`
}

// Withdrawal withdraws rewards from a stake credential.
type Withdrawal struct {
	Path       string   `json:"path,omitempty"        validate:"omitempty,path"`
	KeyHash    HexBytes `json:"key_hash,omitempty"    validate:"omitempty,len=28"`
	ScriptHash HexBytes `json:"script_hash,omitempty" validate:"omitempty,len=28"`
	Amount     uint64   `json:"amount"`
}

// RequiredSigner is given by key hash or by path.
type RequiredSigner struct {
	KeyHash HexBytes `json:"key_hash,omitempty" validate:"required_without=Path,omitempty,len=28"`
	Path    string   `json:"path,omitempty"     validate:"omitempty,path"`
}

// TxRequest is a complete transaction to sign.
type TxRequest struct {
	SigningMode   string `json:"signing_mode"   validate:"required,signing_mode"`
	ProtocolMagic uint32 `json:"protocol_magic"`
	NetworkID     uint8  `json:"network_id"     validate:"lte=15"`

	Inputs                []Input          `json:"inputs"                            validate:"required,dive"`
	Outputs               []Output         `json:"outputs"                           validate:"dive"`
	Fee                   uint64           `json:"fee"`
	TTL                   *uint64          `json:"ttl,omitempty"`
	Certificates          []Certificate    `json:"certificates,omitempty"            validate:"dive"`
	Withdrawals           []Withdrawal     `json:"withdrawals,omitempty"             validate:"dive"`
	AuxiliaryDataHash     HexBytes         `json:"auxiliary_data_hash,omitempty"     validate:"omitempty,len=32"`
	ValidityIntervalStart *uint64          `json:"validity_interval_start,omitempty"`
	Mint                  []MintGroup      `json:"mint,omitempty"                    validate:"dive"`
	ScriptDataHash        HexBytes         `json:"script_data_hash,omitempty"        validate:"omitempty,len=32"`
	CollateralInputs      []Input          `json:"collateral_inputs,omitempty"       validate:"dive"`
	RequiredSigners       []RequiredSigner `json:"required_signers,omitempty"        validate:"dive"`
	IncludeNetworkID      bool             `json:"include_network_id,omitempty"`
	CollateralReturn      *Output          `json:"collateral_return,omitempty"`
	TotalCollateral       *uint64          `json:"total_collateral,omitempty"`
	ReferenceInputs       []Input          `json:"reference_inputs,omitempty"        validate:"dive"`

	// AdditionalWitnessPaths are signed on top of the paths collected
	// from the body, e.g. for native script witnesses.
	AdditionalWitnessPaths []string `json:"additional_witness_paths,omitempty" validate:"dive,path"`
	TagCborSets            bool     `json:"tag_cbor_sets,omitempty"`
}

// OutputFromURI turns a payment URI into an output. The URI must carry an
// amount.
func OutputFromURI(uri string) (Output, error) {
	p, err := cip13.Parse(uri)
	if err != nil {
		return Output{}, err
	}
	if p.Amount == nil {
		return Output{}, fmt.Errorf("payment uri has no amount")
	}
	return Output{Address: p.Address, Amount: *p.Amount}, nil
}

// ============================================================================
// Validation
// ============================================================================

func newValidator() *validator.Validate {
	validate := validator.New()
	register := func(tag string, parse func(string) error) {
		if err := validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return parse(fl.Field().String()) == nil
		}); err != nil {
			panic(fmt.Sprintf("failed to register %s validation: %v", tag, err))
		}
	}
	register("path", func(s string) error {
		_, err := paths.Parse(s)
		return err
	})
	register("address_type", func(s string) error {
		_, err := addresses.ParseType(s)
		return err
	})
	register("certificate_type", func(s string) error {
		_, err := messages.ParseCertificateType(s)
		return err
	})
	register("signing_mode", func(s string) error {
		_, err := messages.ParseSigningMode(s)
		return err
	})
	return validate
}

var validate = newValidator()

// ParseRequest decodes and validates a JSON transaction request.
func ParseRequest(data []byte) (*TxRequest, error) {
	var req TxRequest
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("hostclient: decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the shape of the request. Whether the transaction is
// acceptable is for the device to decide.
func (r *TxRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("hostclient: invalid request: %w", err)
	}
	return nil
}

// ============================================================================
// Item stream
// ============================================================================

// Session is a request turned into what the device receives: the header,
// the body items in section order and the witness requests.
type Session struct {
	Init            messages.TxInit
	Body            []messages.Item
	WitnessRequests []messages.Item
}

// Items returns the body items followed by the witness requests.
func (s *Session) Items() []messages.Item {
	return append(slices.Clone(s.Body), s.WitnessRequests...)
}

// Build turns the request into a session. Token groups and tokens are put
// into canonical order; withdrawals must already be ordered by reward
// address.
func (r *TxRequest) Build() (*Session, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	mode, err := messages.ParseSigningMode(r.SigningMode)
	if err != nil {
		return nil, err
	}

	b := &builder{}
	for _, in := range r.Inputs {
		b.add(messages.TxInput{PrevHash: in.PrevHash, PrevIndex: in.PrevIndex})
	}
	for _, out := range r.Outputs {
		if err := b.output(&out); err != nil {
			return nil, err
		}
	}
	for _, c := range r.Certificates {
		if err := b.certificate(&c); err != nil {
			return nil, err
		}
	}
	for _, w := range r.Withdrawals {
		b.add(messages.Withdrawal{
			Path:       mustPath(w.Path),
			KeyHash:    w.KeyHash,
			ScriptHash: w.ScriptHash,
			Amount:     w.Amount,
		})
	}
	if r.AuxiliaryDataHash != nil {
		b.add(messages.AuxiliaryData{Hash: r.AuxiliaryDataHash})
	}
	if len(r.Mint) > 0 {
		b.mint(r.Mint)
	}
	for _, in := range r.CollateralInputs {
		b.add(messages.CollateralInput{PrevHash: in.PrevHash, PrevIndex: in.PrevIndex})
	}
	for _, rs := range r.RequiredSigners {
		b.add(messages.RequiredSigner{KeyHash: rs.KeyHash, Path: mustPath(rs.Path)})
	}
	if r.CollateralReturn != nil {
		if err := b.output(r.CollateralReturn); err != nil {
			return nil, err
		}
	}
	for _, in := range r.ReferenceInputs {
		b.add(messages.ReferenceInput{PrevHash: in.PrevHash, PrevIndex: in.PrevIndex})
	}

	witnesses := r.WitnessPaths()
	s := &Session{
		Init: messages.TxInit{
			SigningMode:             mode,
			ProtocolMagic:           r.ProtocolMagic,
			NetworkID:               r.NetworkID,
			InputsCount:             uint32(len(r.Inputs)),
			OutputsCount:            uint32(len(r.Outputs)),
			Fee:                     r.Fee,
			TTL:                     r.TTL,
			CertificatesCount:       uint32(len(r.Certificates)),
			WithdrawalsCount:        uint32(len(r.Withdrawals)),
			HasAuxiliaryData:        r.AuxiliaryDataHash != nil,
			ValidityIntervalStart:   r.ValidityIntervalStart,
			MintingAssetGroupsCount: uint32(len(r.Mint)),
			ScriptDataHash:          r.ScriptDataHash,
			CollateralInputsCount:   uint32(len(r.CollateralInputs)),
			RequiredSignersCount:    uint32(len(r.RequiredSigners)),
			IncludeNetworkID:        r.IncludeNetworkID,
			HasCollateralReturn:     r.CollateralReturn != nil,
			TotalCollateral:         r.TotalCollateral,
			ReferenceInputsCount:    uint32(len(r.ReferenceInputs)),
			WitnessRequestsCount:    uint32(len(witnesses)),
			TagCborSets:             r.TagCborSets,
		},
		Body: b.items,
	}
	for _, p := range witnesses {
		s.WitnessRequests = append(s.WitnessRequests, messages.WitnessRequest{Path: p})
	}
	return s, nil
}

// WitnessPaths collects the keys the transaction needs signatures from:
// input, certificate, withdrawal, collateral and required signer paths plus
// AdditionalWitnessPaths. The result is deduplicated and sorted. The
// request must have passed Validate.
func (r *TxRequest) WitnessPaths() []paths.Path {
	var found []paths.Path
	add := func(s string) {
		if s != "" {
			found = append(found, paths.MustParse(s))
		}
	}
	for _, in := range r.Inputs {
		add(in.Path)
	}
	for _, c := range r.Certificates {
		switch c.Type {
		case "stake_deregistration", "stake_delegation", "stake_deregistration_conway", "vote_delegation":
			add(c.Path)
		case "stake_pool_registration":
			if c.PoolParameters != nil {
				for _, o := range c.PoolParameters.Owners {
					add(o.StakingPath)
				}
			}
		}
	}
	for _, w := range r.Withdrawals {
		add(w.Path)
	}
	for _, in := range r.CollateralInputs {
		add(in.Path)
	}
	for _, rs := range r.RequiredSigners {
		add(rs.Path)
	}
	for _, p := range r.AdditionalWitnessPaths {
		add(p)
	}

	slices.SortFunc(found, func(a, b paths.Path) int { return slices.Compare(a, b) })
	return slices.CompactFunc(found, paths.Path.Equal)
}

// mustPath parses a path the validator already accepted. An empty string
// is no path.
func mustPath(s string) paths.Path {
	if s == "" {
		return nil
	}
	return paths.MustParse(s)
}

type builder struct {
	items []messages.Item
}

func (b *builder) add(it messages.Item) { b.items = append(b.items, it) }

func (b *builder) output(o *Output) error {
	out := messages.TxOutput{
		Amount:              o.Amount,
		AssetGroupsCount:    uint32(len(o.Tokens)),
		DatumHash:           o.DatumHash,
		InlineDatumSize:     uint32(len(o.InlineDatum)),
		ReferenceScriptSize: uint32(len(o.ReferenceScript)),
	}
	if o.Format == "map" || len(o.InlineDatum) > 0 || len(o.ReferenceScript) > 0 {
		out.Format = messages.FormatMapBabbage
	}
	if o.Parameters != nil {
		params, err := o.Parameters.parameters()
		if err != nil {
			return err
		}
		out.Destination = params
	} else {
		out.Destination = messages.PlainAddress(o.Address)
	}
	b.add(out)

	for _, g := range sortedGroups(o.Tokens) {
		b.add(messages.AssetGroup{PolicyID: g.PolicyID, TokensCount: uint32(len(g.Tokens))})
		tokens := slices.Clone(g.Tokens)
		slices.SortFunc(tokens, func(a, b Token) int { return canonicalCompare(a.AssetName, b.AssetName) })
		for _, t := range tokens {
			b.add(messages.Token{AssetName: t.AssetName, Amount: t.Amount})
		}
	}
	for _, chunk := range chunks(o.InlineDatum) {
		b.add(messages.InlineDatumChunk{Data: chunk})
	}
	for _, chunk := range chunks(o.ReferenceScript) {
		b.add(messages.ReferenceScriptChunk{Data: chunk})
	}
	return nil
}

func (b *builder) mint(groups []MintGroup) {
	b.add(messages.Mint{AssetGroupsCount: uint32(len(groups))})
	groups = slices.Clone(groups)
	slices.SortFunc(groups, func(a, b MintGroup) int { return canonicalCompare(a.PolicyID, b.PolicyID) })
	for _, g := range groups {
		b.add(messages.AssetGroup{PolicyID: g.PolicyID, TokensCount: uint32(len(g.Tokens))})
		tokens := slices.Clone(g.Tokens)
		slices.SortFunc(tokens, func(a, b MintToken) int { return canonicalCompare(a.AssetName, b.AssetName) })
		for _, t := range tokens {
			b.add(messages.MintToken{AssetName: t.AssetName, Amount: t.Amount})
		}
	}
}

func (b *builder) certificate(c *Certificate) error {
	typ, err := messages.ParseCertificateType(c.Type)
	if err != nil {
		return err
	}
	cert := messages.Certificate{
		Type:       typ,
		Path:       mustPath(c.Path),
		KeyHash:    c.KeyHash,
		ScriptHash: c.ScriptHash,
		Pool:       c.Pool,
		Deposit:    c.Deposit,
	}
	if c.DRep != nil {
		cert.DRep = c.DRep.drep()
	}
	if typ != messages.CertStakePoolRegistration {
		b.add(cert)
		return nil
	}

	p := c.PoolParameters
	if p == nil {
		return fmt.Errorf("hostclient: pool registration without pool parameters")
	}
	cert.PoolParameters = &messages.PoolParameters{
		PoolID:            p.PoolID,
		VRFKeyHash:        p.VRFKeyHash,
		Pledge:            p.Pledge,
		Cost:              p.Cost,
		MarginNumerator:   p.MarginNumerator,
		MarginDenominator: p.MarginDenominator,
		RewardAccount:     p.RewardAccount,
		OwnersCount:       uint32(len(p.Owners)),
		RelaysCount:       uint32(len(p.Relays)),
	}
	if p.Metadata != nil {
		cert.PoolParameters.Metadata = &messages.PoolMetadata{URL: p.Metadata.URL, Hash: p.Metadata.Hash}
	}
	b.add(cert)
	for _, o := range p.Owners {
		b.add(messages.PoolOwner{StakingKeyPath: mustPath(o.StakingPath), StakingKeyHash: o.StakingKeyHash})
	}
	for _, r := range p.Relays {
		relay, err := r.relay()
		if err != nil {
			return err
		}
		b.add(relay)
	}
	return nil
}

func (p *AddressParameters) parameters() (*messages.AddressParameters, error) {
	typ, err := addresses.ParseType(p.Type)
	if err != nil {
		return nil, err
	}
	params := &messages.AddressParameters{
		Type:              typ,
		Path:              mustPath(p.Path),
		StakingPath:       mustPath(p.StakingPath),
		StakingKeyHash:    p.StakingKeyHash,
		ScriptPaymentHash: p.ScriptPaymentHash,
		ScriptStakingHash: p.ScriptStakingHash,
	}
	if p.Pointer != nil {
		params.Pointer = &addresses.CertificatePointer{
			BlockIndex:       p.Pointer.BlockIndex,
			TxIndex:          p.Pointer.TxIndex,
			CertificateIndex: p.Pointer.CertificateIndex,
		}
	}
	return params, nil
}

var drepTypes = map[string]messages.DRepType{
	"key_hash":      messages.DRepKeyHash,
	"script_hash":   messages.DRepScriptHash,
	"abstain":       messages.DRepAlwaysAbstain,
	"no_confidence": messages.DRepAlwaysNoConfidence,
}

func (d *DRep) drep() *messages.DRep {
	return &messages.DRep{Type: drepTypes[d.Type], KeyHash: d.KeyHash, ScriptHash: d.ScriptHash}
}

var relayTypes = map[string]messages.RelayType{
	"single_host_ip":     messages.RelaySingleHostIP,
	"single_host_name":   messages.RelaySingleHostName,
	"multiple_host_name": messages.RelayMultipleHostName,
}

func (r *PoolRelay) relay() (messages.PoolRelay, error) {
	relay := messages.PoolRelay{Type: relayTypes[r.Type], Port: r.Port, HostName: r.HostName}
	if r.IPv4 != "" {
		ip := net.ParseIP(r.IPv4).To4()
		if ip == nil {
			return relay, fmt.Errorf("hostclient: invalid relay ipv4 %q", r.IPv4)
		}
		relay.IPv4Address = ip
	}
	if r.IPv6 != "" {
		ip := net.ParseIP(r.IPv6).To16()
		if ip == nil {
			return relay, fmt.Errorf("hostclient: invalid relay ipv6 %q", r.IPv6)
		}
		relay.IPv6Address = ip
	}
	return relay, nil
}

// canonicalCompare orders byte strings the way canonical CBOR orders map
// keys holding them.
func canonicalCompare(a, b []byte) int {
	switch {
	case bytes.Equal(a, b):
		return 0
	case cbor.Precedes(a, b):
		return -1
	default:
		return 1
	}
}

func sortedGroups(groups []AssetGroup) []AssetGroup {
	groups = slices.Clone(groups)
	slices.SortFunc(groups, func(a, b AssetGroup) int { return canonicalCompare(a.PolicyID, b.PolicyID) })
	return groups
}

// chunks splits data into ChunkSize pieces, the last one possibly shorter.
func chunks(data []byte) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		n := min(len(data), cbor.ChunkSize)
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}
