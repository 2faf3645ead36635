package signer

import (
	"fmt"
	"net"
	"strconv"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

func field(label, value string) ui.Field { return ui.Field{Label: label, Value: value} }

func networkName(networkID uint8) string {
	if addresses.IsMainnetNetworkID(networkID) {
		return "Mainnet"
	}
	return "Testnet"
}

func txInitScreen(title string, in *messages.TxInit) ui.Screen {
	return ui.Screen{
		Kind:  ui.KindTxDetails,
		Title: title,
		Fields: []ui.Field{
			field("Signing mode:", in.SigningMode.String()),
			field("Choose level of details:", "default or all"),
		},
	}
}

func warningScreen(text string) ui.Screen {
	return ui.Screen{Kind: ui.KindWarning, Fields: []ui.Field{field("", text)}}
}

func pathWarningScreen(name string, path paths.Path) ui.Screen {
	return ui.Screen{
		Kind:   ui.KindPathWarning,
		Title:  "Unknown path",
		Fields: []ui.Field{field(name+":", path.String())},
	}
}

func inputFields(hash []byte, index uint32) []ui.Field {
	return []ui.Field{
		field("Transaction ID:", ui.FormatHex(hash)),
		field("Index:", strconv.FormatUint(uint64(index), 10)),
	}
}

func inputScreen(in *messages.TxInput) ui.Screen {
	return ui.Screen{Kind: ui.KindInput, Fields: inputFields(in.PrevHash, in.PrevIndex)}
}

func collateralInputScreen(in *messages.CollateralInput) ui.Screen {
	return ui.Screen{Kind: ui.KindCollateralInput, Fields: inputFields(in.PrevHash, in.PrevIndex)}
}

func referenceInputScreen(in *messages.ReferenceInput) ui.Screen {
	return ui.Screen{Kind: ui.KindReferenceInput, Fields: inputFields(in.PrevHash, in.PrevIndex)}
}

func outputScreen(label, address string, amount uint64, creds []credential) ui.Screen {
	kind := ui.KindOutput
	verb := "Send"
	switch label {
	case "change":
		verb = "Change"
	case "collateral-return":
		kind = ui.KindCollateralReturn
		verb = "Collateral return"
	}
	fs := []ui.Field{
		field(verb+" to:", address),
		field("Amount:", ui.FormatCoin(amount)),
	}
	for _, c := range creds {
		fs = append(fs, c.fields()...)
	}
	return ui.Screen{Kind: kind, Fields: fs}
}

func datumHashScreen(hash []byte) ui.Screen {
	return ui.Screen{Kind: ui.KindDatumHash, Fields: []ui.Field{field("Datum hash:", ui.FormatHex(hash))}}
}

func tokenScreen(policyID []byte, t *messages.Token) ui.Screen {
	return ui.Screen{
		Kind: ui.KindToken,
		Fields: []ui.Field{
			field("Asset fingerprint:", ui.AssetFingerprint(policyID, t.AssetName)),
			field("Token amount:", strconv.FormatUint(t.Amount, 10)),
		},
	}
}

func mintTokenScreen(policyID []byte, t *messages.MintToken) ui.Screen {
	label := "Amount minted:"
	amount := uint64(t.Amount)
	if t.Amount < 0 {
		label = "Amount burned:"
		amount = uint64(-(t.Amount + 1)) + 1
	}
	return ui.Screen{
		Kind: ui.KindMintToken,
		Fields: []ui.Field{
			field("Asset fingerprint:", ui.AssetFingerprint(policyID, t.AssetName)),
			field(label, strconv.FormatUint(amount, 10)),
		},
	}
}

func chunkPreview(first []byte, size uint32) []ui.Field {
	preview := first
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return []ui.Field{
		field("Size:", fmt.Sprintf("%d bytes", size)),
		field("Starts with:", ui.FormatHex(preview)),
	}
}

func inlineDatumScreen(first []byte, size uint32) ui.Screen {
	return ui.Screen{Kind: ui.KindInlineDatum, Fields: chunkPreview(first, size)}
}

func referenceScriptScreen(first []byte, size uint32) ui.Screen {
	return ui.Screen{Kind: ui.KindReferenceScript, Fields: chunkPreview(first, size)}
}

func certificateScreen(c *messages.Certificate) ui.Screen {
	fs := []ui.Field{field("Type:", c.Type.String())}
	switch {
	case len(c.Path) > 0:
		fs = append(fs, field("Stake key path:", c.Path.String()))
	case len(c.KeyHash) > 0:
		fs = append(fs, field("Stake key hash:", ui.FormatHex(c.KeyHash)))
	case len(c.ScriptHash) > 0:
		fs = append(fs, field("Stake script hash:", ui.FormatHex(c.ScriptHash)))
	}
	if len(c.Pool) > 0 {
		fs = append(fs, field("Pool:", ui.FormatHex(c.Pool)))
	}
	if c.Deposit != nil {
		fs = append(fs, field("Deposit:", ui.FormatCoin(*c.Deposit)))
	}
	if c.DRep != nil {
		fs = append(fs, drepField(c.DRep))
	}
	return ui.Screen{Kind: ui.KindCertificate, Fields: fs}
}

func drepField(d *messages.DRep) ui.Field {
	switch d.Type {
	case messages.DRepKeyHash:
		return field("Delegating to key hash:", ui.FormatHex(d.KeyHash))
	case messages.DRepScriptHash:
		return field("Delegating to script:", ui.FormatHex(d.ScriptHash))
	case messages.DRepAlwaysAbstain:
		return field("Delegating to:", "Always Abstain")
	default:
		return field("Delegating to:", "Always No Confidence")
	}
}

func poolParametersScreen(p *messages.PoolParameters, networkID uint8) ui.Screen {
	margin := float64(p.MarginNumerator) / float64(p.MarginDenominator) * 100
	return ui.Screen{
		Kind: ui.KindPoolParameters,
		Fields: []ui.Field{
			field("Pool ID:", ui.FormatHex(p.PoolID)),
			field("VRF key hash:", ui.FormatHex(p.VRFKeyHash)),
			field("Pledge:", ui.FormatCoin(p.Pledge)),
			field("Cost:", ui.FormatCoin(p.Cost)),
			field("Margin:", strconv.FormatFloat(margin, 'f', -1, 64)+"%"),
			field("Reward account:", p.RewardAccount),
			field("Network:", networkName(networkID)),
		},
	}
}

func poolMetadataScreen(m *messages.PoolMetadata) ui.Screen {
	if m == nil {
		return ui.Screen{
			Kind:   ui.KindPoolMetadata,
			Fields: []ui.Field{field("", "Pool has no metadata (anonymous pool)")},
		}
	}
	return ui.Screen{
		Kind: ui.KindPoolMetadata,
		Fields: []ui.Field{
			field("Metadata URL:", m.URL),
			field("Metadata hash:", ui.FormatHex(m.Hash)),
		},
	}
}

func poolOwnerScreen(o *messages.PoolOwner, rewardAddress string) ui.Screen {
	fs := []ui.Field{field("Owner reward address:", rewardAddress)}
	if len(o.StakingKeyPath) > 0 {
		fs = append(fs, field("Staking path:", o.StakingKeyPath.String()))
	}
	return ui.Screen{Kind: ui.KindPoolOwner, Fields: fs}
}

func poolRelayScreen(r *messages.PoolRelay) ui.Screen {
	var fs []ui.Field
	if r.Port != nil {
		fs = append(fs, field("Port:", strconv.FormatUint(uint64(*r.Port), 10)))
	}
	if r.IPv4Address != nil {
		fs = append(fs, field("IPv4:", net.IP(r.IPv4Address).String()))
	}
	if r.IPv6Address != nil {
		fs = append(fs, field("IPv6:", net.IP(r.IPv6Address).String()))
	}
	if r.HostName != "" {
		fs = append(fs, field("DNS name:", r.HostName))
	}
	return ui.Screen{Kind: ui.KindPoolRelay, Fields: fs}
}

func withdrawalScreen(w *messages.Withdrawal, rewardAddress []byte) ui.Screen {
	shown, err := addresses.Encode(rewardAddress)
	if err != nil {
		shown = ui.FormatHex(rewardAddress)
	}
	fs := []ui.Field{field("Reward address:", shown)}
	if len(w.Path) > 0 {
		fs = append(fs, field("Path:", w.Path.String()))
	}
	fs = append(fs, field("Amount:", ui.FormatCoin(w.Amount)))
	return ui.Screen{Kind: ui.KindWithdrawal, Fields: fs}
}

func auxiliaryDataScreen(hash []byte) ui.Screen {
	return ui.Screen{Kind: ui.KindAuxiliaryData, Fields: []ui.Field{field("Auxiliary data hash:", ui.FormatHex(hash))}}
}

func scriptDataHashScreen(hash []byte) ui.Screen {
	return ui.Screen{Kind: ui.KindScriptDataHash, Fields: []ui.Field{field("Script data hash:", ui.FormatHex(hash))}}
}

func requiredSignerScreen(rs *messages.RequiredSigner) ui.Screen {
	f := field("Required signer key hash:", ui.FormatHex(rs.KeyHash))
	if len(rs.Path) > 0 {
		f = field("Required signer path:", rs.Path.String())
	}
	return ui.Screen{Kind: ui.KindRequiredSigner, Fields: []ui.Field{f}}
}

func witnessScreen(path paths.Path) ui.Screen {
	return ui.Screen{Kind: ui.KindWitnessPath, Fields: []ui.Field{field("Sign transaction with:", path.String())}}
}

func optionalSlot(v *uint64) string { return ui.FormatOptional(v) }

func confirmTxScreen(in *messages.TxInit, networkVerifiable bool, txHash []byte) ui.Screen {
	fs := []ui.Field{field("Transaction fee:", ui.FormatCoin(in.Fee))}
	if in.TotalCollateral != nil {
		fs = append(fs, field("Total collateral:", ui.FormatCoin(*in.TotalCollateral)))
	}
	if networkVerifiable {
		fs = append(fs, field("Network:", networkName(in.NetworkID)))
	}
	fs = append(fs,
		field("Valid since:", optionalSlot(in.ValidityIntervalStart)),
		field("TTL:", optionalSlot(in.TTL)),
	)
	if txHash != nil {
		fs = append(fs, field("Transaction ID:", ui.FormatHex(txHash)))
	}
	return ui.Screen{Kind: ui.KindConfirmTx, Title: "Sign transaction?", Fields: fs, Hold: true}
}

func confirmPoolRegistrationScreen(in *messages.TxInit) ui.Screen {
	return ui.Screen{
		Kind:  ui.KindConfirmPoolRegistration,
		Title: "Confirm signing the stake pool registration as an owner.",
		Fields: []ui.Field{
			field("Network:", networkName(in.NetworkID)),
			field("Valid since:", optionalSlot(in.ValidityIntervalStart)),
			field("TTL:", optionalSlot(in.TTL)),
		},
		Hold: true,
	}
}
