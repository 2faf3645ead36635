package signer

import (
	"context"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/cbor"
	"github.com/suffix-labs/cardano-signtx/pkg/hashbuilder"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

// Babbage output map keys and datum option tags.
const (
	outputKeyAddress         = 0
	outputKeyAmount          = 1
	outputKeyDatumOption     = 2
	outputKeyReferenceScript = 3

	datumOptionHash   = 0
	datumOptionInline = 1
)

// outputSink is the collection an output is written into: an element of
// the outputs list, or the collateral return body entry.
type outputSink func(format messages.OutputFormat, size uint64) (list hashbuilder.List, dict hashbuilder.Dict, err error)

func (s *Signer) processOutputs(ctx context.Context) error {
	outputs, err := s.body.AddList(bodyKeyOutputs, uint64(s.init.OutputsCount), "outputs")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	sink := func(format messages.OutputFormat, size uint64) (hashbuilder.List, hashbuilder.Dict, error) {
		if format == messages.FormatMapBabbage {
			d, err := outputs.AppendDict(size, "output")
			return hashbuilder.List{}, d, err
		}
		l, err := outputs.AppendList(size, "output")
		return l, hashbuilder.Dict{}, err
	}

	for range s.init.OutputsCount {
		out, err := receive[messages.TxOutput](ctx, s)
		if err != nil {
			return err
		}
		if err := s.processOutput(ctx, &out, sink); err != nil {
			return err
		}
		if out.Amount > LovelaceMaxSupply-s.outputTotal {
			return rejectWith(ErrOutOfRange, "Total transaction amount is out of range!", nil)
		}
		s.outputTotal += out.Amount
	}
	return s.hbErr(outputs.Close(), "Invalid output")
}

func (s *Signer) processOutput(ctx context.Context, out *messages.TxOutput, sink outputSink) error {
	if err := s.validateOutput(out); err != nil {
		return err
	}
	show := s.policy.shouldShowOutput(s, out)
	if show {
		if err := s.showOutputInit(ctx, out); err != nil {
			return err
		}
	}

	size := uint64(2)
	if out.DatumHash != nil {
		size++
	}
	if out.InlineDatumSize > 0 {
		size++
	}
	if out.ReferenceScriptSize > 0 {
		size++
	}
	return s.writeOutput(ctx, out, sink, size, show, "Invalid output")
}

func (s *Signer) writeOutput(ctx context.Context, out *messages.TxOutput, sink outputSink, size uint64, show bool, message string) error {
	list, dict, err := sink(out.Format, size)
	if err != nil {
		return s.hbErr(err, message)
	}
	if out.Format == messages.FormatMapBabbage {
		if err := s.processBabbageOutput(ctx, dict, out, show); err != nil {
			return err
		}
		return s.hbErr(dict.Close(), message)
	}
	if err := s.processLegacyOutput(ctx, list, out, show); err != nil {
		return err
	}
	return s.hbErr(list.Close(), message)
}

func (s *Signer) validateOutput(out *messages.TxOutput) error {
	switch dst := out.Destination.(type) {
	case *messages.AddressParameters:
		if dst == nil {
			return reject("Invalid output")
		}
		if err := addresses.ValidateOutputParameters(addresses.Parameters(*dst)); err != nil {
			return rejectWith(ErrInvalidItem, "Invalid output", err)
		}
		if err := s.failIfStrictAndUnusual(dst); err != nil {
			return err
		}
	case messages.PlainAddress:
		if _, err := addresses.ValidateOutput(string(dst), s.init.ProtocolMagic, s.init.NetworkID); err != nil {
			return rejectWith(ErrInvalidItem, "Invalid output", err)
		}
	default:
		return reject("Invalid output")
	}

	if out.DatumHash != nil && len(out.DatumHash) != datumHashSize {
		return reject("Invalid output datum hash")
	}
	if out.InlineDatumSize > 0 && out.Format != messages.FormatMapBabbage {
		return reject("Invalid output")
	}
	if out.DatumHash != nil && out.InlineDatumSize > 0 {
		return reject("Invalid output")
	}
	if out.ReferenceScriptSize > 0 && out.Format != messages.FormatMapBabbage {
		return reject("Invalid output")
	}
	if err := s.policy.validateOutput(out); err != nil {
		return err
	}
	return s.accounts.AddOutput(out)
}

// failIfStrictAndUnusual refuses change outside the usual path schemas
// under strict safety checks. With prompting the credentials screen warns.
func (s *Signer) failIfStrictAndUnusual(params *messages.AddressParameters) error {
	if s.safety != ui.SafetyStrict {
		return nil
	}
	if paymentCredential(params).unusualPath {
		return rejectWith(ErrUnusualPath, "Invalid change output path", nil)
	}
	if stakeCredential(params).unusualPath {
		return rejectWith(ErrUnusualPath, "Invalid change output staking path", nil)
	}
	return nil
}

// defaultShouldShowOutput hides change that goes back to the wallet's own
// base address unless it carries Plutus data the user asked to see.
func (s *Signer) defaultShouldShowOutput(out *messages.TxOutput) bool {
	if s.isScriptOutputWithoutDatum(out) {
		// unspendable, always warn
		return true
	}
	if s.isSimpleChangeOutput(out) {
		hasPlutusData := out.DatumHash != nil || out.InlineDatumSize > 0 || out.ReferenceScriptSize > 0
		return s.showDetails && hasPlutusData
	}
	return true
}

func (s *Signer) isScriptOutputWithoutDatum(out *messages.TxOutput) bool {
	if out.DatumHash != nil || out.InlineDatumSize > 0 {
		return false
	}
	return s.outputAddressType(out).HasPaymentScript()
}

// isSimpleChangeOutput reports whether out is change with the ordinary
// credentials of the wallet.
func (s *Signer) isSimpleChangeOutput(out *messages.TxOutput) bool {
	params, ok := out.Destination.(*messages.AddressParameters)
	return ok && !shouldShowCredentials(params)
}

func (s *Signer) outputAddressType(out *messages.TxOutput) addresses.Type {
	switch dst := out.Destination.(type) {
	case *messages.AddressParameters:
		return dst.Type
	case messages.PlainAddress:
		raw, err := addresses.Decode(string(dst))
		if err != nil {
			return addresses.TypeOf(nil)
		}
		return addresses.TypeOf(raw)
	}
	return addresses.TypeOf(nil)
}

func (s *Signer) outputAddress(out *messages.TxOutput) ([]byte, error) {
	switch dst := out.Destination.(type) {
	case *messages.AddressParameters:
		raw, err := addresses.Derive(s.kc, addresses.Parameters(*dst), s.init.ProtocolMagic, s.init.NetworkID)
		if err != nil {
			return nil, rejectWith(ErrKeychain, "Invalid output", err)
		}
		return raw, nil
	case messages.PlainAddress:
		raw, err := addresses.Decode(string(dst))
		if err != nil {
			return nil, rejectWith(ErrInvalidItem, "Invalid output", err)
		}
		return raw, nil
	}
	return nil, reject("Invalid output")
}

func (s *Signer) showOutputInit(ctx context.Context, out *messages.TxOutput) error {
	if s.isScriptOutputWithoutDatum(out) {
		if _, err := s.confirm(ctx, warningScreen("The output is sent to a script address without a datum and will be unspendable.")); err != nil {
			return err
		}
	}
	if out.AssetGroupsCount > 0 {
		if _, err := s.confirm(ctx, warningScreen("The following output contains tokens.")); err != nil {
			return err
		}
	}
	return s.confirmSending(ctx, out, s.sendingLabel(out))
}

func (s *Signer) sendingLabel(out *messages.TxOutput) string {
	if s.policy.isChangeOutput(out) {
		return "change"
	}
	return "address"
}

// confirmSending shows the destination and amount of an output, with the
// credentials of change addresses.
func (s *Signer) confirmSending(ctx context.Context, out *messages.TxOutput, label string) error {
	var (
		shown string
		creds []credential
	)
	switch dst := out.Destination.(type) {
	case *messages.AddressParameters:
		raw, err := s.outputAddress(out)
		if err != nil {
			return err
		}
		if shown, err = addresses.Encode(raw); err != nil {
			return rejectWith(ErrInvalidItem, "Invalid output", err)
		}
		creds = []credential{paymentCredential(dst), stakeCredential(dst)}
	case messages.PlainAddress:
		shown = string(dst)
	}
	_, err := s.confirm(ctx, outputScreen(label, shown, out.Amount, creds))
	return err
}

func (s *Signer) processLegacyOutput(ctx context.Context, list hashbuilder.List, out *messages.TxOutput, show bool) error {
	address, err := s.outputAddress(out)
	if err != nil {
		return err
	}
	if err := list.Append(address); err != nil {
		return s.hbErr(err, "Invalid output")
	}

	if out.AssetGroupsCount == 0 {
		if err := list.Append(out.Amount); err != nil {
			return s.hbErr(err, "Invalid output")
		}
	} else {
		value, err := list.AppendList(2, "output value")
		if err != nil {
			return s.hbErr(err, "Invalid output")
		}
		if err := s.processOutputValue(ctx, value, out, show); err != nil {
			return err
		}
	}

	if out.DatumHash != nil {
		if show {
			if err := s.showIfDetails(ctx, datumHashScreen(out.DatumHash)); err != nil {
				return err
			}
		}
		if err := list.Append(out.DatumHash); err != nil {
			return s.hbErr(err, "Invalid output")
		}
	}
	return nil
}

// processBabbageOutput writes the post-Alonzo map form, which is also used
// for outputs without any Plutus element.
func (s *Signer) processBabbageOutput(ctx context.Context, dict hashbuilder.Dict, out *messages.TxOutput, show bool) error {
	address, err := s.outputAddress(out)
	if err != nil {
		return err
	}
	if err := dict.Add(outputKeyAddress, address); err != nil {
		return s.hbErr(err, "Invalid output")
	}

	if out.AssetGroupsCount == 0 {
		if err := dict.Add(outputKeyAmount, out.Amount); err != nil {
			return s.hbErr(err, "Invalid output")
		}
	} else {
		value, err := dict.AddList(outputKeyAmount, 2, "output value")
		if err != nil {
			return s.hbErr(err, "Invalid output")
		}
		if err := s.processOutputValue(ctx, value, out, show); err != nil {
			return err
		}
	}

	switch {
	case out.DatumHash != nil:
		if show {
			if err := s.showIfDetails(ctx, datumHashScreen(out.DatumHash)); err != nil {
				return err
			}
		}
		if err := dict.Add(outputKeyDatumOption, []any{uint64(datumOptionHash), out.DatumHash}); err != nil {
			return s.hbErr(err, "Invalid output")
		}
	case out.InlineDatumSize > 0:
		option, err := dict.AddList(outputKeyDatumOption, 2, "datum option")
		if err != nil {
			return s.hbErr(err, "Invalid output")
		}
		if err := option.Append(uint64(datumOptionInline)); err != nil {
			return s.hbErr(err, "Invalid output")
		}
		datum, err := option.AppendEmbedded(uint64(out.InlineDatumSize), "inline datum")
		if err != nil {
			return s.hbErr(err, "Invalid output")
		}
		if err := s.processChunks(ctx, datum, out.InlineDatumSize, show, inlineDatumChunks); err != nil {
			return err
		}
		if err := option.Close(); err != nil {
			return s.hbErr(err, "Invalid output")
		}
	}

	if out.ReferenceScriptSize > 0 {
		script, err := dict.AddEmbedded(outputKeyReferenceScript, uint64(out.ReferenceScriptSize), "reference script")
		if err != nil {
			return s.hbErr(err, "Invalid output")
		}
		if err := s.processChunks(ctx, script, out.ReferenceScriptSize, show, referenceScriptChunks); err != nil {
			return err
		}
	}
	return nil
}

// processOutputValue writes [coin, {policy: {name: amount}}]. Only used
// when the output carries tokens.
func (s *Signer) processOutputValue(ctx context.Context, value hashbuilder.List, out *messages.TxOutput, showTokens bool) error {
	if err := value.Append(out.Amount); err != nil {
		return s.hbErr(err, "Invalid output")
	}
	groups, err := value.AppendDict(uint64(out.AssetGroupsCount), "asset groups")
	if err != nil {
		return s.hbErr(err, "Invalid token bundle in output")
	}
	for range out.AssetGroupsCount {
		group, err := receive[messages.AssetGroup](ctx, s)
		if err != nil {
			return err
		}
		if err := validateAssetGroup(&group, "Invalid token bundle in output"); err != nil {
			return err
		}
		tokens, err := groups.AddDict(group.PolicyID, uint64(group.TokensCount), "tokens")
		if err != nil {
			return s.hbErr(err, "Invalid token bundle in output")
		}
		for range group.TokensCount {
			token, err := receive[messages.Token](ctx, s)
			if err != nil {
				return err
			}
			if len(token.AssetName) > maxAssetNameSize {
				return reject("Invalid token bundle in output")
			}
			if showTokens {
				if _, err := s.confirm(ctx, tokenScreen(group.PolicyID, &token)); err != nil {
					return err
				}
			}
			if err := tokens.Add(token.AssetName, token.Amount); err != nil {
				return s.hbErr(err, "Invalid token bundle in output")
			}
		}
		if err := tokens.Close(); err != nil {
			return s.hbErr(err, "Invalid token bundle in output")
		}
	}
	if err := groups.Close(); err != nil {
		return s.hbErr(err, "Invalid token bundle in output")
	}
	return s.hbErr(value.Close(), "Invalid output")
}

func validateAssetGroup(group *messages.AssetGroup, message string) error {
	if len(group.PolicyID) != policyIDSize || group.TokensCount == 0 {
		return reject(message)
	}
	return nil
}

// chunkKind distinguishes the two chunked payloads of an output.
type chunkKind struct {
	message string
	receive func(ctx context.Context, s *Signer) ([]byte, error)
	screen  func(first []byte, size uint32) ui.Screen
}

var inlineDatumChunks = chunkKind{
	message: "Invalid inline datum chunk",
	receive: func(ctx context.Context, s *Signer) ([]byte, error) {
		c, err := receive[messages.InlineDatumChunk](ctx, s)
		return c.Data, err
	},
	screen: inlineDatumScreen,
}

var referenceScriptChunks = chunkKind{
	message: "Invalid reference script chunk",
	receive: func(ctx context.Context, s *Signer) ([]byte, error) {
		c, err := receive[messages.ReferenceScriptChunk](ctx, s)
		return c.Data, err
	},
	screen: referenceScriptScreen,
}

// chunksCount is the number of chunks a payload of size bytes arrives in.
func chunksCount(size uint32) uint32 {
	return (size-1)/cbor.ChunkSize + 1
}

// validateChunk requires every chunk but the last to be full and the last
// not to exceed the chunk size.
func validateChunk(data []byte, n, count uint32) bool {
	if n < count-1 {
		return len(data) == cbor.ChunkSize
	}
	return len(data) <= cbor.ChunkSize
}

func (s *Signer) processChunks(ctx context.Context, dst hashbuilder.Embedded, size uint32, show bool, kind chunkKind) error {
	count := chunksCount(size)
	for n := range count {
		data, err := kind.receive(ctx, s)
		if err != nil {
			return err
		}
		if !validateChunk(data, n, count) {
			return reject(kind.message)
		}
		if n == 0 && show {
			if err := s.showIfDetails(ctx, kind.screen(data, size)); err != nil {
				return err
			}
		}
		if err := dst.Write(data); err != nil {
			return s.hbErr(err, kind.message)
		}
	}
	return s.hbErr(dst.Close(), kind.message)
}

// collateral return

func (s *Signer) processCollateralReturn(ctx context.Context) error {
	out, err := receive[messages.TxOutput](ctx, s)
	if err != nil {
		return err
	}
	if err := s.validateCollateralReturn(&out); err != nil {
		return err
	}

	simpleChange := s.isSimpleChangeOutput(&out)
	if s.init.TotalCollateral == nil || !simpleChange {
		if out.AssetGroupsCount > 0 {
			if _, err := s.confirm(ctx, warningScreen("The collateral return output contains tokens.")); err != nil {
				return err
			}
		}
		if err := s.confirmSending(ctx, &out, "collateral-return"); err != nil {
			return err
		}
	}
	showTokens := !simpleChange && s.showDetails

	sink := func(format messages.OutputFormat, size uint64) (hashbuilder.List, hashbuilder.Dict, error) {
		if format == messages.FormatMapBabbage {
			d, err := s.body.AddDict(bodyKeyCollateralReturn, size, "collateral return")
			return hashbuilder.List{}, d, err
		}
		l, err := s.body.AddList(bodyKeyCollateralReturn, size, "collateral return")
		return l, hashbuilder.Dict{}, err
	}
	// datums and reference scripts are refused above
	return s.writeOutput(ctx, &out, sink, 2, showTokens, "Invalid collateral return")
}

func (s *Signer) validateCollateralReturn(out *messages.TxOutput) error {
	if err := s.validateOutput(out); err != nil {
		return err
	}
	if !s.outputAddressType(out).HasPaymentKey() {
		return reject("Invalid collateral return")
	}
	if out.DatumHash != nil || out.InlineDatumSize > 0 || out.ReferenceScriptSize > 0 {
		return reject("Invalid collateral return")
	}
	return nil
}
