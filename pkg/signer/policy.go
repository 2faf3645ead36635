package signer

import (
	"context"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

// policy holds every decision that depends on the signing mode. The set of
// policies is closed: one per messages.SigningMode.
type policy interface {
	mode() messages.SigningMode
	title() string

	validateInit(in *messages.TxInit) error
	networkVerifiable(s *Signer) bool
	showTxInit(ctx context.Context, s *Signer) error
	showInput(ctx context.Context, s *Signer, in *messages.TxInput) error

	validateOutput(out *messages.TxOutput) error
	shouldShowOutput(s *Signer, out *messages.TxOutput) bool
	isChangeOutput(out *messages.TxOutput) bool

	validateCertificate(c *messages.Certificate) error
	validateWithdrawal(w *messages.Withdrawal) error

	validateWitnessRequest(s *Signer, path paths.Path) error
	showWitnessRequest(ctx context.Context, s *Signer, path paths.Path) error

	confirmTx(ctx context.Context, s *Signer, txHash []byte) error
}

func policyFor(mode messages.SigningMode) (policy, error) {
	switch mode {
	case messages.ModeOrdinary:
		return ordinaryPolicy{}, nil
	case messages.ModePoolRegistrationAsOwner:
		return poolOwnerPolicy{}, nil
	case messages.ModeMultisig:
		return multisigPolicy{}, nil
	case messages.ModePlutus:
		return plutusPolicy{}, nil
	}
	return nil, errInvalidRequest()
}

func checkInit(conds ...bool) error {
	for _, c := range conds {
		if !c {
			return errInvalidRequest()
		}
	}
	return nil
}

// basePolicy is the behaviour shared by all modes.
type basePolicy struct{}

func (basePolicy) validateInit(*messages.TxInit) error { return nil }

func (basePolicy) networkVerifiable(s *Signer) bool { return s.isNetworkIDVerifiable() }

func (basePolicy) showTxInit(context.Context, *Signer) error { return nil }

func (basePolicy) showInput(context.Context, *Signer, *messages.TxInput) error { return nil }

func (basePolicy) validateOutput(*messages.TxOutput) error { return nil }

func (basePolicy) shouldShowOutput(s *Signer, out *messages.TxOutput) bool {
	return s.defaultShouldShowOutput(out)
}

func (basePolicy) isChangeOutput(out *messages.TxOutput) bool {
	_, ok := out.Destination.(*messages.AddressParameters)
	return ok
}

func (basePolicy) validateCertificate(*messages.Certificate) error { return nil }

func (basePolicy) validateWithdrawal(*messages.Withdrawal) error { return nil }

func (basePolicy) validateWitnessRequest(*Signer, paths.Path) error { return nil }

func (basePolicy) showWitnessRequest(ctx context.Context, s *Signer, path paths.Path) error {
	_, err := s.confirm(ctx, witnessScreen(path))
	return err
}

func (basePolicy) confirmTx(ctx context.Context, s *Signer, _ []byte) error {
	_, err := s.confirm(ctx, confirmTxScreen(&s.init, s.policy.networkVerifiable(s), nil))
	return err
}

// noPlutusSections refuses the sections only script transactions need.
func noPlutusSections(in *messages.TxInit) error {
	return checkInit(
		in.ScriptDataHash == nil,
		in.CollateralInputsCount == 0,
		!in.HasCollateralReturn,
		in.TotalCollateral == nil,
		in.ReferenceInputsCount == 0,
	)
}

func notPoolRegistration(c *messages.Certificate) error {
	if c.Type == messages.CertStakePoolRegistration {
		return rejectWith(ErrForbidden, "Invalid certificate", nil)
	}
	return nil
}

func mintsTokens(s *Signer) bool { return s.init.MintingAssetGroupsCount > 0 }

func forbiddenWitness() error {
	return rejectWith(ErrForbidden, "Invalid witness request", nil)
}

// ordinaryPolicy signs plain payment transactions of a single wallet.
type ordinaryPolicy struct{ basePolicy }

func (ordinaryPolicy) mode() messages.SigningMode { return messages.ModeOrdinary }

func (ordinaryPolicy) title() string { return "Confirming a normal transaction." }

func (ordinaryPolicy) validateInit(in *messages.TxInit) error { return noPlutusSections(in) }

func (ordinaryPolicy) validateCertificate(c *messages.Certificate) error {
	return notPoolRegistration(c)
}

func (ordinaryPolicy) validateWitnessRequest(s *Signer, path paths.Path) error {
	if path.IsByron() || path.IsShelley() || (path.IsMinting() && mintsTokens(s)) {
		return nil
	}
	return forbiddenWitness()
}

// showWitnessRequest shows minting witnesses always, unusual paths under
// the safety check setting and ordinary payment or staking keys only with
// details.
func (ordinaryPolicy) showWitnessRequest(ctx context.Context, s *Signer, path paths.Path) error {
	switch {
	case path.IsMintKey():
		_, err := s.confirm(ctx, witnessScreen(path))
		return err
	case !path.IsPayment() && !path.IsStaking():
		return s.failOrWarnPath(ctx, path, "Witness path")
	default:
		return s.showIfDetails(ctx, witnessScreen(path))
	}
}

// multisigPolicy signs for script credentials only: none of the wallet's
// own payment or staking keys may appear in the body.
type multisigPolicy struct{ basePolicy }

func (multisigPolicy) mode() messages.SigningMode { return messages.ModeMultisig }

func (multisigPolicy) title() string { return "Confirming a multisig transaction." }

func (multisigPolicy) validateInit(in *messages.TxInit) error { return noPlutusSections(in) }

func (multisigPolicy) validateOutput(out *messages.TxOutput) error {
	if _, ok := out.Destination.(*messages.AddressParameters); ok {
		return rejectWith(ErrForbidden, "Invalid output", nil)
	}
	return nil
}

func (multisigPolicy) validateCertificate(c *messages.Certificate) error {
	if err := notPoolRegistration(c); err != nil {
		return err
	}
	if len(c.Path) > 0 || len(c.KeyHash) > 0 {
		return rejectWith(ErrForbidden, "Invalid certificate", nil)
	}
	return nil
}

func (multisigPolicy) validateWithdrawal(w *messages.Withdrawal) error {
	if len(w.Path) > 0 || len(w.KeyHash) > 0 {
		return rejectWith(ErrForbidden, "Invalid withdrawal", nil)
	}
	return nil
}

func (multisigPolicy) validateWitnessRequest(s *Signer, path paths.Path) error {
	if path.IsMultisig() || (path.IsMinting() && mintsTokens(s)) {
		return nil
	}
	return forbiddenWitness()
}

// plutusPolicy signs transactions that execute scripts. Script evaluation
// may depend on any part of the body, so outputs and inputs are never
// hidden.
type plutusPolicy struct{ basePolicy }

func (plutusPolicy) mode() messages.SigningMode { return messages.ModePlutus }

func (plutusPolicy) title() string { return "Confirming a Plutus transaction." }

func (plutusPolicy) showTxInit(ctx context.Context, s *Signer) error {
	var warnings []string
	if s.init.ScriptDataHash == nil {
		warnings = append(warnings, "The transaction contains no script data hash. Plutus script will not be able to run.")
	}
	if s.init.CollateralInputsCount == 0 {
		warnings = append(warnings, "The transaction contains no collateral inputs. Plutus script will not be able to run.")
	}
	if s.init.TotalCollateral == nil {
		warnings = append(warnings, "Unknown total collateral amount.")
	}
	for _, w := range warnings {
		if _, err := s.confirm(ctx, warningScreen(w)); err != nil {
			return err
		}
	}
	return nil
}

func (plutusPolicy) showInput(ctx context.Context, s *Signer, in *messages.TxInput) error {
	return s.showIfDetails(ctx, inputScreen(in))
}

func (plutusPolicy) shouldShowOutput(*Signer, *messages.TxOutput) bool { return true }

// isChangeOutput is false: outputs may be subject to script evaluation, so
// none is presented as change.
func (plutusPolicy) isChangeOutput(*messages.TxOutput) bool { return false }

func (plutusPolicy) validateCertificate(c *messages.Certificate) error {
	return notPoolRegistration(c)
}

func (plutusPolicy) validateWitnessRequest(s *Signer, path paths.Path) error {
	if path.IsByron() || path.IsShelley() || path.IsMultisig() || (path.IsMinting() && mintsTokens(s)) {
		return nil
	}
	return forbiddenWitness()
}

// confirmTx also shows the body hash so it can be compared with a hash
// computed elsewhere.
func (plutusPolicy) confirmTx(ctx context.Context, s *Signer, txHash []byte) error {
	_, err := s.confirm(ctx, confirmTxScreen(&s.init, s.isNetworkIDVerifiable(), txHash))
	return err
}

// poolOwnerPolicy signs a stake pool registration certificate as one of
// the owners. Nothing else of value may be in the transaction.
type poolOwnerPolicy struct{ basePolicy }

func (poolOwnerPolicy) mode() messages.SigningMode { return messages.ModePoolRegistrationAsOwner }

func (poolOwnerPolicy) title() string { return "Confirming pool registration as owner." }

func (poolOwnerPolicy) validateInit(in *messages.TxInit) error {
	return checkInit(
		in.CertificatesCount == 1,
		in.WithdrawalsCount == 0,
		in.MintingAssetGroupsCount == 0,
		in.ScriptDataHash == nil,
		in.CollateralInputsCount == 0,
		in.RequiredSignersCount == 0,
		!in.HasCollateralReturn,
		in.TotalCollateral == nil,
		in.ReferenceInputsCount == 0,
	)
}

// networkVerifiable is true: the reward account of the pool carries the
// network id.
func (poolOwnerPolicy) networkVerifiable(*Signer) bool { return true }

func (poolOwnerPolicy) validateOutput(out *messages.TxOutput) error {
	if _, ok := out.Destination.(*messages.AddressParameters); ok {
		return rejectWith(ErrForbidden, "Invalid output", nil)
	}
	if out.DatumHash != nil || out.InlineDatumSize > 0 || out.ReferenceScriptSize > 0 {
		return rejectWith(ErrForbidden, "Invalid output", nil)
	}
	return nil
}

// shouldShowOutput is false: the owner signs no spending witness, so the
// outputs cannot move the owner's funds.
func (poolOwnerPolicy) shouldShowOutput(*Signer, *messages.TxOutput) bool { return false }

func (poolOwnerPolicy) validateCertificate(c *messages.Certificate) error {
	if c.Type != messages.CertStakePoolRegistration {
		return rejectWith(ErrForbidden, "Invalid certificate", nil)
	}
	return nil
}

func (poolOwnerPolicy) validateWitnessRequest(s *Signer, path paths.Path) error {
	if path.IsShelley() && path.Equal(s.poolOwnerPath) {
		return nil
	}
	return forbiddenWitness()
}

func (poolOwnerPolicy) confirmTx(ctx context.Context, s *Signer, _ []byte) error {
	_, err := s.confirm(ctx, confirmPoolRegistrationScreen(&s.init))
	return err
}

var (
	_ policy = ordinaryPolicy{}
	_ policy = multisigPolicy{}
	_ policy = plutusPolicy{}
	_ policy = poolOwnerPolicy{}
)
