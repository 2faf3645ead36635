// Package signer is the streaming transaction signer.
//
// A session starts with a TxInit announcing how many items every section of
// the transaction body holds. The signer then pulls the items one by one
// over a Link, validates each against the signing mode, shows what the user
// needs to see and feeds the canonical CBOR encoding of the item straight
// into a BLAKE2b-256 hash. The body itself is never held in memory.
//
// Once the body is complete and the user confirmed it, the host asks for
// witnesses. Every witness request is checked against the same policy that
// guarded the body, so a host cannot obtain a signature for a key the user
// was not shown.
package signer

import (
	"context"
	"errors"
	"fmt"
	"hash"

	"github.com/decred/slog"
	"github.com/google/uuid"
	blake2b "github.com/minio/blake2b-simd"

	"github.com/suffix-labs/cardano-signtx/pkg/hashbuilder"
	"github.com/suffix-labs/cardano-signtx/pkg/keychain"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

// LovelaceMaxSupply bounds every amount the signer accepts.
const LovelaceMaxSupply uint64 = 45_000_000_000_000_000

// Transaction body map keys.
const (
	bodyKeyInputs                = 0
	bodyKeyOutputs               = 1
	bodyKeyFee                   = 2
	bodyKeyTTL                   = 3
	bodyKeyCertificates          = 4
	bodyKeyWithdrawals           = 5
	bodyKeyAuxiliaryData         = 7
	bodyKeyValidityIntervalStart = 8
	bodyKeyMint                  = 9
	bodyKeyScriptDataHash        = 11
	bodyKeyCollateralInputs      = 13
	bodyKeyRequiredSigners       = 14
	bodyKeyNetworkID             = 15
	bodyKeyCollateralReturn      = 16
	bodyKeyTotalCollateral       = 17
	bodyKeyReferenceInputs       = 18
)

// Sizes of fixed-length hashes carried by items.
const (
	txHashSize             = 32
	datumHashSize          = 32
	auxiliaryDataHashSize  = 32
	scriptDataHashSize     = 32
	policyIDSize           = 28
	maxAssetNameSize       = 32
	poolIDSize             = 28
	vrfKeyHashSize         = 32
	poolMetadataHashSize   = 32
	maxPoolMetadataURLSize = 64
	maxDNSNameSize         = 64
)

// Link carries responses to the host and items back. Call sends resp and
// blocks until the host answers with the next item. Finish sends the final
// response of a session, which the host does not answer.
type Link interface {
	Call(ctx context.Context, resp messages.Response) (messages.Item, error)
	Finish(ctx context.Context, resp messages.Response) error
}

// Config holds the collaborators of a signer.
type Config struct {
	Keychain     keychain.Keychain
	UI           ui.UI
	SafetyChecks ui.SafetyChecks
	Logger       slog.Logger
}

// Result summarizes a finished session.
type Result struct {
	SessionID uuid.UUID
	TxHash    []byte
	Witnesses []messages.WitnessResponse
}

// Signer runs a single signing session.
type Signer struct {
	link   Link
	kc     keychain.Keychain
	ui     ui.UI
	safety ui.SafetyChecks
	log    slog.Logger
	id     uuid.UUID

	init    messages.TxInit
	policy  policy
	hasher  hash.Hash
	builder *hashbuilder.Builder
	body    hashbuilder.Dict

	accounts      AccountPathChecker
	showDetails   bool
	outputTotal   uint64
	poolOwnerPath paths.Path
	phase         Phase
	used          bool

	// pending is sent with the next Call. It is ItemAck for every body
	// item and carries the previous witness during the witness loop.
	pending messages.Response
}

// New creates a signer for one session over link.
func New(cfg Config, link Link) (*Signer, error) {
	if link == nil {
		return nil, errors.New("signer: nil link")
	}
	if cfg.Keychain == nil {
		return nil, errors.New("signer: nil keychain")
	}
	if cfg.UI == nil {
		return nil, errors.New("signer: nil ui")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Disabled
	}
	return &Signer{
		link:   link,
		kc:     cfg.Keychain,
		ui:     cfg.UI,
		safety: cfg.SafetyChecks,
		log:    log,
		id:     uuid.New(),
	}, nil
}

// SessionID identifies the session in logs.
func (s *Signer) SessionID() uuid.UUID { return s.id }

// Phase returns the section the signer is in, or the one it failed in.
func (s *Signer) Phase() Phase { return s.phase }

// Sign runs the session announced by init to completion. The returned
// error is a *ProtocolViolation, a *PolicyRejection, ui.ErrRejected or a
// link error.
func (s *Signer) Sign(ctx context.Context, init messages.TxInit) (*Result, error) {
	if s.used {
		return nil, errors.New("signer: session already used")
	}
	s.used = true

	s.log.Infof("Session %s: signing %s transaction", s.id, init.SigningMode)
	res, err := s.sign(ctx, init)
	if err != nil {
		s.log.Warnf("Session %s: aborted in %s: %v", s.id, s.phase, err)
		return nil, err
	}
	s.log.Infof("Session %s: signed tx %x with %d witnesses", s.id, res.TxHash, len(res.Witnesses))
	return res, nil
}

func (s *Signer) sign(ctx context.Context, init messages.TxInit) (*Result, error) {
	s.enter(PhaseInit)
	p, err := policyFor(init.SigningMode)
	if err != nil {
		return nil, err
	}
	s.log.Debugf("Session %s: %s policy", s.id, p.mode())
	s.init = init
	s.policy = p
	s.pending = messages.ItemAck{}

	if err := s.validateTxInit(); err != nil {
		return nil, err
	}
	if err := s.showTxInit(ctx); err != nil {
		return nil, err
	}

	s.hasher = blake2b.New256()
	s.builder = hashbuilder.New(s.hasher)
	s.body, err = s.builder.OpenDict(s.bodySize(), "tx body")
	if err != nil {
		return nil, s.hbErr(err, "Invalid tx signing request")
	}

	if err := s.processBody(ctx); err != nil {
		return nil, err
	}
	if err := s.body.Close(); err != nil {
		return nil, s.hbErr(err, "Invalid tx signing request")
	}
	txHash := s.hasher.Sum(nil)

	s.enter(PhaseConfirm)
	if err := s.policy.confirmTx(ctx, s, txHash); err != nil {
		return nil, err
	}

	witnesses, err := s.processWitnessRequests(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if err := s.finish(ctx, txHash); err != nil {
		return nil, err
	}
	return &Result{SessionID: s.id, TxHash: txHash, Witnesses: witnesses}, nil
}

// bodySize is the number of entries in the body map: inputs, outputs and
// fee are always there.
func (s *Signer) bodySize() uint64 {
	in := &s.init
	n := uint64(3)
	for _, present := range []bool{
		in.TTL != nil,
		in.CertificatesCount > 0,
		in.WithdrawalsCount > 0,
		in.HasAuxiliaryData,
		in.ValidityIntervalStart != nil,
		in.MintingAssetGroupsCount > 0,
		in.ScriptDataHash != nil,
		in.CollateralInputsCount > 0,
		in.RequiredSignersCount > 0,
		in.IncludeNetworkID,
		in.HasCollateralReturn,
		in.TotalCollateral != nil,
		in.ReferenceInputsCount > 0,
	} {
		if present {
			n++
		}
	}
	return n
}

// processBody streams every section in body key order.
func (s *Signer) processBody(ctx context.Context) error {
	in := &s.init

	s.enter(PhaseInputs)
	if err := s.processInputs(ctx); err != nil {
		return err
	}

	s.enter(PhaseOutputs)
	if err := s.processOutputs(ctx); err != nil {
		return err
	}

	s.enter(PhaseFee)
	if err := s.body.Add(bodyKeyFee, in.Fee); err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}

	if in.TTL != nil {
		s.enter(PhaseTTL)
		if err := s.body.Add(bodyKeyTTL, *in.TTL); err != nil {
			return s.hbErr(err, "Invalid tx signing request")
		}
	}

	if in.CertificatesCount > 0 {
		s.enter(PhaseCertificates)
		if err := s.processCertificates(ctx); err != nil {
			return err
		}
	}

	if in.WithdrawalsCount > 0 {
		s.enter(PhaseWithdrawals)
		if err := s.processWithdrawals(ctx); err != nil {
			return err
		}
	}

	if in.HasAuxiliaryData {
		s.enter(PhaseAuxiliaryData)
		if err := s.processAuxiliaryData(ctx); err != nil {
			return err
		}
	}

	if in.ValidityIntervalStart != nil {
		s.enter(PhaseValidityIntervalStart)
		if err := s.body.Add(bodyKeyValidityIntervalStart, *in.ValidityIntervalStart); err != nil {
			return s.hbErr(err, "Invalid tx signing request")
		}
	}

	if in.MintingAssetGroupsCount > 0 {
		s.enter(PhaseMint)
		if err := s.processMint(ctx); err != nil {
			return err
		}
	}

	if in.ScriptDataHash != nil {
		s.enter(PhaseScriptDataHash)
		if err := s.processScriptDataHash(ctx); err != nil {
			return err
		}
	}

	if in.CollateralInputsCount > 0 {
		s.enter(PhaseCollateralInputs)
		if err := s.processCollateralInputs(ctx); err != nil {
			return err
		}
	}

	if in.RequiredSignersCount > 0 {
		s.enter(PhaseRequiredSigners)
		if err := s.processRequiredSigners(ctx); err != nil {
			return err
		}
	}

	if in.IncludeNetworkID {
		s.enter(PhaseNetworkID)
		if err := s.body.Add(bodyKeyNetworkID, in.NetworkID); err != nil {
			return s.hbErr(err, "Invalid tx signing request")
		}
	}

	if in.HasCollateralReturn {
		s.enter(PhaseCollateralReturn)
		if err := s.processCollateralReturn(ctx); err != nil {
			return err
		}
	}

	if in.TotalCollateral != nil {
		s.enter(PhaseTotalCollateral)
		if err := s.body.Add(bodyKeyTotalCollateral, *in.TotalCollateral); err != nil {
			return s.hbErr(err, "Invalid tx signing request")
		}
	}

	if in.ReferenceInputsCount > 0 {
		s.enter(PhaseReferenceInputs)
		if err := s.processReferenceInputs(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Signer) enter(p Phase) {
	s.phase = p
	s.log.Debugf("Session %s: %s", s.id, p)
}

// receive pulls the next item and checks it has the expected type.
func receive[T messages.Item](ctx context.Context, s *Signer) (T, error) {
	var want T
	item, err := s.call(ctx, s.pending)
	if err != nil {
		return want, err
	}
	s.pending = messages.ItemAck{}

	got, ok := item.(T)
	if !ok {
		return want, violation(ErrUnexpectedItem,
			fmt.Sprintf("expected %s in %s, got %s", want.Kind(), s.phase, kindOf(item)), nil)
	}
	return got, nil
}

func (s *Signer) call(ctx context.Context, resp messages.Response) (messages.Item, error) {
	item, err := s.link.Call(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("signer: %s: %w", s.phase, err)
	}
	return item, nil
}

// expectHostAck sends resp and requires the host to answer with HostAck.
func (s *Signer) expectHostAck(ctx context.Context, resp messages.Response) error {
	s.pending = resp
	_, err := receive[messages.HostAck](ctx, s)
	return err
}

func kindOf(item messages.Item) messages.Kind {
	if item == nil {
		return "nothing"
	}
	return item.Kind()
}

// hbErr turns a hash builder failure into a protocol violation. message is
// what the device reports for the collection that failed.
func (s *Signer) hbErr(err error, message string) error {
	var hbe *hashbuilder.Error
	if errors.As(err, &hbe) {
		return violation(ErrHashBuilder, message, err)
	}
	return err
}

// validateTxInit applies the checks shared by every mode, then the mode
// specific ones.
func (s *Signer) validateTxInit() error {
	in := &s.init
	if in.Fee > LovelaceMaxSupply {
		return rejectWith(ErrOutOfRange, "Fee is out of range!", nil)
	}
	if in.TotalCollateral != nil && *in.TotalCollateral > LovelaceMaxSupply {
		return rejectWith(ErrOutOfRange, "Total collateral is out of range!", nil)
	}
	if err := validateNetworkInfo(in.NetworkID, in.ProtocolMagic); err != nil {
		return err
	}
	return s.policy.validateInit(in)
}

// isNetworkIDVerifiable reports whether anything in the body binds the
// transaction to a network the user can check.
func (s *Signer) isNetworkIDVerifiable() bool {
	return s.init.IncludeNetworkID || s.init.OutputsCount != 0 || s.init.WithdrawalsCount != 0
}

func (s *Signer) showTxInit(ctx context.Context) error {
	reply, err := s.confirm(ctx, txInitScreen(s.policy.title(), &s.init))
	if err != nil {
		return err
	}
	s.showDetails = reply == ui.ReplyDetails

	if !s.policy.networkVerifiable(s) {
		if _, err := s.confirm(ctx, warningScreen("Transaction has no outputs, network cannot be verified.")); err != nil {
			return err
		}
	}
	return s.policy.showTxInit(ctx, s)
}

func (s *Signer) confirm(ctx context.Context, screen ui.Screen) (ui.Reply, error) {
	return ui.Confirm(ctx, s.ui, screen)
}

func (s *Signer) showIfDetails(ctx context.Context, screen ui.Screen) error {
	if !s.showDetails {
		return nil
	}
	_, err := s.confirm(ctx, screen)
	return err
}

// failOrWarnPath rejects a path outside its expected schema under strict
// safety checks and shows a warning otherwise.
func (s *Signer) failOrWarnPath(ctx context.Context, path paths.Path, name string) error {
	if s.safety == ui.SafetyStrict {
		return rejectWith(ErrUnusualPath, "Invalid "+lower(name), nil)
	}
	_, err := s.confirm(ctx, pathWarningScreen(name, path))
	return err
}

func (s *Signer) failOrWarnIfInvalidPath(ctx context.Context, valid bool, path paths.Path, name string) error {
	if valid {
		return nil
	}
	return s.failOrWarnPath(ctx, path, name)
}

// finish runs the protocol tail: the last response is acknowledged, the
// body hash is reported and acknowledged, and the session ends.
func (s *Signer) finish(ctx context.Context, txHash []byte) error {
	s.enter(PhaseFinished)
	if err := s.expectHostAck(ctx, s.pending); err != nil {
		return err
	}
	if err := s.expectHostAck(ctx, messages.BodyHash{TxHash: txHash}); err != nil {
		return err
	}
	if err := s.link.Finish(ctx, messages.SignTxFinished{}); err != nil {
		return fmt.Errorf("signer: finish: %w", err)
	}
	return nil
}
