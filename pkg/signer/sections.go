package signer

import (
	"context"
	"strings"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/hashbuilder"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

// addSet opens a set-like body section, tagged with 258 when the host asked
// for tagged sets.
func (s *Signer) addSet(key any, size uint32, label string) (hashbuilder.List, error) {
	if s.init.TagCborSets {
		return s.body.AddSet(key, uint64(size), label)
	}
	return s.body.AddList(key, uint64(size), label)
}

func (s *Signer) appendSet(l hashbuilder.List, size uint32, label string) (hashbuilder.List, error) {
	if s.init.TagCborSets {
		return l.AppendSet(uint64(size), label)
	}
	return l.AppendList(uint64(size), label)
}

// inputs

func (s *Signer) processInputs(ctx context.Context) error {
	list, err := s.addSet(bodyKeyInputs, s.init.InputsCount, "inputs")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	for range s.init.InputsCount {
		in, err := receive[messages.TxInput](ctx, s)
		if err != nil {
			return err
		}
		if len(in.PrevHash) != txHashSize {
			return reject("Invalid input")
		}
		if err := s.policy.showInput(ctx, s, &in); err != nil {
			return err
		}
		if err := list.Append([]any{in.PrevHash, in.PrevIndex}); err != nil {
			return s.hbErr(err, "Invalid input")
		}
	}
	return s.hbErr(list.Close(), "Invalid input")
}

// collateral inputs

func (s *Signer) processCollateralInputs(ctx context.Context) error {
	list, err := s.addSet(bodyKeyCollateralInputs, s.init.CollateralInputsCount, "collateral inputs")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	for range s.init.CollateralInputsCount {
		in, err := receive[messages.CollateralInput](ctx, s)
		if err != nil {
			return err
		}
		if len(in.PrevHash) != txHashSize {
			return reject("Invalid collateral input")
		}
		// With a known total collateral the inputs do not matter to the user.
		if s.init.TotalCollateral == nil {
			if err := s.showIfDetails(ctx, collateralInputScreen(&in)); err != nil {
				return err
			}
		}
		if err := list.Append([]any{in.PrevHash, in.PrevIndex}); err != nil {
			return s.hbErr(err, "Invalid collateral input")
		}
	}
	return s.hbErr(list.Close(), "Invalid collateral input")
}

// reference inputs

func (s *Signer) processReferenceInputs(ctx context.Context) error {
	list, err := s.addSet(bodyKeyReferenceInputs, s.init.ReferenceInputsCount, "reference inputs")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	for range s.init.ReferenceInputsCount {
		in, err := receive[messages.ReferenceInput](ctx, s)
		if err != nil {
			return err
		}
		if len(in.PrevHash) != txHashSize {
			return reject("Invalid reference input")
		}
		if err := s.showIfDetails(ctx, referenceInputScreen(&in)); err != nil {
			return err
		}
		if err := list.Append([]any{in.PrevHash, in.PrevIndex}); err != nil {
			return s.hbErr(err, "Invalid reference input")
		}
	}
	return s.hbErr(list.Close(), "Invalid reference input")
}

// withdrawals

func (s *Signer) processWithdrawals(ctx context.Context) error {
	dict, err := s.body.AddDict(bodyKeyWithdrawals, uint64(s.init.WithdrawalsCount), "withdrawals")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	for range s.init.WithdrawalsCount {
		w, err := receive[messages.Withdrawal](ctx, s)
		if err != nil {
			return err
		}
		if err := s.validateWithdrawal(&w); err != nil {
			return err
		}
		address, err := s.withdrawalAddress(&w)
		if err != nil {
			return err
		}
		if err := s.showIfDetails(ctx, withdrawalScreen(&w, address)); err != nil {
			return err
		}
		if err := dict.Add(address, w.Amount); err != nil {
			return s.hbErr(err, "Invalid withdrawal")
		}
	}
	return s.hbErr(dict.Close(), "Invalid withdrawal")
}

func (s *Signer) validateWithdrawal(w *messages.Withdrawal) error {
	if err := validateStakeCredential(w.Path, w.ScriptHash, w.KeyHash, "Invalid withdrawal"); err != nil {
		return err
	}
	if w.Amount >= LovelaceMaxSupply {
		return reject("Invalid withdrawal")
	}
	if err := s.policy.validateWithdrawal(w); err != nil {
		return err
	}
	return s.accounts.AddWithdrawal(w)
}

func (s *Signer) withdrawalAddress(w *messages.Withdrawal) ([]byte, error) {
	switch {
	case len(w.Path) > 0:
		kh, err := s.keyHash(w.Path)
		if err != nil {
			return nil, err
		}
		return addresses.RewardAddress(kh, false, s.init.NetworkID), nil
	case len(w.KeyHash) > 0:
		return addresses.RewardAddress(w.KeyHash, false, s.init.NetworkID), nil
	default:
		return addresses.RewardAddress(w.ScriptHash, true, s.init.NetworkID), nil
	}
}

// auxiliary data

func (s *Signer) processAuxiliaryData(ctx context.Context) error {
	aux, err := receive[messages.AuxiliaryData](ctx, s)
	if err != nil {
		return err
	}
	if len(aux.Hash) != auxiliaryDataHashSize {
		return reject("Invalid auxiliary data")
	}
	if err := s.showIfDetails(ctx, auxiliaryDataScreen(aux.Hash)); err != nil {
		return err
	}
	if err := s.body.Add(bodyKeyAuxiliaryData, aux.Hash); err != nil {
		return s.hbErr(err, "Invalid auxiliary data")
	}
	// Only hashes are accepted, so there is never anything to supplement.
	return s.expectHostAck(ctx, messages.AuxiliaryDataSupplement{Type: messages.SupplementNone})
}

// script data hash

func (s *Signer) processScriptDataHash(ctx context.Context) error {
	if len(s.init.ScriptDataHash) != scriptDataHashSize {
		return reject("Invalid script data hash")
	}
	if err := s.showIfDetails(ctx, scriptDataHashScreen(s.init.ScriptDataHash)); err != nil {
		return err
	}
	return s.hbErr(s.body.Add(bodyKeyScriptDataHash, s.init.ScriptDataHash), "Invalid script data hash")
}

// required signers

func (s *Signer) processRequiredSigners(ctx context.Context) error {
	list, err := s.addSet(bodyKeyRequiredSigners, s.init.RequiredSignersCount, "required signers")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	for range s.init.RequiredSignersCount {
		rs, err := receive[messages.RequiredSigner](ctx, s)
		if err != nil {
			return err
		}
		if err := validateRequiredSigner(&rs); err != nil {
			return err
		}
		if err := s.showIfDetails(ctx, requiredSignerScreen(&rs)); err != nil {
			return err
		}
		kh := rs.KeyHash
		if len(kh) == 0 {
			if kh, err = s.keyHash(rs.Path); err != nil {
				return err
			}
		}
		if err := list.Append(kh); err != nil {
			return s.hbErr(err, "Invalid required signer")
		}
	}
	return s.hbErr(list.Close(), "Invalid required signer")
}

func validateRequiredSigner(rs *messages.RequiredSigner) error {
	switch {
	case len(rs.KeyHash) > 0 && len(rs.Path) > 0:
		return reject("Invalid required signer")
	case len(rs.KeyHash) > 0:
		if len(rs.KeyHash) != addresses.KeyHashSize {
			return reject("Invalid required signer")
		}
	case len(rs.Path) > 0:
		if !rs.Path.IsShelley() && !rs.Path.IsMultisig() && !rs.Path.IsMinting() {
			return reject("Invalid required signer")
		}
	default:
		return reject("Invalid required signer")
	}
	return nil
}

// helpers shared by sections

func (s *Signer) keyHash(path paths.Path) ([]byte, error) {
	kh, err := addresses.PublicKeyHash(s.kc, path)
	if err != nil {
		return nil, rejectWith(ErrKeychain, "Cannot derive key", err)
	}
	return kh, nil
}

// validateNetworkInfo requires mainnet protocol magic and mainnet network
// id to go together.
func validateNetworkInfo(networkID uint8, protocolMagic uint32) error {
	if addresses.IsMainnetNetworkID(networkID) != addresses.IsMainnetProtocolMagic(protocolMagic) {
		return rejectWith(ErrInvalidRequest, "Invalid network id/protocol magic combination!", nil)
	}
	return nil
}

// validateStakeCredential requires exactly one of path, script hash and key
// hash, each well-formed.
func validateStakeCredential(path paths.Path, scriptHash, keyHash []byte, message string) error {
	set := 0
	for _, present := range []bool{len(path) > 0, len(scriptHash) > 0, len(keyHash) > 0} {
		if present {
			set++
		}
	}
	switch {
	case set != 1:
		return reject(message)
	case len(path) > 0 && !path.IsStakingAnyAccount():
		return reject(message)
	case len(scriptHash) > 0 && len(scriptHash) != addresses.ScriptHashSize:
		return reject(message)
	case len(keyHash) > 0 && len(keyHash) != addresses.KeyHashSize:
		return reject(message)
	}
	return nil
}

func lower(s string) string { return strings.ToLower(s) }
