package signer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

func TestPolicyInitMatrix(t *testing.T) {
	total := uint64(5_000_000)
	sections := map[string]func(in *messages.TxInit){
		"script data hash":  func(in *messages.TxInit) { in.ScriptDataHash = bytes.Repeat([]byte{1}, 32) },
		"collateral inputs": func(in *messages.TxInit) { in.CollateralInputsCount = 1 },
		"collateral return": func(in *messages.TxInit) { in.HasCollateralReturn = true },
		"total collateral":  func(in *messages.TxInit) { in.TotalCollateral = &total },
		"reference inputs":  func(in *messages.TxInit) { in.ReferenceInputsCount = 1 },
		"required signers":  func(in *messages.TxInit) { in.RequiredSignersCount = 1 },
		"withdrawals":       func(in *messages.TxInit) { in.WithdrawalsCount = 1 },
		"mint":              func(in *messages.TxInit) { in.MintingAssetGroupsCount = 1 },
		"two certificates":  func(in *messages.TxInit) { in.CertificatesCount = 2 },
	}
	// sections each mode refuses; anything not listed is accepted
	refused := map[messages.SigningMode][]string{
		messages.ModeOrdinary: {"script data hash", "collateral inputs", "collateral return", "total collateral", "reference inputs"},
		messages.ModeMultisig: {"script data hash", "collateral inputs", "collateral return", "total collateral", "reference inputs"},
		messages.ModePlutus:   nil,
		messages.ModePoolRegistrationAsOwner: {
			"script data hash", "collateral inputs", "collateral return", "total collateral",
			"reference inputs", "required signers", "withdrawals", "mint", "two certificates",
		},
	}

	for mode, refuses := range refused {
		p, err := policyFor(mode)
		require.NoError(t, err)
		assert.Equal(t, mode, p.mode())

		for name, apply := range sections {
			t.Run(mode.String()+"/"+name, func(t *testing.T) {
				in := mainnetInit(mode)
				if mode == messages.ModePoolRegistrationAsOwner {
					in.CertificatesCount = 1
				}
				apply(&in)
				err := p.validateInit(&in)
				if contains(refuses, name) {
					var pr *PolicyRejection
					require.ErrorAs(t, err, &pr)
					assert.Equal(t, ErrInvalidRequest, pr.Code)
					return
				}
				assert.NoError(t, err)
			})
		}
	}

	_, err := policyFor(messages.SigningMode(9))
	assert.True(t, IsPolicyRejection(err))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestPolicyCertificatesAndWithdrawals(t *testing.T) {
	keyHash := bytes.Repeat([]byte{0x05}, 28)
	pool := &messages.Certificate{Type: messages.CertStakePoolRegistration}
	byKey := &messages.Certificate{Type: messages.CertStakeRegistration, KeyHash: keyHash}
	byScript := &messages.Certificate{Type: messages.CertStakeRegistration, ScriptHash: keyHash}

	assert.Error(t, ordinaryPolicy{}.validateCertificate(pool))
	assert.NoError(t, ordinaryPolicy{}.validateCertificate(byKey))
	assert.Error(t, plutusPolicy{}.validateCertificate(pool))
	assert.NoError(t, poolOwnerPolicy{}.validateCertificate(pool))
	assert.Error(t, poolOwnerPolicy{}.validateCertificate(byKey))
	assert.Error(t, multisigPolicy{}.validateCertificate(byKey))
	assert.NoError(t, multisigPolicy{}.validateCertificate(byScript))

	assert.Error(t, multisigPolicy{}.validateWithdrawal(&messages.Withdrawal{KeyHash: keyHash}))
	assert.NoError(t, multisigPolicy{}.validateWithdrawal(&messages.Withdrawal{ScriptHash: keyHash}))
}

func TestPolicyOutputs(t *testing.T) {
	change := &messages.TxOutput{Destination: &messages.AddressParameters{}}
	plain := &messages.TxOutput{Destination: messages.PlainAddress(plainAddress)}
	withDatum := &messages.TxOutput{Destination: messages.PlainAddress(plainAddress), DatumHash: make([]byte, 32)}

	assert.Error(t, multisigPolicy{}.validateOutput(change))
	assert.NoError(t, multisigPolicy{}.validateOutput(plain))
	assert.Error(t, poolOwnerPolicy{}.validateOutput(change))
	assert.Error(t, poolOwnerPolicy{}.validateOutput(withDatum))
	assert.NoError(t, poolOwnerPolicy{}.validateOutput(plain))

	assert.True(t, ordinaryPolicy{}.isChangeOutput(change))
	assert.False(t, plutusPolicy{}.isChangeOutput(change))
	assert.False(t, poolOwnerPolicy{}.shouldShowOutput(nil, plain))
	assert.True(t, plutusPolicy{}.shouldShowOutput(nil, change))
}
