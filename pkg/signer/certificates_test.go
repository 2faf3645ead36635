package signer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

func poolParameters() *messages.PoolParameters {
	return &messages.PoolParameters{
		PoolID:            bytes.Repeat([]byte{0x01}, 28),
		VRFKeyHash:        bytes.Repeat([]byte{0x02}, 32),
		Pledge:            1000,
		Cost:              340_000_000,
		MarginNumerator:   1,
		MarginDenominator: 10,
		RewardAccount:     rewardAccount,
		OwnersCount:       1,
		Metadata:          &messages.PoolMetadata{URL: "https://example.com/p.json", Hash: bytes.Repeat([]byte{0x03}, 32)},
	}
}

func TestValidateCertificate(t *testing.T) {
	staking := paths.MustParse(stakingPath)
	keyHash := bytes.Repeat([]byte{0x05}, 28)
	deposit := uint64(2_000_000)

	tests := []struct {
		name    string
		cert    messages.Certificate
		wantErr bool
	}{
		{"registration by path", messages.Certificate{Type: messages.CertStakeRegistration, Path: staking}, false},
		{"registration by script", messages.Certificate{Type: messages.CertStakeRegistration, ScriptHash: keyHash}, false},
		{"registration with two credentials", messages.Certificate{Type: messages.CertStakeRegistration, Path: staking, KeyHash: keyHash}, true},
		{"registration without credential", messages.Certificate{Type: messages.CertStakeRegistration}, true},
		{"registration with payment path", messages.Certificate{Type: messages.CertStakeRegistration, Path: paths.MustParse(paymentPath)}, true},
		{"registration with short key hash", messages.Certificate{Type: messages.CertStakeDeregistration, KeyHash: keyHash[:20]}, true},
		{"delegation", messages.Certificate{Type: messages.CertStakeDelegation, Path: staking, Pool: keyHash}, false},
		{"delegation without pool", messages.Certificate{Type: messages.CertStakeDelegation, Path: staking}, true},
		{"delegation with deposit", messages.Certificate{Type: messages.CertStakeDelegation, Path: staking, Pool: keyHash, Deposit: &deposit}, true},
		{"conway registration", messages.Certificate{Type: messages.CertStakeRegistrationConway, Path: staking, Deposit: &deposit}, false},
		{"conway registration without deposit", messages.Certificate{Type: messages.CertStakeRegistrationConway, Path: staking}, true},
		{"vote abstain", messages.Certificate{Type: messages.CertVoteDelegation, Path: staking, DRep: &messages.DRep{Type: messages.DRepAlwaysAbstain}}, false},
		{"vote abstain with hash", messages.Certificate{Type: messages.CertVoteDelegation, Path: staking, DRep: &messages.DRep{Type: messages.DRepAlwaysAbstain, KeyHash: keyHash}}, true},
		{"vote key hash", messages.Certificate{Type: messages.CertVoteDelegation, KeyHash: keyHash, DRep: &messages.DRep{Type: messages.DRepKeyHash, KeyHash: keyHash}}, false},
		{"vote without drep", messages.Certificate{Type: messages.CertVoteDelegation, Path: staking}, true},
		{"pool registration", messages.Certificate{Type: messages.CertStakePoolRegistration, PoolParameters: poolParameters()}, false},
		{"pool registration with path", messages.Certificate{Type: messages.CertStakePoolRegistration, Path: staking, PoolParameters: poolParameters()}, true},
		{"pool registration without parameters", messages.Certificate{Type: messages.CertStakePoolRegistration}, true},
		{"unknown type", messages.Certificate{Type: messages.CertificateType(5), Path: staking}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateCertificate(&tt.cert, mainnetMagic, mainnetID)
			if tt.wantErr {
				assert.True(t, IsPolicyRejection(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePoolParameters(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *messages.PoolParameters)
	}{
		{"margin above one", func(p *messages.PoolParameters) { p.MarginNumerator = 11 }},
		{"zero denominator", func(p *messages.PoolParameters) { p.MarginNumerator, p.MarginDenominator = 0, 0 }},
		{"no owners", func(p *messages.PoolParameters) { p.OwnersCount = 0 }},
		{"short pool id", func(p *messages.PoolParameters) { p.PoolID = p.PoolID[:27] }},
		{"pledge above supply", func(p *messages.PoolParameters) { p.Pledge = LovelaceMaxSupply + 1 }},
		{"payment address as reward account", func(p *messages.PoolParameters) { p.RewardAccount = plainAddress }},
		{"long metadata url", func(p *messages.PoolParameters) { p.Metadata.URL = string(bytes.Repeat([]byte{'a'}, 65)) }},
		{"metadata url with control character", func(p *messages.PoolParameters) { p.Metadata.URL = "https://a\n" }},
	}

	assert.NoError(t, validatePoolParameters(poolParameters(), mainnetMagic, mainnetID))
	assert.Error(t, validatePoolParameters(poolParameters(), 1097911063, 0), "mainnet reward account on testnet")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := poolParameters()
			tt.modify(p)
			assert.True(t, IsPolicyRejection(validatePoolParameters(p, mainnetMagic, mainnetID)))
		})
	}
}

func TestValidatePoolRelay(t *testing.T) {
	port := uint16(3001)
	assert.NoError(t, validatePoolRelay(&messages.PoolRelay{Type: messages.RelaySingleHostIP, Port: &port, IPv4Address: []byte{10, 0, 0, 1}}))
	assert.NoError(t, validatePoolRelay(&messages.PoolRelay{Type: messages.RelayMultipleHostName, HostName: "pool.example.com"}))
	assert.Error(t, validatePoolRelay(&messages.PoolRelay{Type: messages.RelaySingleHostIP}))
	assert.Error(t, validatePoolRelay(&messages.PoolRelay{Type: messages.RelaySingleHostIP, IPv6Address: []byte{1, 2, 3}}))
	assert.Error(t, validatePoolRelay(&messages.PoolRelay{Type: messages.RelaySingleHostName}))
	assert.Error(t, validatePoolRelay(&messages.PoolRelay{Type: messages.RelayType(7), HostName: "x"}))

	assert.Equal(t, []any{uint64(0), uint64(3001), []byte{10, 0, 0, 1}, nil},
		poolRelayValue(&messages.PoolRelay{Type: messages.RelaySingleHostIP, Port: &port, IPv4Address: []byte{10, 0, 0, 1}}))
	assert.Equal(t, []any{uint64(2), "pool.example.com"},
		poolRelayValue(&messages.PoolRelay{Type: messages.RelayMultipleHostName, HostName: "pool.example.com"}))
}
