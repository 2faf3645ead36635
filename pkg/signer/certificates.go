package signer

import (
	"context"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/cbor"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

// poolRegistrationItems is the length of a pool registration certificate:
// type, operator, vrf key hash, pledge, cost, margin, reward account,
// owners, relays, metadata.
const poolRegistrationItems = 10

// Stake credential tags.
const (
	credentialKeyHash    = 0
	credentialScriptHash = 1
)

func (s *Signer) processCertificates(ctx context.Context) error {
	certs, err := s.addSet(bodyKeyCertificates, s.init.CertificatesCount, "certificates")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	for range s.init.CertificatesCount {
		cert, err := receive[messages.Certificate](ctx, s)
		if err != nil {
			return err
		}
		if err := s.validateCertificate(&cert); err != nil {
			return err
		}
		if err := s.showCertificate(ctx, &cert); err != nil {
			return err
		}

		if cert.Type != messages.CertStakePoolRegistration {
			encoded, err := s.encodeCertificate(&cert)
			if err != nil {
				return err
			}
			if err := certs.Append(encoded); err != nil {
				return s.hbErr(err, "Invalid certificate")
			}
			continue
		}

		pool := cert.PoolParameters
		items, err := certs.AppendList(poolRegistrationItems, "pool registration")
		if err != nil {
			return s.hbErr(err, "Invalid certificate")
		}
		init, err := s.poolRegistrationInit(pool)
		if err != nil {
			return err
		}
		for _, item := range init {
			if err := items.Append(item); err != nil {
				return s.hbErr(err, "Invalid certificate")
			}
		}
		if err := s.processPoolOwners(ctx, items, pool.OwnersCount); err != nil {
			return err
		}
		if err := s.processPoolRelays(ctx, items, pool.RelaysCount); err != nil {
			return err
		}
		if err := items.Append(poolMetadataValue(pool.Metadata)); err != nil {
			return s.hbErr(err, "Invalid certificate")
		}
		if err := items.Close(); err != nil {
			return s.hbErr(err, "Invalid certificate")
		}
	}
	return s.hbErr(certs.Close(), "Invalid certificate")
}

// certificate fields that must be empty, per type
type certField uint8

const (
	certFieldPath certField = 1 << iota
	certFieldScriptHash
	certFieldKeyHash
	certFieldPool
	certFieldPoolParameters
	certFieldDeposit
	certFieldDRep
)

var certEmptyFields = map[messages.CertificateType]certField{
	messages.CertStakeRegistration:         certFieldPool | certFieldPoolParameters | certFieldDeposit | certFieldDRep,
	messages.CertStakeDeregistration:       certFieldPool | certFieldPoolParameters | certFieldDeposit | certFieldDRep,
	messages.CertStakeDelegation:           certFieldPoolParameters | certFieldDeposit | certFieldDRep,
	messages.CertStakePoolRegistration:     certFieldPath | certFieldScriptHash | certFieldKeyHash | certFieldPool | certFieldDeposit | certFieldDRep,
	messages.CertStakeRegistrationConway:   certFieldPool | certFieldPoolParameters | certFieldDRep,
	messages.CertStakeDeregistrationConway: certFieldPool | certFieldPoolParameters | certFieldDRep,
	messages.CertVoteDelegation:            certFieldPool | certFieldPoolParameters | certFieldDeposit,
}

func certPresent(c *messages.Certificate) certField {
	var f certField
	if len(c.Path) > 0 {
		f |= certFieldPath
	}
	if len(c.ScriptHash) > 0 {
		f |= certFieldScriptHash
	}
	if len(c.KeyHash) > 0 {
		f |= certFieldKeyHash
	}
	if len(c.Pool) > 0 {
		f |= certFieldPool
	}
	if c.PoolParameters != nil {
		f |= certFieldPoolParameters
	}
	if c.Deposit != nil {
		f |= certFieldDeposit
	}
	if c.DRep != nil {
		f |= certFieldDRep
	}
	return f
}

func (s *Signer) validateCertificate(c *messages.Certificate) error {
	if err := validateCertificate(c, s.init.ProtocolMagic, s.init.NetworkID); err != nil {
		return err
	}
	if err := s.policy.validateCertificate(c); err != nil {
		return err
	}
	return s.accounts.AddCertificate(c)
}

// validateCertificate checks the structure of a certificate independent of
// the signing mode.
func validateCertificate(c *messages.Certificate, protocolMagic uint32, networkID uint8) error {
	empty, ok := certEmptyFields[c.Type]
	if !ok || certPresent(c)&empty != 0 {
		return reject("Invalid certificate")
	}

	switch c.Type {
	case messages.CertStakeRegistration, messages.CertStakeDeregistration,
		messages.CertStakeDelegation, messages.CertStakeRegistrationConway,
		messages.CertStakeDeregistrationConway, messages.CertVoteDelegation:
		if err := validateStakeCredential(c.Path, c.ScriptHash, c.KeyHash, "Invalid certificate"); err != nil {
			return err
		}
	}

	switch c.Type {
	case messages.CertStakeDelegation:
		if len(c.Pool) != poolIDSize {
			return reject("Invalid certificate")
		}
	case messages.CertStakePoolRegistration:
		if c.PoolParameters == nil {
			return reject("Invalid certificate")
		}
		return validatePoolParameters(c.PoolParameters, protocolMagic, networkID)
	case messages.CertStakeRegistrationConway, messages.CertStakeDeregistrationConway:
		if c.Deposit == nil {
			return reject("Invalid certificate")
		}
	case messages.CertVoteDelegation:
		if c.DRep == nil {
			return reject("Invalid certificate")
		}
		return validateDRep(c.DRep)
	}
	return nil
}

func validateDRep(d *messages.DRep) error {
	switch d.Type {
	case messages.DRepKeyHash:
		if len(d.KeyHash) != addresses.KeyHashSize || d.ScriptHash != nil {
			return reject("Invalid certificate")
		}
	case messages.DRepScriptHash:
		if len(d.ScriptHash) != addresses.ScriptHashSize || d.KeyHash != nil {
			return reject("Invalid certificate")
		}
	case messages.DRepAlwaysAbstain, messages.DRepAlwaysNoConfidence:
		if d.KeyHash != nil || d.ScriptHash != nil {
			return reject("Invalid certificate")
		}
	default:
		return reject("Invalid certificate")
	}
	return nil
}

func validatePoolParameters(p *messages.PoolParameters, protocolMagic uint32, networkID uint8) error {
	switch {
	case len(p.PoolID) != poolIDSize,
		len(p.VRFKeyHash) != vrfKeyHashSize,
		p.Pledge > LovelaceMaxSupply,
		p.Cost > LovelaceMaxSupply,
		p.MarginDenominator == 0,
		p.MarginNumerator > p.MarginDenominator,
		p.OwnersCount == 0:
		return reject("Invalid certificate")
	}
	if _, err := addresses.ValidateReward(p.RewardAccount, protocolMagic, networkID); err != nil {
		return rejectWith(ErrInvalidItem, "Invalid certificate", err)
	}
	if p.Metadata != nil {
		return validatePoolMetadata(p.Metadata)
	}
	return nil
}

func validatePoolMetadata(m *messages.PoolMetadata) error {
	if len(m.URL) > maxPoolMetadataURLSize || len(m.Hash) != poolMetadataHashSize {
		return reject("Invalid certificate")
	}
	if !isPrintableASCII(m.URL) {
		return reject("Invalid certificate")
	}
	return nil
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] > 126 {
			return false
		}
	}
	return true
}

func (s *Signer) showCertificate(ctx context.Context, c *messages.Certificate) error {
	if len(c.Path) > 0 {
		if err := s.failOrWarnIfInvalidPath(ctx, c.Path.IsStaking(), c.Path, "Certificate path"); err != nil {
			return err
		}
	}
	if c.Type != messages.CertStakePoolRegistration {
		_, err := s.confirm(ctx, certificateScreen(c))
		return err
	}
	if _, err := s.confirm(ctx, poolParametersScreen(c.PoolParameters, s.init.NetworkID)); err != nil {
		return err
	}
	_, err := s.confirm(ctx, poolMetadataScreen(c.PoolParameters.Metadata))
	return err
}

// encodeCertificate returns the body encoding of every certificate but the
// pool registration, which is streamed.
func (s *Signer) encodeCertificate(c *messages.Certificate) ([]any, error) {
	cred, err := s.certificateCredential(c)
	if err != nil {
		return nil, err
	}
	switch c.Type {
	case messages.CertStakeDelegation:
		return []any{uint64(c.Type), cred, c.Pool}, nil
	case messages.CertStakeRegistrationConway, messages.CertStakeDeregistrationConway:
		return []any{uint64(c.Type), cred, *c.Deposit}, nil
	case messages.CertVoteDelegation:
		return []any{uint64(c.Type), cred, drepValue(c.DRep)}, nil
	default:
		return []any{uint64(c.Type), cred}, nil
	}
}

func (s *Signer) certificateCredential(c *messages.Certificate) ([]any, error) {
	switch {
	case len(c.Path) > 0:
		kh, err := s.keyHash(c.Path)
		if err != nil {
			return nil, err
		}
		return []any{uint64(credentialKeyHash), kh}, nil
	case len(c.KeyHash) > 0:
		return []any{uint64(credentialKeyHash), c.KeyHash}, nil
	default:
		return []any{uint64(credentialScriptHash), c.ScriptHash}, nil
	}
}

func drepValue(d *messages.DRep) []any {
	switch d.Type {
	case messages.DRepKeyHash:
		return []any{uint64(d.Type), d.KeyHash}
	case messages.DRepScriptHash:
		return []any{uint64(d.Type), d.ScriptHash}
	default:
		return []any{uint64(d.Type)}
	}
}

// poolRegistrationInit is the part of a pool registration preceding the
// owners.
func (s *Signer) poolRegistrationInit(p *messages.PoolParameters) ([]any, error) {
	rewardAccount, err := addresses.Decode(p.RewardAccount)
	if err != nil {
		return nil, rejectWith(ErrInvalidItem, "Invalid certificate", err)
	}
	return []any{
		uint64(messages.CertStakePoolRegistration),
		p.PoolID,
		p.VRFKeyHash,
		p.Pledge,
		p.Cost,
		cbor.Tag{Number: cbor.TagRational, Content: []any{p.MarginNumerator, p.MarginDenominator}},
		rewardAccount,
	}, nil
}

func poolMetadataValue(m *messages.PoolMetadata) any {
	if m == nil {
		return nil
	}
	return []any{m.URL, m.Hash}
}
