package signer

import (
	"context"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/hashbuilder"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

const (
	ipv4Size = 4
	ipv6Size = 16
)

// processPoolOwners streams the owners of a pool registration. Exactly one
// owner must be given by path: it is the key the device witnesses with.
func (s *Signer) processPoolOwners(ctx context.Context, items hashbuilder.List, count uint32) error {
	owners, err := s.appendSet(items, count, "pool owners")
	if err != nil {
		return s.hbErr(err, "Invalid certificate")
	}
	byPath := 0
	for range count {
		owner, err := receive[messages.PoolOwner](ctx, s)
		if err != nil {
			return err
		}
		if err := s.validatePoolOwner(&owner); err != nil {
			return err
		}
		if err := s.showPoolOwner(ctx, &owner); err != nil {
			return err
		}

		kh := owner.StakingKeyHash
		if len(owner.StakingKeyPath) > 0 {
			if kh, err = s.keyHash(owner.StakingKeyPath); err != nil {
				return err
			}
			byPath++
			s.poolOwnerPath = owner.StakingKeyPath
		}
		if err := owners.Append(kh); err != nil {
			return s.hbErr(err, "Invalid certificate")
		}
	}
	if byPath != 1 {
		return reject("Invalid certificate")
	}
	return s.hbErr(owners.Close(), "Invalid certificate")
}

func (s *Signer) validatePoolOwner(o *messages.PoolOwner) error {
	switch {
	case len(o.StakingKeyHash) > 0 && len(o.StakingKeyPath) > 0:
		return reject("Invalid certificate")
	case len(o.StakingKeyHash) > 0:
		if len(o.StakingKeyHash) != addresses.KeyHashSize {
			return reject("Invalid certificate")
		}
	case len(o.StakingKeyPath) > 0:
		if !o.StakingKeyPath.IsStakingAnyAccount() {
			return reject("Invalid certificate")
		}
	default:
		return reject("Invalid certificate")
	}
	return s.accounts.AddPoolOwner(o)
}

func (s *Signer) showPoolOwner(ctx context.Context, o *messages.PoolOwner) error {
	if len(o.StakingKeyPath) > 0 {
		if err := s.failOrWarnIfInvalidPath(ctx, o.StakingKeyPath.IsStaking(), o.StakingKeyPath, "Pool owner staking path"); err != nil {
			return err
		}
	}

	var reward string
	if len(o.StakingKeyPath) > 0 {
		kh, err := s.keyHash(o.StakingKeyPath)
		if err != nil {
			return err
		}
		reward, _ = addresses.Encode(addresses.RewardAddress(kh, false, s.init.NetworkID))
	} else {
		reward, _ = addresses.Encode(addresses.RewardAddress(o.StakingKeyHash, false, s.init.NetworkID))
	}
	_, err := s.confirm(ctx, poolOwnerScreen(o, reward))
	return err
}

// processPoolRelays streams the relays, shown only with details.
func (s *Signer) processPoolRelays(ctx context.Context, items hashbuilder.List, count uint32) error {
	relays, err := items.AppendList(uint64(count), "pool relays")
	if err != nil {
		return s.hbErr(err, "Invalid certificate")
	}
	for range count {
		relay, err := receive[messages.PoolRelay](ctx, s)
		if err != nil {
			return err
		}
		if err := validatePoolRelay(&relay); err != nil {
			return err
		}
		if err := s.showIfDetails(ctx, poolRelayScreen(&relay)); err != nil {
			return err
		}
		if err := relays.Append(poolRelayValue(&relay)); err != nil {
			return s.hbErr(err, "Invalid certificate")
		}
	}
	return s.hbErr(relays.Close(), "Invalid certificate")
}

func validatePoolRelay(r *messages.PoolRelay) error {
	switch r.Type {
	case messages.RelaySingleHostIP:
		if r.IPv4Address == nil && r.IPv6Address == nil {
			return reject("Invalid certificate")
		}
		if r.IPv4Address != nil && len(r.IPv4Address) != ipv4Size {
			return reject("Invalid certificate")
		}
		if r.IPv6Address != nil && len(r.IPv6Address) != ipv6Size {
			return reject("Invalid certificate")
		}
	case messages.RelaySingleHostName, messages.RelayMultipleHostName:
		if r.HostName == "" || len(r.HostName) > maxDNSNameSize || !isPrintableASCII(r.HostName) {
			return reject("Invalid certificate")
		}
	default:
		return reject("Invalid certificate")
	}
	return nil
}

func poolRelayValue(r *messages.PoolRelay) []any {
	var port any
	if r.Port != nil {
		port = uint64(*r.Port)
	}
	switch r.Type {
	case messages.RelaySingleHostIP:
		return []any{uint64(r.Type), port, optionalBytes(r.IPv4Address), optionalBytes(r.IPv6Address)}
	case messages.RelaySingleHostName:
		return []any{uint64(r.Type), port, r.HostName}
	default:
		return []any{uint64(r.Type), r.HostName}
	}
}

// optionalBytes maps a missing byte string to CBOR null.
func optionalBytes(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
