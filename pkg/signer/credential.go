package signer

import (
	"fmt"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
	"github.com/suffix-labs/cardano-signtx/pkg/ui"
)

// credential is one half of a change address as the user sees it.
type credential struct {
	role        string // "payment" or "stake"
	path        paths.Path
	keyHash     []byte
	scriptHash  []byte
	pointer     *addresses.CertificatePointer
	unusualPath bool
	warnings    []string
}

func paymentCredential(p *messages.AddressParameters) credential {
	c := credential{role: "payment"}
	switch {
	case len(p.Path) > 0:
		c.path = p.Path
		c.unusualPath = !p.Path.IsPayment()
	case len(p.ScriptPaymentHash) > 0:
		c.scriptHash = p.ScriptPaymentHash
	}
	if c.unusualPath {
		c.warnings = append(c.warnings, "Unusual payment path")
	}
	return c
}

func stakeCredential(p *messages.AddressParameters) credential {
	c := credential{role: "stake"}
	switch {
	case len(p.StakingPath) > 0:
		c.path = p.StakingPath
		c.unusualPath = !p.StakingPath.IsStaking()
		if c.unusualPath {
			c.warnings = append(c.warnings, "Unusual staking path")
		}
		if len(p.Path) > 0 && !p.StakingPath.Account().Equal(p.Path.Account()) {
			c.warnings = append(c.warnings, "Staking key belongs to a different account")
		}
	case len(p.StakingKeyHash) > 0:
		c.keyHash = p.StakingKeyHash
		c.warnings = append(c.warnings, "Rewards go to a staking key not derived from this wallet")
	case len(p.ScriptStakingHash) > 0:
		c.scriptHash = p.ScriptStakingHash
		c.warnings = append(c.warnings, "Rewards go to a staking script")
	case p.Pointer != nil:
		c.pointer = p.Pointer
		c.warnings = append(c.warnings, "Pointer address, rewards are not verifiable")
	default:
		c.warnings = append(c.warnings, "Address has no staking rights")
	}
	return c
}

// fields renders the credential for an output screen.
func (c credential) fields() []ui.Field {
	var fs []ui.Field
	label := c.role
	switch {
	case len(c.path) > 0:
		fs = append(fs, ui.Field{Label: label + " path:", Value: c.path.String()})
	case len(c.keyHash) > 0:
		fs = append(fs, ui.Field{Label: label + " key hash:", Value: ui.FormatHex(c.keyHash)})
	case len(c.scriptHash) > 0:
		fs = append(fs, ui.Field{Label: label + " script hash:", Value: ui.FormatHex(c.scriptHash)})
	case c.pointer != nil:
		fs = append(fs, ui.Field{Label: "pointer:", Value: fmt.Sprintf("%d/%d/%d",
			c.pointer.BlockIndex, c.pointer.TxIndex, c.pointer.CertificateIndex)})
	}
	for _, w := range c.warnings {
		fs = append(fs, ui.Field{Label: "Warning:", Value: w})
	}
	return fs
}

// shouldShowCredentials is false only for a base address whose staking key
// is the staking key of the payment key's own account.
func shouldShowCredentials(p *messages.AddressParameters) bool {
	return !(p.Type == addresses.Base &&
		p.Path.IsPayment() &&
		len(p.StakingPath) > 0 &&
		p.StakingPath.Equal(stakingPathOf(p.Path)))
}

// stakingPathOf is the staking path of the account path belongs to.
func stakingPathOf(path paths.Path) paths.Path {
	account := path.Account()
	if account == nil {
		return nil
	}
	return append(account, paths.ChainStaking, 0)
}
