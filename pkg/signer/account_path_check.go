package signer

import (
	"github.com/suffix-labs/cardano-signtx/pkg/messages"
	"github.com/suffix-labs/cardano-signtx/pkg/paths"
)

var (
	byronAccountZero   = paths.Path{paths.PurposeByron, paths.CoinType, paths.H(0)}
	shelleyAccountZero = paths.Path{paths.PurposeShelley, paths.CoinType, paths.H(0)}
)

// AccountPathChecker makes sure every key path a transaction touches
// belongs to the same account, so a host cannot mix in keys of an account
// the user never looked at.
//
// Multisig and minting paths are exempt: they are always shown.
type AccountPathChecker struct {
	account paths.Path
	set     bool
}

// Account returns the reference account path, nil until the first
// non-exempt path was added.
func (c *AccountPathChecker) Account() paths.Path { return c.account }

// Add checks path against the reference account and returns rej on a
// mismatch.
func (c *AccountPathChecker) Add(path paths.Path, rej *PolicyRejection) error {
	if path.IsMultisig() || path.IsMinting() {
		return nil
	}
	// Paths shorter than an account path are compared as they are.
	account := path[:min(len(path), 3):min(len(path), 3)]
	if !c.set {
		c.account, c.set = account, true
		return nil
	}
	if account.Equal(c.account) || c.legacyEquivalent(account) {
		return nil
	}
	return rej
}

// legacyEquivalent allows the Byron and Shelley account 0 to stand in for
// each other. Wallets created before Shelley keep their funds under 44'.
func (c *AccountPathChecker) legacyEquivalent(account paths.Path) bool {
	return (c.account.Equal(byronAccountZero) && account.Equal(shelleyAccountZero)) ||
		(c.account.Equal(shelleyAccountZero) && account.Equal(byronAccountZero))
}

func accountMismatch(message string) *PolicyRejection {
	return &PolicyRejection{Code: ErrAccountMismatch, Message: message}
}

// AddOutput checks the payment path of a change output.
func (c *AccountPathChecker) AddOutput(o *messages.TxOutput) error {
	params, ok := o.Destination.(*messages.AddressParameters)
	if !ok || len(params.Path) == 0 {
		return nil
	}
	return c.Add(params.Path, accountMismatch("Invalid output"))
}

// AddCertificate checks the stake credential path of a certificate.
func (c *AccountPathChecker) AddCertificate(cert *messages.Certificate) error {
	if len(cert.Path) == 0 {
		return nil
	}
	return c.Add(cert.Path, accountMismatch("Invalid certificate"))
}

// AddPoolOwner checks a pool owner given by path.
func (c *AccountPathChecker) AddPoolOwner(owner *messages.PoolOwner) error {
	if len(owner.StakingKeyPath) == 0 {
		return nil
	}
	return c.Add(owner.StakingKeyPath, accountMismatch("Invalid certificate"))
}

// AddWithdrawal checks a withdrawal given by path.
func (c *AccountPathChecker) AddWithdrawal(w *messages.Withdrawal) error {
	if len(w.Path) == 0 {
		return nil
	}
	return c.Add(w.Path, accountMismatch("Invalid withdrawal"))
}

// AddWitnessRequest checks a witness path.
func (c *AccountPathChecker) AddWitnessRequest(w *messages.WitnessRequest) error {
	return c.Add(w.Path, accountMismatch("Invalid witness request"))
}
