// Package cip13 implements the CIP-13 payment URI format.
//
// A payment URI names one recipient and, optionally, an amount in ADA so a
// wallet can prefill an output from a link or QR code.
//
// URI Format:
//
//	web+cardano:<address>?amount=<ada>
//
// See: https://cips.cardano.org/cip/CIP-0013
package cip13

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/suffix-labs/cardano-signtx/pkg/addresses"
)

// Scheme is the URI scheme, including the colon.
const Scheme = "web+cardano:"

// LovelacePerAda is the number of lovelace in one ADA.
const LovelacePerAda = 1_000_000

// Payment is a parsed payment URI.
type Payment struct {
	Address string  // bech32 or base58 address
	Amount  *uint64 // lovelace (nil = user specifies)
}

// Parse parses a payment URI. The address must decode; its network is checked
// later, against the transaction it ends up in.
//
// Example:
//
//	p, err := cip13.Parse("web+cardano:addr1...?amount=1.5")
func Parse(uri string) (*Payment, error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return nil, fmt.Errorf("missing %q scheme", Scheme)
	}
	address, query, _ := strings.Cut(rest, "?")
	if address == "" {
		return nil, errors.New("missing address")
	}
	_, t, err := addresses.ValidateAnyNetwork(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}
	if t.IsReward() {
		return nil, errors.New("cannot pay to a reward address")
	}

	params, err := url.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}
	p := &Payment{Address: address}
	if amountStr := params.Get("amount"); amountStr != "" {
		amount, err := ParseAda(amountStr)
		if err != nil {
			return nil, fmt.Errorf("invalid amount: %w", err)
		}
		p.Amount = &amount
	}
	return p, nil
}

// ParseAda converts a decimal ADA amount to lovelace.
//
// Valid formats:
//   - "1.5" (decimal ADA)
//   - "0.000001" (one lovelace)
//   - "1000" (whole ADA)
func ParseAda(s string) (uint64, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, errors.New("empty amount")
	}
	if len(frac) > 6 {
		return 0, errors.New("more than 6 decimal places")
	}
	var ada, lovelace uint64
	var err error
	if whole != "" {
		if ada, err = strconv.ParseUint(whole, 10, 64); err != nil {
			return 0, fmt.Errorf("not a valid number: %w", err)
		}
	}
	if frac != "" {
		padded := frac + strings.Repeat("0", 6-len(frac))
		if lovelace, err = strconv.ParseUint(padded, 10, 64); err != nil {
			return 0, fmt.Errorf("not a valid number: %w", err)
		}
	}
	if ada > (^uint64(0)-lovelace)/LovelacePerAda {
		return 0, errors.New("amount overflows")
	}
	return ada*LovelacePerAda + lovelace, nil
}

// FormatAda renders lovelace as a decimal ADA amount without trailing zeros.
func FormatAda(lovelace uint64) string {
	s := fmt.Sprintf("%d.%06d", lovelace/LovelacePerAda, lovelace%LovelacePerAda)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Encode is the inverse of Parse.
func (p *Payment) Encode() string {
	uri := Scheme + p.Address
	if p.Amount != nil {
		uri += "?amount=" + FormatAda(*p.Amount)
	}
	return uri
}
