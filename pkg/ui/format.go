package ui

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	blake2b "github.com/minio/blake2b-simd"
)

const lovelacePerADA = 1_000_000

// FormatCoin renders a lovelace amount as ADA with six decimals, trailing
// zeros trimmed.
func FormatCoin(lovelace uint64) string {
	whole := lovelace / lovelacePerADA
	frac := lovelace % lovelacePerADA
	if frac == 0 {
		return fmt.Sprintf("%d ADA", whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%d.%s ADA", whole, s)
}

// FormatOptional renders an optional integer, "None" when absent.
func FormatOptional(v *uint64) string {
	if v == nil {
		return "None"
	}
	return fmt.Sprintf("%d", *v)
}

// FormatHex renders bytes as lowercase hex.
func FormatHex(b []byte) string { return hex.EncodeToString(b) }

// AssetFingerprint is the CIP-14 fingerprint of a native asset: bech32
// with prefix "asset" over blake2b-160(policy id || asset name).
func AssetFingerprint(policyID, assetName []byte) string {
	h, err := blake2b.New(&blake2b.Config{Size: 20})
	if err != nil {
		return FormatHex(policyID) + "." + FormatHex(assetName)
	}
	h.Write(policyID)
	h.Write(assetName)
	data, err := bech32.ConvertBits(h.Sum(nil), 8, 5, true)
	if err != nil {
		return FormatHex(policyID) + "." + FormatHex(assetName)
	}
	s, err := bech32.Encode("asset", data)
	if err != nil {
		return FormatHex(policyID) + "." + FormatHex(assetName)
	}
	return s
}
