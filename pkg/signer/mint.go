package signer

import (
	"context"
	"fmt"

	"github.com/suffix-labs/cardano-signtx/pkg/messages"
)

// processMint streams the mint map {policy: {name: signed amount}}. Every
// minted or burned token is shown.
func (s *Signer) processMint(ctx context.Context) error {
	mint, err := receive[messages.Mint](ctx, s)
	if err != nil {
		return err
	}
	if mint.AssetGroupsCount != s.init.MintingAssetGroupsCount {
		return violation(ErrUnexpectedItem, fmt.Sprintf("mint announces %d asset groups, init %d",
			mint.AssetGroupsCount, s.init.MintingAssetGroupsCount), nil)
	}
	if _, err := s.confirm(ctx, warningScreen("The transaction contains minting or burning of tokens.")); err != nil {
		return err
	}

	groups, err := s.body.AddDict(bodyKeyMint, uint64(mint.AssetGroupsCount), "mint")
	if err != nil {
		return s.hbErr(err, "Invalid tx signing request")
	}
	for range mint.AssetGroupsCount {
		group, err := receive[messages.AssetGroup](ctx, s)
		if err != nil {
			return err
		}
		if err := validateAssetGroup(&group, "Invalid mint token bundle"); err != nil {
			return err
		}
		tokens, err := groups.AddDict(group.PolicyID, uint64(group.TokensCount), "mint tokens")
		if err != nil {
			return s.hbErr(err, "Invalid mint token bundle")
		}
		for range group.TokensCount {
			token, err := receive[messages.MintToken](ctx, s)
			if err != nil {
				return err
			}
			if len(token.AssetName) > maxAssetNameSize {
				return reject("Invalid mint token bundle")
			}
			if _, err := s.confirm(ctx, mintTokenScreen(group.PolicyID, &token)); err != nil {
				return err
			}
			if err := tokens.Add(token.AssetName, token.Amount); err != nil {
				return s.hbErr(err, "Invalid mint token bundle")
			}
		}
		if err := tokens.Close(); err != nil {
			return s.hbErr(err, "Invalid mint token bundle")
		}
	}
	return s.hbErr(groups.Close(), "Invalid mint token bundle")
}
