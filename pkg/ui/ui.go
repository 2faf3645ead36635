// Package ui is the confirmation surface the signer talks to. Screens are
// plain data; rendering them is left to the UI implementation.
package ui

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies what a screen asks the user to confirm.
type Kind uint8

const (
	KindTxDetails Kind = iota + 1
	KindWarning
	KindPathWarning
	KindInput
	KindOutput
	KindToken
	KindDatumHash
	KindInlineDatum
	KindReferenceScript
	KindCertificate
	KindPoolParameters
	KindPoolOwner
	KindPoolRelay
	KindPoolMetadata
	KindWithdrawal
	KindAuxiliaryData
	KindMintToken
	KindScriptDataHash
	KindCollateralInput
	KindCollateralReturn
	KindRequiredSigner
	KindReferenceInput
	KindConfirmTx
	KindConfirmPoolRegistration
	KindWitnessPath
)

var kindNames = map[Kind]string{
	KindTxDetails:               "transaction details",
	KindWarning:                 "warning",
	KindPathWarning:             "path warning",
	KindInput:                   "input",
	KindOutput:                  "output",
	KindToken:                   "token",
	KindDatumHash:               "datum hash",
	KindInlineDatum:             "inline datum",
	KindReferenceScript:         "reference script",
	KindCertificate:             "certificate",
	KindPoolParameters:          "pool parameters",
	KindPoolOwner:               "pool owner",
	KindPoolRelay:               "pool relay",
	KindPoolMetadata:            "pool metadata",
	KindWithdrawal:              "withdrawal",
	KindAuxiliaryData:           "auxiliary data",
	KindMintToken:               "mint",
	KindScriptDataHash:          "script data hash",
	KindCollateralInput:         "collateral input",
	KindCollateralReturn:        "collateral return",
	KindRequiredSigner:          "required signer",
	KindReferenceInput:          "reference input",
	KindConfirmTx:               "confirm transaction",
	KindConfirmPoolRegistration: "confirm pool registration",
	KindWitnessPath:             "witness path",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("screen(%d)", uint8(k))
}

// Field is one labelled value on a screen. Value may be empty for lines
// that are a statement on their own.
type Field struct {
	Label string
	Value string
}

// Screen is one confirmation step.
type Screen struct {
	Kind   Kind
	Title  string
	Fields []Field
	// Hold marks the final hold-to-confirm screen.
	Hold bool
}

// Value returns the value of the first field with the given label.
func (s Screen) Value(label string) (string, bool) {
	for _, f := range s.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

// Reply is the user's answer to a screen.
type Reply uint8

const (
	ReplyAck Reply = iota
	// ReplyDetails is only meaningful on the KindTxDetails screen: confirm
	// and show every item.
	ReplyDetails
	ReplyReject
)

func (r Reply) String() string {
	switch r {
	case ReplyAck:
		return "ack"
	case ReplyDetails:
		return "details"
	case ReplyReject:
		return "reject"
	default:
		return fmt.Sprintf("reply(%d)", uint8(r))
	}
}

// ErrRejected is returned when the user declines a screen.
var ErrRejected = errors.New("ui: rejected by user")

// UI shows a screen and blocks until the user answers.
type UI interface {
	Show(ctx context.Context, s Screen) (Reply, error)
}

// Confirm shows s and turns a rejection into ErrRejected.
func Confirm(ctx context.Context, u UI, s Screen) (Reply, error) {
	r, err := u.Show(ctx, s)
	if err != nil {
		return 0, err
	}
	if r == ReplyReject {
		return r, fmt.Errorf("%w: %s", ErrRejected, s.Kind)
	}
	return r, nil
}

// SafetyChecks is the device-wide setting deciding whether unusual but
// legal requests fail or only warn.
type SafetyChecks uint8

const (
	SafetyStrict SafetyChecks = iota
	SafetyPrompt
)

func (s SafetyChecks) String() string {
	if s == SafetyPrompt {
		return "prompt"
	}
	return "strict"
}

// ParseSafetyChecks accepts "strict" and "prompt".
func ParseSafetyChecks(s string) (SafetyChecks, error) {
	switch s {
	case "strict", "":
		return SafetyStrict, nil
	case "prompt":
		return SafetyPrompt, nil
	}
	return 0, fmt.Errorf("unknown safety checks setting %q", s)
}
