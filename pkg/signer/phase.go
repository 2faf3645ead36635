package signer

import "fmt"

// Phase is the section of the session the signer is processing.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseInit
	PhaseInputs
	PhaseOutputs
	PhaseFee
	PhaseTTL
	PhaseCertificates
	PhaseWithdrawals
	PhaseAuxiliaryData
	PhaseValidityIntervalStart
	PhaseMint
	PhaseScriptDataHash
	PhaseCollateralInputs
	PhaseRequiredSigners
	PhaseNetworkID
	PhaseCollateralReturn
	PhaseTotalCollateral
	PhaseReferenceInputs
	PhaseConfirm
	PhaseWitnessRequests
	PhaseFinished
)

var phaseNames = [...]string{
	PhaseIdle:                  "idle",
	PhaseInit:                  "init",
	PhaseInputs:                "inputs",
	PhaseOutputs:               "outputs",
	PhaseFee:                   "fee",
	PhaseTTL:                   "ttl",
	PhaseCertificates:          "certificates",
	PhaseWithdrawals:           "withdrawals",
	PhaseAuxiliaryData:         "auxiliary data",
	PhaseValidityIntervalStart: "validity interval start",
	PhaseMint:                  "mint",
	PhaseScriptDataHash:        "script data hash",
	PhaseCollateralInputs:      "collateral inputs",
	PhaseRequiredSigners:       "required signers",
	PhaseNetworkID:             "network id",
	PhaseCollateralReturn:      "collateral return",
	PhaseTotalCollateral:       "total collateral",
	PhaseReferenceInputs:       "reference inputs",
	PhaseConfirm:               "confirm",
	PhaseWitnessRequests:       "witness requests",
	PhaseFinished:              "finished",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}
