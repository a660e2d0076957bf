package transfer

import (
	"fmt"

	"github.com/google/uuid"
)

// RiskLevel classifies a data flow between two jurisdictions.
type RiskLevel string

const (
	RiskNone     RiskLevel = "NONE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskReason names the rule that produced the classification.
type RiskReason string

const (
	ReasonSameJurisdiction        RiskReason = "SAME_JURISDICTION"
	ReasonAdequacyDecision        RiskReason = "ADEQUACY_DECISION"
	ReasonSafeguardsInPlace       RiskReason = "SAFEGUARDS_IN_PLACE"
	ReasonThirdCountryNoMechanism RiskReason = "THIRD_COUNTRY_NO_MECHANISM"
	ReasonImportIntoEEA           RiskReason = "IMPORT_INTO_EEA"
)

// TransferRisk is a derived value, never persisted.
type TransferRisk struct {
	Level     RiskLevel          `json:"level"`
	Reason    RiskReason         `json:"reason"`
	Mechanism *TransferMechanism `json:"mechanism,omitempty"`
}

// DeriveTransferRisk classifies the data flow from source to destination,
// evaluated in priority order:
//
//  1. same jurisdiction            -> NONE (a supplied mechanism is ignored)
//  2. destination adequate         -> LOW, regardless of source
//  3. third country, no mechanism  -> CRITICAL
//  4. third country with mechanism -> MEDIUM, carrying the mechanism
//  5. import into the EU/EEA       -> NONE
//
// Branches 3 and 4 key on the destination's status alone: a transfer between
// two third countries with no mechanism is still CRITICAL even though
// RequiresSafeguards reports false for that pair. The two functions answer
// different questions (legal obligation vs. exposure) and diverge on purpose.
func DeriveTransferRisk(source, destination Country, mechanism *TransferMechanism) TransferRisk {
	if IsSameJurisdiction(source, destination) {
		return TransferRisk{Level: RiskNone, Reason: ReasonSameJurisdiction}
	}

	if destination.HasStatus(StatusAdequate) {
		return TransferRisk{Level: RiskLow, Reason: ReasonAdequacyDecision}
	}

	if destination.IsThirdCountry() {
		if mechanism == nil {
			return TransferRisk{Level: RiskCritical, Reason: ReasonThirdCountryNoMechanism}
		}
		return TransferRisk{Level: RiskMedium, Reason: ReasonSafeguardsInPlace, Mechanism: mechanism}
	}

	// Destination is EU/EEA but the pair was not same-jurisdiction, which
	// means the source is outside the trusted zone. Importing data into the
	// EU/EEA carries no GDPR transfer risk.
	return TransferRisk{Level: RiskNone, Reason: ReasonImportIntoEEA}
}

// MechanismRequirement is the outcome of checking whether a safeguard
// mechanism is legally required for a country pair.
type MechanismRequirement struct {
	Valid    bool   `json:"valid"`
	Required bool   `json:"required"`
	Error    string `json:"error,omitempty"`
}

// ValidateMechanismRequirement checks whether the given country pair demands
// a safeguard mechanism and whether one was supplied. It does not resolve the
// mechanism id against reference data; persisting callers do that.
func ValidateMechanismRequirement(source, destination Country, mechanismID *uuid.UUID) MechanismRequirement {
	required := RequiresSafeguards(source, destination)
	if !required {
		return MechanismRequirement{Valid: true, Required: false}
	}
	if mechanismID == nil {
		return MechanismRequirement{
			Valid:    false,
			Required: true,
			Error: fmt.Sprintf(
				"transfer to %s requires a safeguard mechanism under GDPR Article 46",
				destination.Name,
			),
		}
	}
	return MechanismRequirement{Valid: true, Required: true}
}
