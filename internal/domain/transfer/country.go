package transfer

import (
	"time"

	"github.com/google/uuid"
)

// StatusTag classifies a jurisdiction under the GDPR. A country may carry
// several tags at once (e.g. EU membership implies EEA membership, and both
// tags are stored explicitly in the reference data).
type StatusTag string

const (
	StatusEU           StatusTag = "EU"
	StatusEEA          StatusTag = "EEA"
	StatusEFTA         StatusTag = "EFTA"
	StatusThirdCountry StatusTag = "THIRD_COUNTRY"
	StatusAdequate     StatusTag = "ADEQUATE"
)

// Country is shared reference data, not tenant-scoped.
type Country struct {
	ID         uuid.UUID   `json:"id"`
	Code       string      `json:"code"` // ISO 3166-1 alpha-2
	Name       string      `json:"name"`
	GdprStatus []StatusTag `json:"gdpr_status"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// HasStatus reports whether the country carries the given tag.
func (c Country) HasStatus(tag StatusTag) bool {
	for _, t := range c.GdprStatus {
		if t == tag {
			return true
		}
	}
	return false
}

// IsThirdCountry is true iff the country carries neither EU, EEA nor an
// adequacy decision. EFTA membership alone does not exempt a country.
func (c Country) IsThirdCountry() bool {
	return !c.HasStatus(StatusEU) && !c.HasStatus(StatusEEA) && !c.HasStatus(StatusAdequate)
}

// isTrusted reports EU/EEA membership, the tags under which no transfer
// safeguards are ever required.
func (c Country) isTrusted() bool {
	return c.HasStatus(StatusEU) || c.HasStatus(StatusEEA)
}

// IsSameJurisdiction treats two countries as one jurisdiction for risk
// purposes: both inside EU/EEA, or both covered by an adequacy decision.
func IsSameJurisdiction(a, b Country) bool {
	if a.isTrusted() && b.isTrusted() {
		return true
	}
	return a.HasStatus(StatusAdequate) && b.HasStatus(StatusAdequate)
}

// RequiresSafeguards is true only for EU/EEA-origin transfers to a genuine
// third country. Third-to-third transfers are outside this evaluator's
// mandate and report false.
func RequiresSafeguards(source, destination Country) bool {
	return source.isTrusted() && destination.IsThirdCountry()
}
