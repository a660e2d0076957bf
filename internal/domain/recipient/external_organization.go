package recipient

import (
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// ExternalOrganization is the real-world legal entity behind one or more
// recipient roles. Tenant-scoped like Recipient; many recipients may point at
// the same external organization.
type ExternalOrganization struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	LegalName      string     `json:"legal_name"`
	TradingName    string     `json:"trading_name,omitempty"`
	CountryID      *uuid.UUID `json:"country_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewExternalOrganization creates an external organization record.
func NewExternalOrganization(orgID uuid.UUID, legalName string) *ExternalOrganization {
	now := time.Now()
	return &ExternalOrganization{
		ID:             uuid.New(),
		OrganizationID: orgID,
		LegalName:      legalName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// corporate suffixes stripped before duplicate comparison
var corporateSuffixes = []string{
	"gmbh", "ag", "sarl", "sas", "sa", "bv", "nv", "ltd", "limited",
	"llc", "inc", "incorporated", "corp", "corporation", "co", "plc",
	"oy", "ab", "aps", "as", "spa", "srl",
}

// NormalizeOrgName reduces a legal or trading name to a comparison key:
// lowercase, alphanumerics only, corporate suffixes stripped. Two external
// organizations whose keys match are duplicate candidates.
func NormalizeOrgName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' {
			b.WriteRune(r)
		}
	}
	words := strings.Fields(b.String())
	for len(words) > 1 {
		last := words[len(words)-1]
		stripped := false
		for _, suffix := range corporateSuffixes {
			if last == suffix {
				words = words[:len(words)-1]
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return strings.Join(words, " ")
}

// MatchKeys returns the normalized keys this organization can be matched
// under (legal name always, trading name when set and distinct).
func (e *ExternalOrganization) MatchKeys() []string {
	keys := []string{NormalizeOrgName(e.LegalName)}
	if e.TradingName != "" {
		trading := NormalizeOrgName(e.TradingName)
		if trading != keys[0] {
			keys = append(keys, trading)
		}
	}
	return keys
}

// DuplicateGroup is a set of external organizations within one tenant that
// normalize to the same name.
type DuplicateGroup struct {
	MatchKey      string                  `json:"match_key"`
	Organizations []*ExternalOrganization `json:"organizations"`
}
