package recipient

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestAgreementIsActive(t *testing.T) {
	orgID := uuid.New()
	recipientID := uuid.New()

	a := NewAgreement(orgID, recipientID, AgreementDPA)
	assert.False(t, a.IsActive(), "draft agreements are not in force")

	a.Status = AgreementActive
	assert.True(t, a.IsActive())

	past := time.Now().Add(-24 * time.Hour)
	a.ExpiresAt = &past
	assert.False(t, a.IsActive(), "expiry date overrides status")
}

func TestAgreementExpiresWithin(t *testing.T) {
	a := NewAgreement(uuid.New(), uuid.New(), AgreementDPA)
	a.Status = AgreementActive

	assert.False(t, a.ExpiresWithin(30*24*time.Hour), "open-ended agreements never near expiry")

	soon := time.Now().Add(10 * 24 * time.Hour)
	a.ExpiresAt = &soon
	assert.True(t, a.ExpiresWithin(30*24*time.Hour))
	assert.False(t, a.ExpiresWithin(24*time.Hour))
}
