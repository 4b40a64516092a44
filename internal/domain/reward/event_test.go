package reward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillpath/progression-engine/internal/domain/shared"
)

func TestNewEvent(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))

	e, err := NewEvent(Grant{
		UserID:      "u1",
		Amount:      25,
		Source:      SourceExam,
		SourceID:    " exam-7 ",
		Description: "Exam passed",
	}, now)

	require.NoError(t, err)
	assert.Equal(t, shared.UserID("u1"), e.UserID)
	assert.Equal(t, int64(25), e.Amount)
	assert.Equal(t, "exam-7", e.SourceID)
	assert.True(t, e.HasSourceID())
	assert.Equal(t, time.UTC, e.CreatedAt.Location())
	assert.NotEqual(t, [16]byte{}, [16]byte(e.ID))
}

func TestNewEvent_ZeroAmountIsLegal(t *testing.T) {
	e, err := NewEvent(Grant{UserID: "u1", Amount: 0, Source: SourceBonus}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, e.Amount)
	assert.False(t, e.HasSourceID())
}

func TestNewEvent_Rejections(t *testing.T) {
	_, err := NewEvent(Grant{UserID: "u1", Amount: -1, Source: SourcePractice}, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvariantViolation)

	_, err = NewEvent(Grant{UserID: "u1", Amount: 1, Source: "lottery"}, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvariantViolation)

	_, err = NewEvent(Grant{UserID: "", Amount: 1, Source: SourcePractice}, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidID)
}

func TestAllSources(t *testing.T) {
	assert.Len(t, AllSources(), 6)
	for _, s := range AllSources() {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Source("unknown").IsValid())
}
