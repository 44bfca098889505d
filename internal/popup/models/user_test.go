package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRecord_Unmarshal(t *testing.T) {
	data := []byte(`{
		"paid": true,
		"paidAt": "2024-05-01T10:30:00Z",
		"installedAt": "2024-01-02T00:00:00Z",
		"trialStartedAt": null,
		"email": "x@example.com",
		"subscriptionStatus": "active",
		"subscriptionCancelAt": "2024-09-01T00:00:00Z"
	}`)

	var u UserRecord
	require.NoError(t, json.Unmarshal(data, &u))

	assert.True(t, u.Paid)
	require.NotNil(t, u.PaidAt)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC), u.PaidAt.UTC())
	assert.Nil(t, u.TrialStartedAt)

	// Arbitrary extra fields pass through; date-time-looking strings are
	// promoted to instants.
	assert.Equal(t, "x@example.com", u.Extra["email"])
	assert.Equal(t, "active", u.Extra["subscriptionStatus"])
	cancelAt, ok := u.Extra["subscriptionCancelAt"].(time.Time)
	require.True(t, ok)
	assert.Equal(t, 2024, cancelAt.Year())
}

func TestUserRecord_LegacyZonelessInstantIsUTC(t *testing.T) {
	var u UserRecord
	require.NoError(t, json.Unmarshal([]byte(`{"paid":false,"paidAt":"2023-03-04T05:06:07"}`), &u))
	require.NotNil(t, u.PaidAt)
	assert.Equal(t, time.Date(2023, 3, 4, 5, 6, 7, 0, time.UTC), u.PaidAt.UTC())
}

func TestUserRecord_RoundTrip(t *testing.T) {
	paidAt := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	u := UserRecord{
		Paid:   true,
		PaidAt: &paidAt,
		Extra:  map[string]any{"plan": "clipsmart-pro"},
	}

	data, err := json.Marshal(u)
	require.NoError(t, err)

	var back UserRecord
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, back.Paid)
	require.NotNil(t, back.PaidAt)
	assert.True(t, back.PaidAt.Equal(paidAt))
	assert.Nil(t, back.TrialStartedAt)
	assert.Equal(t, "clipsmart-pro", back.Extra["plan"])
}

func TestParseInstant_Invalid(t *testing.T) {
	_, err := ParseInstant("not-a-date")
	assert.Error(t, err)
}
