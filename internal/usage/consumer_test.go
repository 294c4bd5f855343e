package usage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/snaplist-app/snaplist/internal/nats"
)

func TestUsageEventDeserialization(t *testing.T) {
	userID := uuid.New()
	listingID := uuid.New()

	event := inats.UsageEvent{
		UserID:     &userID,
		Identifier: "user:" + userID.String(),
		Action:     "generate",
		Allowed:    true,
		ListingID:  listingID.String(),
		IPAddress:  "203.0.113.7",
		Timestamp:  time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded inats.UsageEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	require.NotNil(t, decoded.UserID)
	assert.Equal(t, userID, *decoded.UserID)
	assert.Equal(t, "user:"+userID.String(), decoded.Identifier)
	assert.Equal(t, "generate", decoded.Action)
	assert.True(t, decoded.Allowed)
	assert.Equal(t, listingID.String(), decoded.ListingID)
	assert.Equal(t, "203.0.113.7", decoded.IPAddress)
}

func TestConvertEventToRecord_Allowed(t *testing.T) {
	userID := uuid.New()
	listingID := uuid.New()

	event := inats.UsageEvent{
		UserID:     &userID,
		Identifier: "user:" + userID.String(),
		Action:     "generate",
		Allowed:    true,
		ListingID:  listingID.String(),
		Timestamp:  time.Now().UTC(),
	}

	rec := convertEventToRecord(event)

	require.NotNil(t, rec.UserID)
	assert.Equal(t, userID, *rec.UserID)
	assert.Equal(t, "generate", rec.Action)
	assert.True(t, rec.Allowed)
	assert.Empty(t, rec.ErrorCode)
	require.NotNil(t, rec.ListingID)
	assert.Equal(t, listingID, *rec.ListingID)
	assert.NotEqual(t, uuid.Nil, rec.ID)
}

func TestConvertEventToRecord_AnonymousDenied(t *testing.T) {
	event := inats.UsageEvent{
		Identifier: "ip:198.51.100.2",
		Action:     "generate",
		Allowed:    false,
		ErrorCode:  "ANONYMOUS_DAILY_LIMIT_EXCEEDED",
		IPAddress:  "198.51.100.2",
		Timestamp:  time.Now().UTC(),
	}

	rec := convertEventToRecord(event)

	assert.Nil(t, rec.UserID)
	assert.Nil(t, rec.ListingID)
	assert.False(t, rec.Allowed)
	assert.Equal(t, "ANONYMOUS_DAILY_LIMIT_EXCEEDED", rec.ErrorCode)
	assert.Equal(t, "ip:198.51.100.2", rec.Identifier)
}

func TestConvertEventToRecord_InvalidListingID(t *testing.T) {
	event := inats.UsageEvent{
		Identifier: "ip:198.51.100.2",
		Action:     "generate",
		Allowed:    true,
		ListingID:  "not-a-uuid",
		Timestamp:  time.Now().UTC(),
	}

	rec := convertEventToRecord(event)
	assert.Nil(t, rec.ListingID)
}
