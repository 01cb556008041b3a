package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inats "github.com/insanelabs/witchcraft/internal/nats"
)

func TestAlertCreatedEventDeserialization(t *testing.T) {
	alertID := uuid.New()
	accountID := uuid.New()

	event := inats.AlertCreatedEvent{
		AlertID:     alertID,
		AccountID:   accountID,
		AlertType:   "quota_warning",
		Threshold:   80,
		Title:       "Usage at 80% of monthly quota",
		Message:     "You have used 81.4% of your monthly token quota.",
		Priority:    1,
		ActionURL:   "/settings/billing",
		ActionLabel: "Review usage",
		Timestamp:   time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded inats.AlertCreatedEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, alertID, decoded.AlertID)
	assert.Equal(t, accountID, decoded.AccountID)
	assert.Equal(t, "quota_warning", decoded.AlertType)
	assert.Equal(t, 80, decoded.Threshold)
	assert.Equal(t, "/settings/billing", decoded.ActionURL)
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := NewLogNotifier(slog.Default())

	err := n.Notify(context.Background(), inats.AlertCreatedEvent{
		AlertID:   uuid.New(),
		AccountID: uuid.New(),
		AlertType: "rate_limit",
		Title:     "Rate limit reached",
		Priority:  2,
	})

	assert.NoError(t, err)
}
