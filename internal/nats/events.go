package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "WITCHCRAFT_EVENTS"
)

// Subject constants.
const (
	SubjectUsageRecorded = "witchcraft.events.usage"
	SubjectAlertCreated  = "witchcraft.events.alert"
)

// UsageRecordedEvent is published after a usage event is committed, for
// downstream analytics consumers.
type UsageRecordedEvent struct {
	EventID     uuid.UUID `json:"event_id"`
	AccountID   uuid.UUID `json:"account_id"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	TotalTokens int64     `json:"total_tokens"`
	TotalCost   float64   `json:"total_cost"`
	Success     bool      `json:"success"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlertCreatedEvent is published when the alert monitor creates a usage
// alert; the external notification channel delivers it to the user.
type AlertCreatedEvent struct {
	AlertID     uuid.UUID `json:"alert_id"`
	AccountID   uuid.UUID `json:"account_id"`
	AlertType   string    `json:"alert_type"`
	Threshold   int       `json:"threshold,omitempty"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Priority    int       `json:"priority"`
	ActionURL   string    `json:"action_url,omitempty"`
	ActionLabel string    `json:"action_label,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
