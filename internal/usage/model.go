package usage

import (
	"time"

	"github.com/google/uuid"
)

// Event is one immutable record of a metered operation. Failed operations
// are recorded too (Success=false) and feed error-rate analytics.
type Event struct {
	ID               uuid.UUID  `json:"id"`
	AccountID        uuid.UUID  `json:"account_id"`
	SessionID        *uuid.UUID `json:"session_id,omitempty"`
	Provider         string     `json:"provider"`
	Model            string     `json:"model"`
	Mode             string     `json:"mode,omitempty"`
	PromptTokens     int64      `json:"prompt_tokens"`
	CompletionTokens int64      `json:"completion_tokens"`
	TotalTokens      int64      `json:"total_tokens"`
	PromptCost       float64    `json:"prompt_cost"`
	CompletionCost   float64    `json:"completion_cost"`
	TotalCost        float64    `json:"total_cost"`
	LatencyMs        int64      `json:"latency_ms"`
	Success          bool       `json:"success"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// RecordInput is the caller-supplied shape of a usage event. Totals are
// always derived from the components, never trusted from the caller.
type RecordInput struct {
	AccountID        uuid.UUID  `json:"-"`
	SessionID        *uuid.UUID `json:"session_id" validate:"omitempty"`
	Provider         string     `json:"provider" validate:"required,max=64"`
	Model            string     `json:"model" validate:"required,max=128"`
	Mode             string     `json:"mode" validate:"max=32"`
	PromptTokens     int64      `json:"prompt_tokens" validate:"gte=0"`
	CompletionTokens int64      `json:"completion_tokens" validate:"gte=0"`
	PromptCost       float64    `json:"prompt_cost" validate:"gte=0"`
	CompletionCost   float64    `json:"completion_cost" validate:"gte=0"`
	LatencyMs        int64      `json:"latency_ms" validate:"gte=0"`
	Success          bool       `json:"success"`
	ErrorMessage     string     `json:"error_message" validate:"max=2048"`
}

// Event builds the immutable event from the input, deriving the totals.
func (in *RecordInput) Event() *Event {
	return &Event{
		ID:               uuid.New(),
		AccountID:        in.AccountID,
		SessionID:        in.SessionID,
		Provider:         in.Provider,
		Model:            in.Model,
		Mode:             in.Mode,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		TotalTokens:      in.PromptTokens + in.CompletionTokens,
		PromptCost:       in.PromptCost,
		CompletionCost:   in.CompletionCost,
		TotalCost:        in.PromptCost + in.CompletionCost,
		LatencyMs:        in.LatencyMs,
		Success:          in.Success,
		ErrorMessage:     in.ErrorMessage,
		CreatedAt:        time.Now().UTC(),
	}
}

// DailyRollup is one aggregate row keyed by
// (account, day, provider, model, mode). Counters always equal the sum of
// the matching events; LastLatencyMs is last-write, not an average.
type DailyRollup struct {
	AccountID        uuid.UUID `json:"account_id"`
	Day              time.Time `json:"day"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	Mode             string    `json:"mode,omitempty"`
	RequestCount     int64     `json:"request_count"`
	TotalTokens      int64     `json:"total_tokens"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalCost        float64   `json:"total_cost"`
	SuccessCount     int64     `json:"success_count"`
	ErrorCount       int64     `json:"error_count"`
	LastLatencyMs    int64     `json:"last_latency_ms"`
}

// MonthlyRollup is the month-granular aggregate keyed by
// (account, year, month, provider, model).
type MonthlyRollup struct {
	AccountID        uuid.UUID `json:"account_id"`
	Year             int       `json:"year"`
	Month            int       `json:"month"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	RequestCount     int64     `json:"request_count"`
	TotalTokens      int64     `json:"total_tokens"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalCost        float64   `json:"total_cost"`
	SuccessCount     int64     `json:"success_count"`
	ErrorCount       int64     `json:"error_count"`
}

// Summary is the activitySummary response over a lookback window.
type Summary struct {
	Days              int     `json:"days"`
	Requests          int64   `json:"requests"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalCost         float64 `json:"total_cost"`
	ActiveSessions    int64   `json:"active_sessions"`
	AvgSessionMinutes float64 `json:"avg_session_minutes"`
}
