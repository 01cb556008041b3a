package alerts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert types.
const (
	TypeQuotaWarning  = "quota_warning"
	TypeQuotaExceeded = "quota_exceeded"
	TypeRateLimit     = "rate_limit"
)

// Thresholds are the monthly usage percentages that raise an alert. The
// 100% crossing is a quota_exceeded alert, the others are warnings.
var Thresholds = []int{80, 90, 100}

// Alert is a persisted usage notification. At most one alert exists per
// (account, type, threshold, period); rate_limit alerts dedupe per day
// instead of per billing period.
type Alert struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	Type        string     `json:"type"`
	Threshold   int        `json:"threshold,omitempty"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Priority    int        `json:"priority"`
	ActionURL   string     `json:"action_url,omitempty"`
	ActionLabel string     `json:"action_label,omitempty"`
	PeriodStart time.Time  `json:"period_start"`
	Read        bool       `json:"read"`
	Dismissed   bool       `json:"dismissed"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// typeForThreshold maps a crossed threshold to its alert type.
func typeForThreshold(threshold int) string {
	if threshold >= 100 {
		return TypeQuotaExceeded
	}
	return TypeQuotaWarning
}

// priorityForThreshold ranks alerts for the notification UI. Exceeded is
// urgent, 90% is high, 80% is normal.
func priorityForThreshold(threshold int) int {
	switch {
	case threshold >= 100:
		return 3
	case threshold >= 90:
		return 2
	default:
		return 1
	}
}

func newThresholdAlert(accountID uuid.UUID, threshold int, percent float64, periodStart time.Time) *Alert {
	a := &Alert{
		ID:          uuid.New(),
		AccountID:   accountID,
		Type:        typeForThreshold(threshold),
		Threshold:   threshold,
		Priority:    priorityForThreshold(threshold),
		ActionURL:   "/settings/billing",
		ActionLabel: "Review usage",
		PeriodStart: periodStart,
		CreatedAt:   time.Now().UTC(),
	}
	if threshold >= 100 {
		a.Title = "Monthly quota exceeded"
		a.Message = "You have used your entire monthly token quota. Further requests will be denied until the period resets or you upgrade your plan."
		a.ActionLabel = "Upgrade plan"
	} else {
		a.Title = fmt.Sprintf("Usage at %d%% of monthly quota", threshold)
		a.Message = fmt.Sprintf("You have used %.1f%% of your monthly token quota.", percent)
	}
	return a
}

func newRateLimitAlert(accountID uuid.UUID, day time.Time) *Alert {
	return &Alert{
		ID:          uuid.New(),
		AccountID:   accountID,
		Type:        TypeRateLimit,
		Title:       "Rate limit reached",
		Message:     "You hit the per-minute request limit. Slow down or batch your requests.",
		Priority:    2,
		PeriodStart: day,
		CreatedAt:   time.Now().UTC(),
	}
}

// reachedThresholds returns every threshold the usage percentage has reached,
// in ascending order. The repository's keyed insert suppresses the ones that
// already fired this period, so re-reporting a reached threshold is cheap.
func reachedThresholds(percent float64) []int {
	var reached []int
	for _, t := range Thresholds {
		if percent >= float64(t) {
			reached = append(reached, t)
		}
	}
	return reached
}
