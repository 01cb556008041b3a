package quota

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Limit is an optional integer budget. The zero value is unlimited, which
// keeps "no limit configured" distinct from "limit of zero" without nullable
// arithmetic leaking through the gate.
type Limit struct {
	limited bool
	value   int64
}

func Unlimited() Limit { return Limit{} }

func LimitOf(n int64) Limit { return Limit{limited: true, value: n} }

// LimitFromPtr maps a nullable column to a Limit.
func LimitFromPtr(p *int64) Limit {
	if p == nil {
		return Unlimited()
	}
	return LimitOf(*p)
}

func (l Limit) IsUnlimited() bool { return !l.limited }

// Value returns the budget and whether one is set.
func (l Limit) Value() (int64, bool) { return l.value, l.limited }

// Ptr maps the Limit back to a nullable column value.
func (l Limit) Ptr() *int64 {
	if !l.limited {
		return nil
	}
	v := l.value
	return &v
}

// WouldExceed reports whether used+delta overshoots the budget.
// Always false for an unlimited Limit.
func (l Limit) WouldExceed(used, delta int64) bool {
	return l.limited && used+delta > l.value
}

// Remaining returns the budget left, or nil when unlimited. Never negative.
func (l Limit) Remaining(used int64) *int64 {
	if !l.limited {
		return nil
	}
	r := l.value - used
	if r < 0 {
		r = 0
	}
	return &r
}

// CostLimit is the monetary counterpart of Limit.
type CostLimit struct {
	limited bool
	value   float64
}

func UnlimitedCost() CostLimit { return CostLimit{} }

func CostLimitOf(v float64) CostLimit { return CostLimit{limited: true, value: v} }

func CostLimitFromPtr(p *float64) CostLimit {
	if p == nil {
		return UnlimitedCost()
	}
	return CostLimitOf(*p)
}

func (l CostLimit) IsUnlimited() bool { return !l.limited }

func (l CostLimit) Value() (float64, bool) { return l.value, l.limited }

func (l CostLimit) Ptr() *float64 {
	if !l.limited {
		return nil
	}
	v := l.value
	return &v
}

func (l CostLimit) WouldExceed(used, delta float64) bool {
	return l.limited && used+delta > l.value
}

func (l CostLimit) Remaining(used float64) *float64 {
	if !l.limited {
		return nil
	}
	r := l.value - used
	if r < 0 {
		r = 0
	}
	return &r
}

// Ledger is the per-account running totals row. Counters are only mutated by
// the quota gate and the period rollover.
type Ledger struct {
	AccountID           uuid.UUID
	MonthlyTokenLimit   Limit
	MonthlyRequestLimit Limit
	MonthlyCostLimit    CostLimit
	DailyRequestLimit   Limit
	TokensUsed          int64
	RequestsUsed        int64
	CostUsed            float64
	DailyRequestsUsed   int64
	CurrentPeriodStart  time.Time
	CurrentPeriodEnd    time.Time
	LastDailyReset      time.Time
	UpdatedAt           time.Time
}

// Decision is the outcome of a quota gate check.
type Decision struct {
	Admitted bool
	Reason   string
}

// Denial reasons.
const (
	ReasonMonthlyTokens   = "monthly_token_limit"
	ReasonMonthlyRequests = "monthly_request_limit"
	ReasonMonthlyCost     = "monthly_cost_limit"
	ReasonDailyRequests   = "daily_request_limit"
)

// Decide evaluates whether consuming tokenDelta and costDelta fits the
// ledger's budgets. It performs no mutation; unlimited budgets are skipped.
func Decide(l *Ledger, tokenDelta int64, costDelta float64) Decision {
	if l.MonthlyTokenLimit.WouldExceed(l.TokensUsed, tokenDelta) {
		return Decision{Reason: ReasonMonthlyTokens}
	}
	if l.MonthlyRequestLimit.WouldExceed(l.RequestsUsed, 1) {
		return Decision{Reason: ReasonMonthlyRequests}
	}
	if l.MonthlyCostLimit.WouldExceed(l.CostUsed, costDelta) {
		return Decision{Reason: ReasonMonthlyCost}
	}
	if l.DailyRequestLimit.WouldExceed(l.DailyRequestsUsed, 1) {
		return Decision{Reason: ReasonDailyRequests}
	}
	return Decision{Admitted: true}
}

// UsagePercent returns tokens_used as a percentage of the monthly token
// limit, rounded to two decimals, or nil for unlimited ledgers.
func (l *Ledger) UsagePercent() *float64 {
	limit, ok := l.MonthlyTokenLimit.Value()
	if !ok || limit <= 0 {
		return nil
	}
	p := math.Round(float64(l.TokensUsed)*10000/float64(limit)) / 100
	return &p
}

// Remaining is the remainingQuota response. Nil fields mean unlimited; a
// missing ledger yields the zero value.
type Remaining struct {
	TokensRemaining        *int64     `json:"tokens_remaining"`
	RequestsRemaining      *int64     `json:"requests_remaining"`
	CostRemaining          *float64   `json:"cost_remaining"`
	DailyRequestsRemaining *int64     `json:"daily_requests_remaining"`
	UsagePercent           *float64   `json:"usage_percentage"`
	PeriodEnd              *time.Time `json:"period_end,omitempty"`
}

// RemainingOf computes the remaining budgets for a ledger.
func RemainingOf(l *Ledger) Remaining {
	end := l.CurrentPeriodEnd
	return Remaining{
		TokensRemaining:        l.MonthlyTokenLimit.Remaining(l.TokensUsed),
		RequestsRemaining:      l.MonthlyRequestLimit.Remaining(l.RequestsUsed),
		CostRemaining:          l.MonthlyCostLimit.Remaining(l.CostUsed),
		DailyRequestsRemaining: l.DailyRequestLimit.Remaining(l.DailyRequestsUsed),
		UsagePercent:           l.UsagePercent(),
		PeriodEnd:              &end,
	}
}
