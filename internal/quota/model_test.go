package quota

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitedLedger(tokenLimit, tokensUsed int64) *Ledger {
	now := time.Now()
	return &Ledger{
		AccountID:          uuid.New(),
		MonthlyTokenLimit:  LimitOf(tokenLimit),
		TokensUsed:         tokensUsed,
		CurrentPeriodStart: now.AddDate(0, 0, -10),
		CurrentPeriodEnd:   now.AddDate(0, 0, 20),
		LastDailyReset:     now,
	}
}

func TestLimit_ZeroValueIsUnlimited(t *testing.T) {
	var l Limit
	assert.True(t, l.IsUnlimited())
	assert.False(t, l.WouldExceed(1<<40, 1<<40))
	assert.Nil(t, l.Remaining(123))
}

func TestLimit_WouldExceed(t *testing.T) {
	l := LimitOf(100)
	assert.False(t, l.WouldExceed(50, 50), "exactly at the limit fits")
	assert.True(t, l.WouldExceed(50, 51))
	assert.True(t, l.WouldExceed(100, 1))
	assert.False(t, l.WouldExceed(100, 0))
}

func TestLimit_RemainingNeverNegative(t *testing.T) {
	l := LimitOf(100)
	r := l.Remaining(150)
	require.NotNil(t, r)
	assert.Equal(t, int64(0), *r)
}

func TestLimit_PtrRoundTrip(t *testing.T) {
	assert.Nil(t, Unlimited().Ptr())

	p := LimitOf(42).Ptr()
	require.NotNil(t, p)
	assert.Equal(t, int64(42), *p)

	assert.Equal(t, LimitOf(42), LimitFromPtr(p))
	assert.Equal(t, Unlimited(), LimitFromPtr(nil))
}

func TestCostLimit_WouldExceed(t *testing.T) {
	l := CostLimitOf(5.00)
	assert.False(t, l.WouldExceed(4.50, 0.50))
	assert.True(t, l.WouldExceed(4.50, 0.51))
	assert.False(t, UnlimitedCost().WouldExceed(1e9, 1e9))
}

func TestDecide_TokenLimit(t *testing.T) {
	// 900/1000 used: 150 does not fit, 50 does.
	led := limitedLedger(1000, 900)

	d := Decide(led, 150, 0)
	assert.False(t, d.Admitted)
	assert.Equal(t, ReasonMonthlyTokens, d.Reason)

	d = Decide(led, 50, 0)
	assert.True(t, d.Admitted)
	assert.Empty(t, d.Reason)
}

func TestDecide_UnlimitedAlwaysAdmits(t *testing.T) {
	led := limitedLedger(0, 0)
	led.MonthlyTokenLimit = Unlimited()
	led.TokensUsed = 1 << 50

	d := Decide(led, 1<<40, 1e6)
	assert.True(t, d.Admitted)
}

func TestDecide_CostLimit(t *testing.T) {
	led := limitedLedger(1000, 0)
	led.MonthlyCostLimit = CostLimitOf(5.00)
	led.CostUsed = 4.99

	d := Decide(led, 10, 0.02)
	assert.False(t, d.Admitted)
	assert.Equal(t, ReasonMonthlyCost, d.Reason)
}

func TestDecide_RequestLimits(t *testing.T) {
	led := limitedLedger(1000, 0)
	led.MonthlyRequestLimit = LimitOf(10)
	led.RequestsUsed = 10

	d := Decide(led, 1, 0)
	assert.False(t, d.Admitted)
	assert.Equal(t, ReasonMonthlyRequests, d.Reason)

	led.RequestsUsed = 9
	led.DailyRequestLimit = LimitOf(3)
	led.DailyRequestsUsed = 3

	d = Decide(led, 1, 0)
	assert.False(t, d.Admitted)
	assert.Equal(t, ReasonDailyRequests, d.Reason)
}

func TestUsagePercent(t *testing.T) {
	led := limitedLedger(500_000, 450_000)
	p := led.UsagePercent()
	require.NotNil(t, p)
	assert.Equal(t, 90.00, *p)

	led.TokensUsed = 123_456
	p = led.UsagePercent()
	require.NotNil(t, p)
	assert.Equal(t, 24.69, *p)

	led.MonthlyTokenLimit = Unlimited()
	assert.Nil(t, led.UsagePercent())
}

func TestRemainingOf(t *testing.T) {
	led := limitedLedger(500_000, 450_000)
	led.MonthlyRequestLimit = LimitOf(1000)
	led.RequestsUsed = 400
	led.MonthlyCostLimit = CostLimitOf(5.00)
	led.CostUsed = 1.25

	r := RemainingOf(led)
	require.NotNil(t, r.TokensRemaining)
	assert.Equal(t, int64(50_000), *r.TokensRemaining)
	require.NotNil(t, r.RequestsRemaining)
	assert.Equal(t, int64(600), *r.RequestsRemaining)
	require.NotNil(t, r.CostRemaining)
	assert.InDelta(t, 3.75, *r.CostRemaining, 1e-9)
	require.NotNil(t, r.UsagePercent)
	assert.Equal(t, 90.00, *r.UsagePercent)
	assert.Nil(t, r.DailyRequestsRemaining, "no daily limit set")
}

func TestRemainingOf_UnlimitedTier(t *testing.T) {
	led := limitedLedger(0, 999_999_999)
	led.MonthlyTokenLimit = Unlimited()

	r := RemainingOf(led)
	assert.Nil(t, r.TokensRemaining)
	assert.Nil(t, r.UsagePercent)
}
