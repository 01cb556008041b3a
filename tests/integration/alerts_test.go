//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insanelabs/witchcraft/internal/alerts"
)

func TestThresholdAlertsFireOncePerPeriod(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, token := EnsureAccount(t, env, "free")

	tokens := int64(1000)
	SetLedgerLimits(t, env, accountID, &tokens, nil, nil, nil)

	// 85% crosses the 80 threshold.
	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 850, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err := env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alerts.TypeQuotaWarning, list[0].Type)
	assert.Equal(t, 80, list[0].Threshold)

	// Staying above 80 does not re-fire it; reaching 90 adds one more.
	dec, err = env.QuotaSvc.TryConsume(context.Background(), accountID, 60, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err = env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	require.Len(t, list, 2)

	// Exhausting the budget fires quota_exceeded exactly once.
	dec, err = env.QuotaSvc.TryConsume(context.Background(), accountID, 90, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err = env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	require.Len(t, list, 3)

	counts := map[string]int{}
	for _, a := range list {
		counts[a.Type]++
	}
	assert.Equal(t, 2, counts[alerts.TypeQuotaWarning])
	assert.Equal(t, 1, counts[alerts.TypeQuotaExceeded])

	// The HTTP listing agrees.
	resp := DoRequest(t, env, "GET", "/api/v1/alerts/", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fetched []alerts.Alert
	decodeJSON(t, resp, &fetched)
	assert.Len(t, fetched, 3)
}

func TestSkippingThresholdsRaisesAllCrossed(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, _ := EnsureAccount(t, env, "free")

	tokens := int64(1000)
	SetLedgerLimits(t, env, accountID, &tokens, nil, nil, nil)

	// One jump from 0 to 100% raises 80, 90 and 100 together.
	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 1000, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err := env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestAlertReadAndDismiss(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, token := EnsureAccount(t, env, "free")

	tokens := int64(100)
	SetLedgerLimits(t, env, accountID, &tokens, nil, nil, nil)

	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 90, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err := env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	require.Len(t, list, 2) // 80 and 90

	resp := DoRequest(t, env, "GET", "/api/v1/alerts/unread", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseData(t, resp)
	assert.EqualValues(t, 2, data["unread"])

	alertID := list[0].ID.String()
	resp = DoRequest(t, env, "POST", "/api/v1/alerts/"+alertID+"/read", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Reading twice is a 404: nothing left to mark.
	resp = DoRequest(t, env, "POST", "/api/v1/alerts/"+alertID+"/read", nil, token)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "POST", "/api/v1/alerts/"+alertID+"/dismiss", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Dismissed alerts drop out of the default listing.
	list, err = env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = env.AlertRepo.List(context.Background(), accountID, true)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestDailyBudgetExhaustionRaisesRateLimitAlert(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, _ := EnsureAccount(t, env, "free")

	daily := int64(2)
	SetLedgerLimits(t, env, accountID, nil, nil, &daily, nil)

	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 10, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err := env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	assert.Empty(t, list, "one request of two should not alert")

	// Spending the last daily request raises the alert.
	dec, err = env.QuotaSvc.TryConsume(context.Background(), accountID, 10, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err = env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alerts.TypeRateLimit, list[0].Type)

	// Denied requests against the spent budget do not duplicate it.
	dec, err = env.QuotaSvc.TryConsume(context.Background(), accountID, 10, 0)
	require.NoError(t, err)
	require.False(t, dec.Admitted)
	assert.Equal(t, "daily_request_limit", dec.Reason)

	list, err = env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDeniedGateStillAlertsSpentDailyBudget(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, _ := EnsureAccount(t, env, "free")

	// The budget is already spent when it drops to zero, so the first
	// denial has to raise the alert itself.
	daily := int64(0)
	SetLedgerLimits(t, env, accountID, nil, nil, &daily, nil)

	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 10, 0)
	require.NoError(t, err)
	require.False(t, dec.Admitted)

	list, err := env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, alerts.TypeRateLimit, list[0].Type)
}

func TestAnotherAccountCannotTouchAlerts(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, _ := EnsureAccount(t, env, "free")
	_, otherToken := EnsureAccount(t, env, "free")

	tokens := int64(100)
	SetLedgerLimits(t, env, accountID, &tokens, nil, nil, nil)

	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 100, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	list, err := env.AlertRepo.List(context.Background(), accountID, false)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	resp := DoRequest(t, env, "POST", "/api/v1/alerts/"+list[0].ID.String()+"/read", nil, otherToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
