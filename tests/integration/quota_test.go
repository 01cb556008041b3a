//go:build integration

package integration

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insanelabs/witchcraft/internal/quota"
)

func TestQuotaGateAdmitsAndDenies(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, token := EnsureAccount(t, env, "free")

	tokens := int64(1000)
	SetLedgerLimits(t, env, accountID, &tokens, nil, nil, nil)

	// 900 of 1000 tokens used
	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 900, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	// 150 more does not fit
	resp := DoRequest(t, env, "POST", "/api/v1/quota/consume",
		map[string]any{"tokens": 150}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseData(t, resp)
	assert.Equal(t, false, result["admitted"])
	assert.Equal(t, "monthly_token_limit", result["reason"])

	// 50 still fits exactly
	resp = DoRequest(t, env, "POST", "/api/v1/quota/consume",
		map[string]any{"tokens": 50}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result = ParseData(t, resp)
	assert.Equal(t, true, result["admitted"])
}

func TestQuotaDenialLeavesStateUnchanged(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, _ := EnsureAccount(t, env, "free")

	tokens := int64(100)
	SetLedgerLimits(t, env, accountID, &tokens, nil, nil, nil)

	before, err := env.QuotaRepo.Get(context.Background(), accountID)
	require.NoError(t, err)

	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 500, 0)
	require.NoError(t, err)
	require.False(t, dec.Admitted)

	after, err := env.QuotaRepo.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, before.TokensUsed, after.TokensUsed)
	assert.Equal(t, before.RequestsUsed, after.RequestsUsed)
	assert.Equal(t, before.CostUsed, after.CostUsed)
	assert.Equal(t, before.DailyRequestsUsed, after.DailyRequestsUsed)
}

// Concurrent consumers never overshoot the budget: the row lock serializes
// gate checks per account.
func TestQuotaGateConcurrencyStaysWithinBudget(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, _ := EnsureAccount(t, env, "free")

	tokens := int64(1000)
	SetLedgerLimits(t, env, accountID, &tokens, nil, nil, nil)

	const workers = 50
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 100, 0)
			if err == nil && dec.Admitted {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), admitted.Load())

	led, err := env.QuotaRepo.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), led.TokensUsed)
	assert.LessOrEqual(t, led.TokensUsed, int64(1000))
}

func TestUnlimitedTierNeverDenies(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, token := EnsureAccount(t, env, "unlimited")

	for i := 0; i < 5; i++ {
		dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 10_000_000, 999)
		require.NoError(t, err)
		assert.True(t, dec.Admitted)
	}

	resp := DoRequest(t, env, "GET", "/api/v1/quota/", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseData(t, resp)
	assert.Nil(t, result["tokens_remaining"])
	assert.Nil(t, result["usage_percentage"])
}

func TestRemainingQuotaArithmetic(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, token := EnsureAccount(t, env, "free")

	tokens := int64(500_000)
	requests := int64(1_000)
	SetLedgerLimits(t, env, accountID, &tokens, &requests, nil, nil)

	dec, err := env.QuotaSvc.TryConsume(context.Background(), accountID, 450_000, 0)
	require.NoError(t, err)
	require.True(t, dec.Admitted)

	resp := DoRequest(t, env, "GET", "/api/v1/quota/", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := ParseData(t, resp)
	assert.EqualValues(t, 50_000, result["tokens_remaining"])
	assert.EqualValues(t, 999, result["requests_remaining"])
	assert.EqualValues(t, 90.0, result["usage_percentage"])
}

func TestConsumeWithoutLedgerIsNotFound(t *testing.T) {
	env := SetupTestEnv(t)

	// An account that was never ensured has no ledger. The gate refuses
	// rather than admitting by default.
	_, err := env.QuotaSvc.TryConsume(context.Background(), uuid.New(), 10, 0)
	require.ErrorIs(t, err, quota.ErrLedgerNotFound)
}
