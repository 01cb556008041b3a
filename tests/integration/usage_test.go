//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insanelabs/witchcraft/internal/usage"
)

// Rollup counters always equal the sum of the underlying events.
func TestUsageRollupConservation(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, token := EnsureAccount(t, env, "pro")

	events := []map[string]any{
		{"provider": "anthropic", "model": "claude-sonnet-4", "mode": "agent",
			"prompt_tokens": 1200, "completion_tokens": 300,
			"prompt_cost": 0.0036, "completion_cost": 0.0045,
			"latency_ms": 800, "success": true},
		{"provider": "anthropic", "model": "claude-sonnet-4", "mode": "agent",
			"prompt_tokens": 500, "completion_tokens": 100,
			"prompt_cost": 0.0015, "completion_cost": 0.0015,
			"latency_ms": 450, "success": true},
		{"provider": "anthropic", "model": "claude-sonnet-4", "mode": "agent",
			"prompt_tokens": 200, "completion_tokens": 0,
			"latency_ms": 9000, "success": false,
			"error_message": "upstream timeout"},
	}
	for _, e := range events {
		resp := DoRequest(t, env, "POST", "/api/v1/usage/", e, token)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp := DoRequest(t, env, "GET", "/api/v1/usage/daily?days=1", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rollups []usage.DailyRollup
	decodeJSON(t, resp, &rollups)
	require.Len(t, rollups, 1)

	ru := rollups[0]
	assert.Equal(t, int64(3), ru.RequestCount)
	assert.Equal(t, int64(2300), ru.TotalTokens)
	assert.Equal(t, int64(1900), ru.PromptTokens)
	assert.Equal(t, int64(400), ru.CompletionTokens)
	assert.InDelta(t, 0.0111, ru.TotalCost, 1e-9)
	assert.Equal(t, int64(2), ru.SuccessCount)
	assert.Equal(t, int64(1), ru.ErrorCount)
	// Last write wins, not an average.
	assert.Equal(t, int64(9000), ru.LastLatencyMs)

	// Monthly mirrors the same totals.
	var monthly usage.MonthlyRollup
	err := env.Pool.QueryRow(context.Background(),
		`SELECT request_count, total_tokens, total_cost, success_count, error_count
		 FROM usage_monthly WHERE account_id = $1`, accountID).
		Scan(&monthly.RequestCount, &monthly.TotalTokens, &monthly.TotalCost,
			&monthly.SuccessCount, &monthly.ErrorCount)
	require.NoError(t, err)
	assert.Equal(t, int64(3), monthly.RequestCount)
	assert.Equal(t, int64(2300), monthly.TotalTokens)
	assert.InDelta(t, 0.0111, monthly.TotalCost, 1e-9)
}

func TestUsageValidationRejectsBadEvents(t *testing.T) {
	env := SetupTestEnv(t)
	_, token := EnsureAccount(t, env, "free")

	bad := []map[string]any{
		{"model": "claude-sonnet-4"},                                        // missing provider
		{"provider": "anthropic"},                                           // missing model
		{"provider": "anthropic", "model": "m", "prompt_tokens": -5},        // negative tokens
		{"provider": "anthropic", "model": "m", "latency_ms": -1},           // negative latency
		{"provider": "anthropic", "model": "m", "completion_cost": -0.0001}, // negative cost
	}
	for _, e := range bad {
		resp := DoRequest(t, env, "POST", "/api/v1/usage/", e, token)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestActivitySummaryIncludesSessions(t *testing.T) {
	env := SetupTestEnv(t)
	_, token := EnsureAccount(t, env, "pro")

	// One live session with a couple of messages
	resp := DoRequest(t, env, "POST", "/api/v1/sessions/",
		map[string]any{"title": "debugging", "model": "claude-sonnet-4"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session map[string]any
	decodeJSON(t, resp, &session)
	sessionID := session["id"].(string)

	for _, msg := range []map[string]any{
		{"role": "user", "content": "why does this test flake?"},
		{"role": "assistant", "content": "the clock is mocked twice"},
	} {
		resp := DoRequest(t, env, "POST", "/api/v1/sessions/"+sessionID+"/messages", msg, token)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		resp.Body.Close()
	}

	resp = DoRequest(t, env, "POST", "/api/v1/usage/",
		map[string]any{"session_id": sessionID, "provider": "anthropic",
			"model": "claude-sonnet-4", "prompt_tokens": 50, "completion_tokens": 20,
			"success": true}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/usage/summary?days=7", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary usage.Summary
	decodeJSON(t, resp, &summary)

	assert.Equal(t, 7, summary.Days)
	assert.Equal(t, int64(1), summary.Requests)
	assert.Equal(t, int64(70), summary.TotalTokens)
	assert.Equal(t, int64(1), summary.ActiveSessions)

	// Ending the session removes it from the active count.
	resp = DoRequest(t, env, "POST", "/api/v1/sessions/"+sessionID+"/end", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/usage/summary?days=7", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeJSON(t, resp, &summary)
	assert.Equal(t, int64(0), summary.ActiveSessions)
}
