//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminAccountSyncProvisionsLedger(t *testing.T) {
	env := SetupTestEnv(t)

	id := uuid.New()
	resp := DoAdminRequest(t, env, "POST", "/api/v1/admin/accounts", map[string]any{
		"id":              id.String(),
		"email":           "morgan@example.test",
		"full_name":       "Morgan Vey",
		"github_username": "morganv",
		"tier":            "pro",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := ParseData(t, resp)
	assert.Equal(t, "pro", data["tier"])

	// The ledger exists with the pro tier's limits.
	led, err := env.QuotaRepo.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, led)
	limit, ok := led.MonthlyTokenLimit.Value()
	require.True(t, ok)
	assert.Equal(t, int64(10_000_000), limit)

	// Re-syncing refreshes the profile without resetting the ledger.
	resp = DoAdminRequest(t, env, "POST", "/api/v1/admin/accounts", map[string]any{
		"id":    id.String(),
		"email": "morgan+renamed@example.test",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = ParseData(t, resp)
	assert.Equal(t, "morgan+renamed@example.test", data["email"])
	assert.Equal(t, "pro", data["tier"])
}

func TestAPIKeyRoundTrip(t *testing.T) {
	env := SetupTestEnv(t)
	accountID, token := EnsureAccount(t, env, "free")

	resp := DoRequest(t, env, "POST", "/api/v1/account/apikeys",
		map[string]any{"label": "ci"}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := ParseData(t, resp)
	rawKey, ok := data["key"].(string)
	require.True(t, ok)
	require.NotEmpty(t, rawKey)

	// The raw key authenticates in place of a bearer token.
	req, err := http.NewRequest("GET", env.Server.URL+"/api/v1/account/", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", rawKey)
	keyResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, keyResp.StatusCode)
	account := ParseData(t, keyResp)
	assert.Equal(t, accountID.String(), account["id"])

	// A mangled key does not.
	req.Header.Set("X-API-Key", rawKey+"x")
	badResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, badResp.StatusCode)
	badResp.Body.Close()
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := SetupTestEnv(t)

	resp := DoRequest(t, env, "GET", "/api/v1/quota/", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = DoRequest(t, env, "GET", "/api/v1/quota/", nil, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}
