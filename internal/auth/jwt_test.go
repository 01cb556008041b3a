package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testValidator() *TokenValidator {
	return NewTokenValidator(strings.Repeat("s", 32), "witchcraft", 15*time.Minute)
}

func TestTokenValidator_RoundTrip(t *testing.T) {
	v := testValidator()
	accountID := uuid.New().String()

	token, err := v.GenerateAccessToken(accountID, "user@example.com")
	require.NoError(t, err)

	claims, err := v.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, claims.AccountID)
	assert.Equal(t, "user@example.com", claims.Email)
}

func TestTokenValidator_WrongSecret(t *testing.T) {
	v := testValidator()
	token, err := v.GenerateAccessToken(uuid.New().String(), "user@example.com")
	require.NoError(t, err)

	other := NewTokenValidator(strings.Repeat("x", 32), "witchcraft", 15*time.Minute)
	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestTokenValidator_WrongIssuer(t *testing.T) {
	other := NewTokenValidator(strings.Repeat("s", 32), "someone-else", 15*time.Minute)
	token, err := other.GenerateAccessToken(uuid.New().String(), "user@example.com")
	require.NoError(t, err)

	_, err = testValidator().ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestTokenValidator_Expired(t *testing.T) {
	v := NewTokenValidator(strings.Repeat("s", 32), "witchcraft", -1*time.Minute)
	token, err := v.GenerateAccessToken(uuid.New().String(), "user@example.com")
	require.NoError(t, err)

	_, err = v.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestTokenValidator_Garbage(t *testing.T) {
	_, err := testValidator().ValidateAccessToken("not.a.token")
	assert.Error(t, err)
}
