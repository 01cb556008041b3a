package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are the claims carried by access tokens issued by the external
// identity provider. Only the account id and email are consumed here.
type AccessClaims struct {
	AccountID string `json:"uid"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// TokenValidator verifies externally issued access tokens against the shared
// signing secret. This service never issues tokens to end users.
type TokenValidator struct {
	secret []byte
	issuer string
	expiry time.Duration
}

func NewTokenValidator(secret, issuer string, expiry time.Duration) *TokenValidator {
	return &TokenValidator{
		secret: []byte(secret),
		issuer: issuer,
		expiry: expiry,
	}
}

func (v *TokenValidator) ValidateAccessToken(tokenStr string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid access token claims")
	}

	return claims, nil
}

// GenerateAccessToken signs a token the way the identity provider does.
// Used by tests and local tooling.
func (v *TokenValidator) GenerateAccessToken(accountID, email string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		AccountID: accountID,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    v.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}
