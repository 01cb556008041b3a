package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyPrefix    = "wc_"
	apiKeyPrefixLen = 12
	bcryptCost      = 10
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// APIKeyStore verifies access codes (API keys) against bcrypt hashes in the
// api_keys table. Lookup is by plaintext prefix, then hash comparison.
type APIKeyStore struct {
	pool *pgxpool.Pool
}

func NewAPIKeyStore(pool *pgxpool.Pool) *APIKeyStore {
	return &APIKeyStore{pool: pool}
}

// Issue creates a new API key for the account and returns the raw key.
// The raw key is shown once; only its hash is stored.
func (s *APIKeyStore) Issue(ctx context.Context, accountID uuid.UUID, label string) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	raw := apiKeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, account_id, key_prefix, key_hash, label)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), accountID, raw[:apiKeyPrefixLen], string(hash), label)
	if err != nil {
		return "", fmt.Errorf("inserting api key: %w", err)
	}
	return raw, nil
}

// Verify returns the owning account id for a raw API key, or ErrInvalidAPIKey.
func (s *APIKeyStore) Verify(ctx context.Context, raw string) (uuid.UUID, error) {
	if len(raw) < apiKeyPrefixLen {
		return uuid.Nil, ErrInvalidAPIKey
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, key_hash FROM api_keys
		 WHERE key_prefix = $1 AND revoked_at IS NULL`, raw[:apiKeyPrefixLen])
	if err != nil {
		return uuid.Nil, fmt.Errorf("querying api keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var keyID, accountID uuid.UUID
		var hash string
		if err := rows.Scan(&keyID, &accountID, &hash); err != nil {
			return uuid.Nil, fmt.Errorf("scanning api key: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil {
			go s.touch(keyID)
			return accountID, nil
		}
	}
	return uuid.Nil, ErrInvalidAPIKey
}

// Revoke marks the key unusable without deleting the row.
func (s *APIKeyStore) Revoke(ctx context.Context, accountID, keyID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = NOW()
		 WHERE id = $1 AND account_id = $2 AND revoked_at IS NULL`, keyID, accountID)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *APIKeyStore) touch(keyID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, keyID)
}
