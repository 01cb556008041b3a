package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Upsert(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

// Upsert syncs the identity-provider view of an account. The tier is only
// set on first insert; plan changes arrive through a dedicated admin path.
func (r *postgresRepository) Upsert(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts (id, email, full_name, github_username, avatar_url, tier)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			github_username = EXCLUDED.github_username,
			avatar_url = EXCLUDED.avatar_url,
			updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query,
		account.ID, account.Email, account.FullName, account.GithubUsername,
		account.AvatarURL, account.Tier)
	if err != nil {
		return fmt.Errorf("upserting account: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `
		SELECT id, email, full_name, github_username, avatar_url, tier, created_at, updated_at
		FROM accounts WHERE id = $1`

	account := &Account{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&account.ID, &account.Email, &account.FullName, &account.GithubUsername,
		&account.AvatarURL, &account.Tier, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying account by id: %w", err)
	}
	return account, nil
}
