package accounts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/insanelabs/witchcraft/internal/quota"
)

// Service mirrors external identities into the accounts table and provisions
// a quota ledger on first sight.
type Service struct {
	repo        Repository
	quotas      *quota.Repository
	defaultTier string
	logger      *slog.Logger
}

// NewService creates an accounts Service.
func NewService(repo Repository, quotas *quota.Repository, defaultTier string, logger *slog.Logger) *Service {
	return &Service{repo: repo, quotas: quotas, defaultTier: defaultTier, logger: logger}
}

// EnsureInput carries the identity-provider fields for an account sync.
type EnsureInput struct {
	ID             uuid.UUID `json:"id" validate:"required"`
	Email          string    `json:"email" validate:"required,email"`
	FullName       string    `json:"full_name" validate:"max=256"`
	GithubUsername string    `json:"github_username" validate:"max=64"`
	AvatarURL      string    `json:"avatar_url" validate:"omitempty,url"`
	Tier           string    `json:"tier" validate:"omitempty,oneof=free pro unlimited"`
}

// Ensure upserts the account mirror and provisions its quota ledger with the
// tier's limits. Both writes are idempotent, so re-syncing an existing
// account only refreshes the profile fields.
func (s *Service) Ensure(ctx context.Context, in *EnsureInput) (*Account, error) {
	tierName := in.Tier
	if tierName == "" {
		tierName = s.defaultTier
	}
	tier := TierByName(tierName)

	account := &Account{
		ID:             in.ID,
		Email:          in.Email,
		FullName:       in.FullName,
		GithubUsername: in.GithubUsername,
		AvatarURL:      in.AvatarURL,
		Tier:           tier.Name,
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, err
	}

	if err := s.quotas.Provision(ctx, account.ID, tier.Limits()); err != nil {
		return nil, fmt.Errorf("provisioning ledger for %s: %w", account.ID, err)
	}

	s.logger.Info("account ensured", "account_id", account.ID, "tier", tier.Name)

	stored, err := s.repo.GetByID(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return account, nil
	}
	return stored, nil
}

// Get returns the account mirror, or nil when unknown.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Account, error) {
	return s.repo.GetByID(ctx, id)
}
