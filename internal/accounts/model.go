package accounts

import (
	"time"

	"github.com/google/uuid"

	"github.com/insanelabs/witchcraft/internal/quota"
)

// Account mirrors the identity-provider record for an account. Accounts are
// created and mutated by the external provider; this service only syncs the
// fields it needs and owns the quota ledger attached to each account.
type Account struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FullName       string    `json:"full_name,omitempty"`
	GithubUsername string    `json:"github_username,omitempty"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	Tier           string    `json:"tier"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Tier holds the quota ledger defaults for a named plan. Nil limits mean
// unlimited.
type Tier struct {
	Name                string
	MonthlyTokenLimit   *int64
	MonthlyRequestLimit *int64
	MonthlyCostLimit    *float64
	DailyRequestLimit   *int64
}

// Limits returns the ledger defaults this tier provisions.
func (t Tier) Limits() quota.TierLimits {
	return quota.TierLimits{
		MonthlyTokenLimit:   t.MonthlyTokenLimit,
		MonthlyRequestLimit: t.MonthlyRequestLimit,
		MonthlyCostLimit:    t.MonthlyCostLimit,
		DailyRequestLimit:   t.DailyRequestLimit,
	}
}

func ptr[T any](v T) *T { return &v }

var builtinTiers = map[string]Tier{
	"free": {
		Name:                "free",
		MonthlyTokenLimit:   ptr(int64(500_000)),
		MonthlyRequestLimit: ptr(int64(1_000)),
		MonthlyCostLimit:    ptr(5.0),
		DailyRequestLimit:   ptr(int64(100)),
	},
	"pro": {
		Name:                "pro",
		MonthlyTokenLimit:   ptr(int64(10_000_000)),
		MonthlyRequestLimit: ptr(int64(50_000)),
		MonthlyCostLimit:    ptr(100.0),
		DailyRequestLimit:   ptr(int64(5_000)),
	},
	"unlimited": {
		Name: "unlimited",
	},
}

// TierByName returns the named tier, falling back to free for unknown names.
func TierByName(name string) Tier {
	if t, ok := builtinTiers[name]; ok {
		return t
	}
	return builtinTiers["free"]
}
