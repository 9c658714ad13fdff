package billing

import (
	"context"
	"database/sql"
	"time"
)

// SubscriptionStatus enumerates the persisted subscription states.
type SubscriptionStatus string

const (
	StatusTrial    SubscriptionStatus = "trial"
	StatusActive   SubscriptionStatus = "active"
	StatusPaused   SubscriptionStatus = "paused"
	StatusCanceled SubscriptionStatus = "canceled"
	StatusExpired  SubscriptionStatus = "expired"
)

// Trial is the single time-boxed grace period a company gets.
// At most one row exists per company; extension mutates it in place.
type Trial struct {
	ID        int64         `db:"id"`
	CompanyID int64         `db:"company_id"`
	StartsAt  time.Time     `db:"starts_at"`
	ExpiresAt time.Time     `db:"expires_at"`
	IsActive  bool          `db:"is_active"`
	CreatedBy sql.NullInt64 `db:"created_by"`
	UpdatedBy sql.NullInt64 `db:"updated_by"`
}

// ActiveAt reports whether the trial grants access at the given instant.
func (t *Trial) ActiveAt(now time.Time) bool {
	return t != nil && t.IsActive && t.ExpiresAt.After(now)
}

// Subscription is one row of a company's append-only subscription history.
// The current subscription is the row with the latest expiry.
type Subscription struct {
	ID        int64              `db:"id"`
	CompanyID int64              `db:"company_id"`
	PlanID    int64              `db:"plan_id"`
	Status    SubscriptionStatus `db:"status"`
	StartsAt  time.Time          `db:"starts_at"`
	ExpiresAt time.Time          `db:"expires_at"`
	CreatedBy sql.NullInt64      `db:"created_by"`
	UpdatedBy sql.NullInt64      `db:"updated_by"`
}

// ActiveAt reports whether the subscription grants access at the given instant.
func (s *Subscription) ActiveAt(now time.Time) bool {
	return s != nil && s.Status == StatusActive && s.ExpiresAt.After(now)
}

// Plan is a static catalog entry. Rows are only upserted by code, never
// mutated once referenced by a subscription beyond corrective updates.
type Plan struct {
	ID           int64  `db:"id"`
	Code         string `db:"code"`
	Name         string `db:"name"`
	MonthlyPrice int    `db:"monthly_price"`
	PeriodDays   int    `db:"period_days"`
	Features     []byte `db:"features"`
}

// TrialStore persists per-company trial rows.
type TrialStore interface {
	// ByCompany returns the company's trial or nil when none exists.
	ByCompany(ctx context.Context, companyID int64) (*Trial, error)
	Insert(ctx context.Context, t *Trial) error
	Update(ctx context.Context, t *Trial) error
}

// SubscriptionStore persists the append-only subscription history.
type SubscriptionStore interface {
	// LatestByCompany returns the row with the greatest expiry or nil.
	LatestByCompany(ctx context.Context, companyID int64) (*Subscription, error)
	Insert(ctx context.Context, s *Subscription) error
	SetStatus(ctx context.Context, id int64, status SubscriptionStatus, updatedBy int64) error
}

// PlanStore resolves and seeds the plan catalog.
type PlanStore interface {
	ByCode(ctx context.Context, code string) (*Plan, error)
	UpsertByCode(ctx context.Context, p *Plan) error
}

// Entitlement is the authoritative access verdict for one company.
type Entitlement struct {
	Available    bool
	Trial        *Trial
	Subscription *Subscription
}
