package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"stroybot/internal/billing"
)

// TrialRepo implements billing.TrialStore.
type TrialRepo struct {
	*DB
}

// NewTrialRepo builds the repository.
func NewTrialRepo(db *DB) *TrialRepo {
	return &TrialRepo{DB: db}
}

func (r *TrialRepo) ByCompany(ctx context.Context, companyID int64) (*billing.Trial, error) {
	var t billing.Trial
	err := sqlx.GetContext(ctx, r.ext(ctx), &t, `
		SELECT id, company_id, starts_at, expires_at, is_active, created_by, updated_by
		FROM trials WHERE company_id = $1`, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select trial: %w", err)
	}
	return &t, nil
}

func (r *TrialRepo) Insert(ctx context.Context, t *billing.Trial) error {
	row := r.ext(ctx).QueryRowxContext(ctx, `
		INSERT INTO trials (company_id, starts_at, expires_at, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		t.CompanyID, t.StartsAt, t.ExpiresAt, t.IsActive, t.CreatedBy)
	return row.Scan(&t.ID)
}

func (r *TrialRepo) Update(ctx context.Context, t *billing.Trial) error {
	_, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE trials
		SET expires_at = $2, is_active = $3, updated_by = $4, updated_at = now()
		WHERE id = $1`,
		t.ID, t.ExpiresAt, t.IsActive, t.UpdatedBy)
	return err
}

// SubscriptionRepo implements billing.SubscriptionStore.
type SubscriptionRepo struct {
	*DB
}

// NewSubscriptionRepo builds the repository.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{DB: db}
}

func (r *SubscriptionRepo) LatestByCompany(ctx context.Context, companyID int64) (*billing.Subscription, error) {
	var s billing.Subscription
	err := sqlx.GetContext(ctx, r.ext(ctx), &s, `
		SELECT id, company_id, plan_id, status, starts_at, expires_at, created_by, updated_by
		FROM subscriptions
		WHERE company_id = $1
		ORDER BY expires_at DESC
		LIMIT 1`, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select subscription: %w", err)
	}
	return &s, nil
}

func (r *SubscriptionRepo) Insert(ctx context.Context, s *billing.Subscription) error {
	row := r.ext(ctx).QueryRowxContext(ctx, `
		INSERT INTO subscriptions (company_id, plan_id, status, starts_at, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		s.CompanyID, s.PlanID, s.Status, s.StartsAt, s.ExpiresAt, s.CreatedBy)
	return row.Scan(&s.ID)
}

func (r *SubscriptionRepo) SetStatus(ctx context.Context, id int64, status billing.SubscriptionStatus, updatedBy int64) error {
	var actor sql.NullInt64
	if updatedBy != 0 {
		actor = sql.NullInt64{Int64: updatedBy, Valid: true}
	}
	_, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $2, updated_by = $3, updated_at = now()
		WHERE id = $1`,
		id, status, actor)
	return err
}

// PlanRepo implements billing.PlanStore.
type PlanRepo struct {
	*DB
}

// NewPlanRepo builds the repository.
func NewPlanRepo(db *DB) *PlanRepo {
	return &PlanRepo{DB: db}
}

func (r *PlanRepo) ByCode(ctx context.Context, code string) (*billing.Plan, error) {
	var p billing.Plan
	err := sqlx.GetContext(ctx, r.ext(ctx), &p, `
		SELECT id, code, name, monthly_price, period_days, features
		FROM plans WHERE code = $1`, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select plan: %w", err)
	}
	return &p, nil
}

func (r *PlanRepo) UpsertByCode(ctx context.Context, p *billing.Plan) error {
	features := p.Features
	if features == nil {
		features = []byte(`{}`)
	}
	row := r.ext(ctx).QueryRowxContext(ctx, `
		INSERT INTO plans (code, name, monthly_price, period_days, features)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			monthly_price = EXCLUDED.monthly_price,
			period_days = EXCLUDED.period_days,
			features = EXCLUDED.features
		RETURNING id`,
		p.Code, p.Name, p.MonthlyPrice, p.PeriodDays, features)
	return row.Scan(&p.ID)
}

// expiring/expired queries for the reconciliation loop live on the same
// repositories; ReconcileRepo composes them into reconcile.Store.

func (r *TrialRepo) ExpiringTrials(ctx context.Context, from, to time.Time) ([]billing.Trial, error) {
	var out []billing.Trial
	err := sqlx.SelectContext(ctx, r.ext(ctx), &out, `
		SELECT id, company_id, starts_at, expires_at, is_active, created_by, updated_by
		FROM trials
		WHERE is_active AND expires_at BETWEEN $1 AND $2
		ORDER BY expires_at`, from, to)
	return out, err
}

func (r *TrialRepo) ExpiredTrials(ctx context.Context, asOf time.Time) ([]billing.Trial, error) {
	var out []billing.Trial
	err := sqlx.SelectContext(ctx, r.ext(ctx), &out, `
		SELECT id, company_id, starts_at, expires_at, is_active, created_by, updated_by
		FROM trials
		WHERE is_active AND expires_at <= $1
		ORDER BY expires_at`, asOf)
	return out, err
}

func (r *TrialRepo) DeactivateTrial(ctx context.Context, id int64) error {
	_, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE trials SET is_active = false, updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *SubscriptionRepo) ExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]billing.Subscription, error) {
	var out []billing.Subscription
	err := sqlx.SelectContext(ctx, r.ext(ctx), &out, `
		SELECT id, company_id, plan_id, status, starts_at, expires_at, created_by, updated_by
		FROM subscriptions
		WHERE status = 'active' AND expires_at BETWEEN $1 AND $2
		ORDER BY expires_at`, from, to)
	return out, err
}

func (r *SubscriptionRepo) ExpiredSubscriptions(ctx context.Context, asOf time.Time) ([]billing.Subscription, error) {
	var out []billing.Subscription
	err := sqlx.SelectContext(ctx, r.ext(ctx), &out, `
		SELECT id, company_id, plan_id, status, starts_at, expires_at, created_by, updated_by
		FROM subscriptions
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at`, asOf)
	return out, err
}

func (r *SubscriptionRepo) ExpireSubscription(ctx context.Context, id int64) error {
	_, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE subscriptions SET status = 'expired', updated_at = now() WHERE id = $1`, id)
	return err
}
