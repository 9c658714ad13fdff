package billing

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"stroybot/core/logger"
	"stroybot/internal/audit"
)

// DefaultTrialDays is the trial length granted on company creation.
const DefaultTrialDays = 14

// TrialManager creates, extends, and evaluates trials. All decisions are
// pure functions of (stored row, now); the clock is injected for tests.
type TrialManager struct {
	trials TrialStore
	sink   audit.Sink
	now    func() time.Time
}

// NewTrialManager wires the manager. A nil now defaults to time.Now.
func NewTrialManager(trials TrialStore, sink audit.Sink, now func() time.Time) *TrialManager {
	if now == nil {
		now = time.Now
	}
	return &TrialManager{trials: trials, sink: sink, now: now}
}

// StartTrial creates the company's trial. Company creation is the only
// legitimate caller; an existing trial yields ErrDuplicateTrial.
func (m *TrialManager) StartTrial(ctx context.Context, companyID, actorID int64, days int) (*Trial, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: trial days must be positive, got %d", ErrInvalidArgument, days)
	}
	existing, err := m.trials.ByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load trial: %w", err)
	}
	if existing != nil {
		logger.Error(ctx, "billing", "trial.start.duplicate",
			slog.Int64("company_id", companyID),
			slog.Int64("trial_id", existing.ID),
		)
		return nil, ErrDuplicateTrial
	}

	now := m.now()
	t := &Trial{
		CompanyID: companyID,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 0, days),
		IsActive:  true,
	}
	if actorID != 0 {
		t.CreatedBy = sql.NullInt64{Int64: actorID, Valid: true}
	}
	if err := m.trials.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("insert trial: %w", err)
	}
	if err := audit.Record(ctx, m.sink, audit.Actor{UserID: actorID}, audit.ActionTrialStarted, "trial", t.ID, map[string]any{
		"company_id": companyID,
		"expires_at": t.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	logger.Info(ctx, "billing", "trial.start",
		slog.Int64("company_id", companyID),
		slog.Time("expires_at", t.ExpiresAt),
	)
	return t, nil
}

// ExtendTrial moves the expiry forward by extraDays, counting from whichever
// is later: now or the current expiry. A missing trial is created with
// extraDays length. The expiry never moves backwards.
func (m *TrialManager) ExtendTrial(ctx context.Context, companyID int64, extraDays int) (*Trial, error) {
	if extraDays <= 0 {
		return nil, fmt.Errorf("%w: extra days must be positive, got %d", ErrInvalidArgument, extraDays)
	}

	t, err := m.trials.ByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load trial: %w", err)
	}
	now := m.now()
	if t == nil {
		t = &Trial{
			CompanyID: companyID,
			StartsAt:  now,
			ExpiresAt: now.AddDate(0, 0, extraDays),
			IsActive:  true,
		}
		if err := m.trials.Insert(ctx, t); err != nil {
			return nil, fmt.Errorf("insert trial: %w", err)
		}
	} else {
		base := now
		if t.ExpiresAt.After(now) {
			base = t.ExpiresAt
		}
		t.ExpiresAt = base.AddDate(0, 0, extraDays)
		t.IsActive = true
		if err := m.trials.Update(ctx, t); err != nil {
			return nil, fmt.Errorf("update trial: %w", err)
		}
	}

	if err := audit.Record(ctx, m.sink, audit.Actor{}, audit.ActionTrialExtended, "trial", t.ID, map[string]any{
		"company_id": companyID,
		"extra_days": extraDays,
		"expires_at": t.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	logger.Info(ctx, "billing", "trial.extend",
		slog.Int64("company_id", companyID),
		slog.Int("extra_days", extraDays),
		slog.Time("expires_at", t.ExpiresAt),
	)
	return t, nil
}

// IsTrialActive reports whether the company's trial grants access at now.
func (m *TrialManager) IsTrialActive(ctx context.Context, companyID int64, now time.Time) (bool, error) {
	t, err := m.trials.ByCompany(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("load trial: %w", err)
	}
	return t.ActiveAt(now), nil
}
