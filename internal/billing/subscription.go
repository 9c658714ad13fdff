package billing

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"stroybot/core/logger"
	"stroybot/internal/audit"
	"stroybot/internal/storage"
)

// monthDays fixes the billing month at 30 days. Deliberately not
// calendar-accurate; expiry math stays predictable across month lengths.
const monthDays = 30

// SubscriptionManager owns the paid side of the entitlement lifecycle and
// computes the authoritative access verdict. No other code path may decide
// entitlement on its own.
type SubscriptionManager struct {
	subs   SubscriptionStore
	trials TrialStore
	plans  PlanStore
	sink   audit.Sink
	tx     storage.TxRunner
	now    func() time.Time
}

// NewSubscriptionManager wires the manager. A nil now defaults to time.Now,
// a nil tx runs every operation without a surrounding transaction.
func NewSubscriptionManager(subs SubscriptionStore, trials TrialStore, plans PlanStore, sink audit.Sink, tx storage.TxRunner, now func() time.Time) *SubscriptionManager {
	if now == nil {
		now = time.Now
	}
	if tx == nil {
		tx = storage.NopTx{}
	}
	return &SubscriptionManager{subs: subs, trials: trials, plans: plans, sink: sink, tx: tx, now: now}
}

// StartPaidSubscription appends an active subscription for the resolved plan
// and supersedes the trial. Prior subscription rows are never touched.
func (m *SubscriptionManager) StartPaidSubscription(ctx context.Context, companyID int64, planCode string, months int, actorID int64) (*Subscription, error) {
	if months <= 0 {
		return nil, fmt.Errorf("%w: months must be positive, got %d", ErrInvalidArgument, months)
	}
	plan, err := m.plans.ByCode(ctx, planCode)
	if err != nil {
		return nil, fmt.Errorf("resolve plan %q: %w", planCode, err)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %q", ErrPlanNotFound, planCode)
	}

	now := m.now()
	sub := &Subscription{
		CompanyID: companyID,
		PlanID:    plan.ID,
		Status:    StatusActive,
		StartsAt:  now,
		ExpiresAt: now.AddDate(0, 0, monthDays*months),
	}
	if actorID != 0 {
		sub.CreatedBy = sql.NullInt64{Int64: actorID, Valid: true}
	}

	err = m.tx.InTx(ctx, func(ctx context.Context) error {
		if err := m.subs.Insert(ctx, sub); err != nil {
			return fmt.Errorf("insert subscription: %w", err)
		}
		// The trial is superseded, not deleted.
		t, err := m.trials.ByCompany(ctx, companyID)
		if err != nil {
			return fmt.Errorf("load trial: %w", err)
		}
		if t != nil && t.IsActive {
			t.IsActive = false
			if err := m.trials.Update(ctx, t); err != nil {
				return fmt.Errorf("deactivate trial: %w", err)
			}
		}
		return audit.Record(ctx, m.sink, audit.Actor{UserID: actorID}, audit.ActionSubscriptionStarted, "subscription", sub.ID, map[string]any{
			"company_id": companyID,
			"plan":       planCode,
			"months":     months,
			"expires_at": sub.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "billing", "subscription.start",
		slog.Int64("company_id", companyID),
		slog.String("plan", planCode),
		slog.Int("months", months),
		slog.Time("expires_at", sub.ExpiresAt),
	)
	return sub, nil
}

// PauseSubscription pauses the company's current subscription. A missing
// subscription is a valid "nothing to pause" outcome, not an error.
func (m *SubscriptionManager) PauseSubscription(ctx context.Context, companyID, actorID int64) (bool, error) {
	return m.setLatestStatus(ctx, companyID, actorID, StatusPaused, audit.ActionSubscriptionPaused)
}

// ResumeSubscription reactivates the company's current subscription.
func (m *SubscriptionManager) ResumeSubscription(ctx context.Context, companyID, actorID int64) (bool, error) {
	return m.setLatestStatus(ctx, companyID, actorID, StatusActive, audit.ActionSubscriptionResumed)
}

// CancelSubscription cancels the company's current subscription.
func (m *SubscriptionManager) CancelSubscription(ctx context.Context, companyID, actorID int64) (bool, error) {
	return m.setLatestStatus(ctx, companyID, actorID, StatusCanceled, audit.ActionSubscriptionCancel)
}

// setLatestStatus writes the status on the most-recent-by-expiry row.
// Transition sanity (e.g. resuming a canceled subscription) is a caller
// concern at this layer.
func (m *SubscriptionManager) setLatestStatus(ctx context.Context, companyID, actorID int64, status SubscriptionStatus, action string) (bool, error) {
	sub, err := m.subs.LatestByCompany(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil {
		return false, nil
	}
	err = m.tx.InTx(ctx, func(ctx context.Context) error {
		if err := m.subs.SetStatus(ctx, sub.ID, status, actorID); err != nil {
			return fmt.Errorf("set status %s: %w", status, err)
		}
		return audit.Record(ctx, m.sink, audit.Actor{UserID: actorID}, action, "subscription", sub.ID, map[string]any{
			"company_id": companyID,
			"status":     string(status),
		})
	})
	if err != nil {
		return false, err
	}
	logger.Info(ctx, "billing", "subscription."+string(status),
		slog.Int64("company_id", companyID),
		slog.Int64("subscription_id", sub.ID),
	)
	return true, nil
}

// EntitlementStatus is the single source of truth for "does this company
// have access right now". Trial and subscription are combined permissively:
// either one being active grants access.
func (m *SubscriptionManager) EntitlementStatus(ctx context.Context, companyID int64, now time.Time) (*Entitlement, error) {
	t, err := m.trials.ByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load trial: %w", err)
	}
	sub, err := m.subs.LatestByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &Entitlement{
		Available:    t.ActiveAt(now) || sub.ActiveAt(now),
		Trial:        t,
		Subscription: sub,
	}, nil
}

// MarkExpiredIfNeeded flips the latest subscription to expired once its
// expiry has passed. Idempotent: repeated calls after the transition report
// false and change nothing.
func (m *SubscriptionManager) MarkExpiredIfNeeded(ctx context.Context, companyID int64, now time.Time) (bool, error) {
	sub, err := m.subs.LatestByCompany(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil || sub.Status != StatusActive || sub.ExpiresAt.After(now) {
		return false, nil
	}
	if err := m.subs.SetStatus(ctx, sub.ID, StatusExpired, 0); err != nil {
		return false, fmt.Errorf("mark expired: %w", err)
	}
	logger.Info(ctx, "billing", "subscription.expired",
		slog.Int64("company_id", companyID),
		slog.Int64("subscription_id", sub.ID),
	)
	return true, nil
}
