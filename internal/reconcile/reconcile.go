// Package reconcile runs the periodic pass that keeps the entitlement state
// honest independent of user traffic: it reminds companies about upcoming
// expiries and forces crossed expiries into their terminal states.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"stroybot/core/logger"
	"stroybot/internal/billing"
	"stroybot/internal/company"
	"stroybot/internal/metrics"
	"stroybot/internal/notify"
	"stroybot/internal/storage"
)

// DefaultRemindWindow matches the legacy BILLING_REMIND_DAYS default.
const DefaultRemindWindow = 3 * 24 * time.Hour

// Store is the slice of persistence the loop needs. All selection predicates
// are idempotent: rows that already transitioned stop matching, so a failed
// cycle is retried naturally on the next tick.
type Store interface {
	ExpiringTrials(ctx context.Context, from, to time.Time) ([]billing.Trial, error)
	ExpiredTrials(ctx context.Context, asOf time.Time) ([]billing.Trial, error)
	DeactivateTrial(ctx context.Context, id int64) error

	ExpiringSubscriptions(ctx context.Context, from, to time.Time) ([]billing.Subscription, error)
	ExpiredSubscriptions(ctx context.Context, asOf time.Time) ([]billing.Subscription, error)
	ExpireSubscription(ctx context.Context, id int64) error

	AdminsAndManagers(ctx context.Context, companyID int64) ([]company.User, error)
}

// Notifier accepts delivery intents. Delivery is best-effort and decoupled;
// an intake error never blocks a state transition.
type Notifier interface {
	Enqueue(intent notify.Intent) error
}

// Reconciler executes one reminder + enforcement cycle at a time. Exactly
// one instance runs per deployment.
type Reconciler struct {
	store        Store
	notifier     Notifier
	tx           storage.TxRunner
	stats        *metrics.Collector
	remindWindow time.Duration
	now          func() time.Time
}

// New builds a reconciler. Zero remindWindow selects the default, nil now
// defaults to time.Now.
func New(store Store, notifier Notifier, tx storage.TxRunner, stats *metrics.Collector, remindWindow time.Duration, now func() time.Time) *Reconciler {
	if remindWindow <= 0 {
		remindWindow = DefaultRemindWindow
	}
	if now == nil {
		now = time.Now
	}
	if tx == nil {
		tx = storage.NopTx{}
	}
	return &Reconciler{
		store:        store,
		notifier:     notifier,
		tx:           tx,
		stats:        stats,
		remindWindow: remindWindow,
		now:          now,
	}
}

// RunCycle performs one full pass: reminders first, then enforcement.
// Failures are collected per tenant; one broken tenant does not stop the
// rest. The returned error aggregates everything that went wrong.
func (r *Reconciler) RunCycle(ctx context.Context) error {
	started := r.now()
	var errs *multierror.Error

	if err := r.remindPass(ctx, started); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := r.enforcePass(ctx, started); err != nil {
		errs = multierror.Append(errs, err)
	}

	err := errs.ErrorOrNil()
	took := time.Since(started)
	r.stats.IncCycle(err == nil, took.Seconds())
	if err != nil {
		logger.Error(ctx, "reconcile", "cycle.failed",
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.Info(ctx, "reconcile", "cycle.done",
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}

// remindPass notifies company admins and managers about trials and
// subscriptions expiring within the remind window. Read-only.
func (r *Reconciler) remindPass(ctx context.Context, now time.Time) error {
	var errs *multierror.Error
	until := now.Add(r.remindWindow)

	trials, err := r.store.ExpiringTrials(ctx, now, until)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("list expiring trials: %w", err))
	}
	for _, t := range trials {
		if ctx.Err() != nil {
			return multierror.Append(errs, ctx.Err()).ErrorOrNil()
		}
		msg := fmt.Sprintf(
			"Company #%d trial ends on %s. Extend it or start a subscription.",
			t.CompanyID, t.ExpiresAt.Format("2006-01-02"),
		)
		r.fanOut(ctx, t.CompanyID, msg)
	}

	subs, err := r.store.ExpiringSubscriptions(ctx, now, until)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("list expiring subscriptions: %w", err))
	}
	for _, s := range subs {
		if ctx.Err() != nil {
			return multierror.Append(errs, ctx.Err()).ErrorOrNil()
		}
		msg := fmt.Sprintf(
			"Company #%d subscription expires on %s. Pay to avoid blocking.",
			s.CompanyID, s.ExpiresAt.Format("2006-01-02"),
		)
		r.fanOut(ctx, s.CompanyID, msg)
	}

	return errs.ErrorOrNil()
}

// enforcePass transitions crossed expiries into their terminal states, one
// transaction per row, and enqueues the paired blocking notification only
// after the transition committed.
func (r *Reconciler) enforcePass(ctx context.Context, now time.Time) error {
	var errs *multierror.Error

	trials, err := r.store.ExpiredTrials(ctx, now)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("list expired trials: %w", err))
	}
	for _, t := range trials {
		if ctx.Err() != nil {
			return multierror.Append(errs, ctx.Err()).ErrorOrNil()
		}
		err := r.tx.InTx(ctx, func(ctx context.Context) error {
			return r.store.DeactivateTrial(ctx, t.ID)
		})
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("deactivate trial %d: %w", t.ID, err))
			continue
		}
		r.stats.IncTrialExpired()
		logger.Info(ctx, "reconcile", "trial.enforced",
			slog.Int64("company_id", t.CompanyID),
			slog.Int64("trial_id", t.ID),
		)
		r.fanOut(ctx, t.CompanyID, fmt.Sprintf(
			"Company #%d trial has ended. Access is limited.", t.CompanyID,
		))
	}

	subs, err := r.store.ExpiredSubscriptions(ctx, now)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("list expired subscriptions: %w", err))
	}
	for _, s := range subs {
		if ctx.Err() != nil {
			return multierror.Append(errs, ctx.Err()).ErrorOrNil()
		}
		err := r.tx.InTx(ctx, func(ctx context.Context) error {
			return r.store.ExpireSubscription(ctx, s.ID)
		})
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("expire subscription %d: %w", s.ID, err))
			continue
		}
		r.stats.IncSubExpired()
		logger.Info(ctx, "reconcile", "subscription.enforced",
			slog.Int64("company_id", s.CompanyID),
			slog.Int64("subscription_id", s.ID),
		)
		r.fanOut(ctx, s.CompanyID, fmt.Sprintf(
			"Company #%d subscription has expired. Access is limited.", s.CompanyID,
		))
	}

	return errs.ErrorOrNil()
}

// fanOut enqueues one intent per company admin/manager. Lookup and intake
// failures are logged per recipient and never escalate: the state transition
// already happened and must stand.
func (r *Reconciler) fanOut(ctx context.Context, companyID int64, text string) {
	recipients, err := r.store.AdminsAndManagers(ctx, companyID)
	if err != nil {
		logger.Warn(ctx, "reconcile", "fanout.lookup_failed",
			slog.Int64("company_id", companyID),
			slog.String("err", err.Error()),
		)
		return
	}
	for _, u := range recipients {
		if err := r.notifier.Enqueue(notify.Intent{RecipientID: u.TgID, Text: text}); err != nil {
			logger.Warn(ctx, "reconcile", "fanout.enqueue_failed",
				slog.Int64("company_id", companyID),
				slog.Int64("recipient", u.TgID),
				slog.String("err", err.Error()),
			)
		}
	}
}
