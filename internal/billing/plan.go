package billing

import (
	"context"
	"fmt"
	"log/slog"

	"stroybot/core/logger"
)

// DefaultPlans is the shipped catalog. Seeding upserts by code so price and
// naming corrections propagate without touching referencing subscriptions.
var DefaultPlans = []Plan{
	{Code: "free", Name: "Free", MonthlyPrice: 0, PeriodDays: 30},
	{Code: "pro", Name: "Pro", MonthlyPrice: 29, PeriodDays: 30},
	{Code: "enterprise", Name: "Enterprise", MonthlyPrice: 199, PeriodDays: 365},
}

// SeedPlans synchronizes the plan catalog with DefaultPlans.
func SeedPlans(ctx context.Context, plans PlanStore) error {
	for i := range DefaultPlans {
		p := DefaultPlans[i]
		if err := plans.UpsertByCode(ctx, &p); err != nil {
			return fmt.Errorf("seed plan %q: %w", p.Code, err)
		}
		logger.Info(ctx, "db.seed", "plan.synced",
			slog.String("code", p.Code),
			slog.Int("monthly_price", p.MonthlyPrice),
			slog.Int("period_days", p.PeriodDays),
		)
	}
	return nil
}
