package billing

import (
	"context"
	"fmt"
	"time"

	"stroybot/internal/metrics"
)

// DenyReason is a stable code the front end maps to user-facing messaging.
type DenyReason string

const (
	// DenyNoCompany: the caller is not a member of any company.
	DenyNoCompany DenyReason = "no_company"
	// DenyNoEntitlement: the company has neither an active trial nor an
	// active subscription.
	DenyNoEntitlement DenyReason = "no_entitlement"
)

// Verdict is the gate's answer for one request.
type Verdict struct {
	Allowed   bool
	Reason    DenyReason
	CompanyID int64
}

// MemberDirectory resolves a Telegram user to their company.
type MemberDirectory interface {
	// CompanyIDByTelegramID returns 0 when the user is unknown or has no company.
	CompanyIDByTelegramID(ctx context.Context, tgID int64) (int64, error)
}

// Gate is the synchronous guard in front of every gated action. It only
// reads: expiry transitions belong to the reconciliation loop, so the gate
// can run at arbitrary frequency without write contention.
type Gate struct {
	members MemberDirectory
	subs    *SubscriptionManager
	stats   *metrics.Collector
	now     func() time.Time
}

// NewGate wires the gate. A nil now defaults to time.Now.
func NewGate(members MemberDirectory, subs *SubscriptionManager, stats *metrics.Collector, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{members: members, subs: subs, stats: stats, now: now}
}

// Check resolves the caller's company and returns the entitlement verdict.
func (g *Gate) Check(ctx context.Context, tgID int64) (Verdict, error) {
	companyID, err := g.members.CompanyIDByTelegramID(ctx, tgID)
	if err != nil {
		return Verdict{}, fmt.Errorf("resolve company: %w", err)
	}
	if companyID == 0 {
		g.stats.IncEntitlement(string(DenyNoCompany))
		return Verdict{Reason: DenyNoCompany}, nil
	}
	return g.CheckCompany(ctx, companyID)
}

// CheckCompany returns the verdict for an already-resolved company. The
// verdict is computed fresh on every call, never cached.
func (g *Gate) CheckCompany(ctx context.Context, companyID int64) (Verdict, error) {
	ent, err := g.subs.EntitlementStatus(ctx, companyID, g.now())
	if err != nil {
		return Verdict{}, fmt.Errorf("entitlement status: %w", err)
	}
	if !ent.Available {
		g.stats.IncEntitlement(string(DenyNoEntitlement))
		return Verdict{Reason: DenyNoEntitlement, CompanyID: companyID}, nil
	}
	g.stats.IncEntitlement("allow")
	return Verdict{Allowed: true, CompanyID: companyID}, nil
}
