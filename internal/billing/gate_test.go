package billing

import (
	"context"
	"testing"
)

func TestGateDeniesUnknownUser(t *testing.T) {
	subs := newTestSubManager(&fakeSubStore{}, newFakeTrialStore(), &fakeSink{})
	g := NewGate(&fakeDirectory{companies: map[int64]int64{}}, subs, nil, fixedNow(testNow))

	v, err := g.Check(context.Background(), 555)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Allowed || v.Reason != DenyNoCompany {
		t.Fatalf("want deny %s, got %+v", DenyNoCompany, v)
	}
}

func TestGateDeniesLapsedCompany(t *testing.T) {
	trials := newFakeTrialStore()
	trials.rows[1] = Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.AddDate(0, 0, -1), IsActive: false}
	subs := newTestSubManager(&fakeSubStore{}, trials, &fakeSink{})
	g := NewGate(&fakeDirectory{companies: map[int64]int64{555: 1}}, subs, nil, fixedNow(testNow))

	v, err := g.Check(context.Background(), 555)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if v.Allowed || v.Reason != DenyNoEntitlement {
		t.Fatalf("want deny %s, got %+v", DenyNoEntitlement, v)
	}
	if v.CompanyID != 1 {
		t.Fatalf("verdict must carry the resolved company, got %d", v.CompanyID)
	}
}

func TestGateAllowsEntitledCompany(t *testing.T) {
	trials := newFakeTrialStore()
	trials.rows[1] = Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.AddDate(0, 0, 5), IsActive: true}
	subs := newTestSubManager(&fakeSubStore{}, trials, &fakeSink{})
	g := NewGate(&fakeDirectory{companies: map[int64]int64{555: 1}}, subs, nil, fixedNow(testNow))

	v, err := g.Check(context.Background(), 555)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !v.Allowed || v.CompanyID != 1 {
		t.Fatalf("want allow for company 1, got %+v", v)
	}
}

func TestGateVerdictIsFresh(t *testing.T) {
	trials := newFakeTrialStore()
	trials.rows[1] = Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.AddDate(0, 0, 5), IsActive: true}
	subs := newTestSubManager(&fakeSubStore{}, trials, &fakeSink{})
	g := NewGate(&fakeDirectory{companies: map[int64]int64{555: 1}}, subs, nil, fixedNow(testNow))

	if v, _ := g.Check(context.Background(), 555); !v.Allowed {
		t.Fatalf("want allow before expiry")
	}
	// Deactivate the trial behind the gate's back; the next check must see it.
	row := trials.rows[1]
	row.IsActive = false
	trials.rows[1] = row
	if v, _ := g.Check(context.Background(), 555); v.Allowed {
		t.Fatalf("stale verdict: trial is no longer active")
	}
}
