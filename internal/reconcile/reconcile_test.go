package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"stroybot/internal/billing"
	"stroybot/internal/company"
	"stroybot/internal/notify"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeStore mirrors the Postgres predicates: selection filters by the given
// bounds and transitioned rows stop matching.
type fakeStore struct {
	trials     map[int64]billing.Trial
	subs       map[int64]billing.Subscription
	recipients map[int64][]company.User

	trialErr      error
	lookupErr     error
	expireSubErrs map[int64]error
}

func newStore() *fakeStore {
	return &fakeStore{
		trials:     make(map[int64]billing.Trial),
		subs:       make(map[int64]billing.Subscription),
		recipients: make(map[int64][]company.User),
	}
}

func (s *fakeStore) ExpiringTrials(_ context.Context, from, to time.Time) ([]billing.Trial, error) {
	if s.trialErr != nil {
		return nil, s.trialErr
	}
	var out []billing.Trial
	for _, t := range s.trials {
		if t.IsActive && !t.ExpiresAt.Before(from) && !t.ExpiresAt.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) ExpiredTrials(_ context.Context, asOf time.Time) ([]billing.Trial, error) {
	if s.trialErr != nil {
		return nil, s.trialErr
	}
	var out []billing.Trial
	for _, t := range s.trials {
		if t.IsActive && !t.ExpiresAt.After(asOf) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) DeactivateTrial(_ context.Context, id int64) error {
	t := s.trials[id]
	t.IsActive = false
	s.trials[id] = t
	return nil
}

func (s *fakeStore) ExpiringSubscriptions(_ context.Context, from, to time.Time) ([]billing.Subscription, error) {
	var out []billing.Subscription
	for _, sub := range s.subs {
		if sub.Status == billing.StatusActive && !sub.ExpiresAt.Before(from) && !sub.ExpiresAt.After(to) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) ExpiredSubscriptions(_ context.Context, asOf time.Time) ([]billing.Subscription, error) {
	var out []billing.Subscription
	for _, sub := range s.subs {
		if sub.Status == billing.StatusActive && !sub.ExpiresAt.After(asOf) {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeStore) ExpireSubscription(_ context.Context, id int64) error {
	if err := s.expireSubErrs[id]; err != nil {
		return err
	}
	sub := s.subs[id]
	sub.Status = billing.StatusExpired
	s.subs[id] = sub
	return nil
}

func (s *fakeStore) AdminsAndManagers(_ context.Context, companyID int64) ([]company.User, error) {
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return s.recipients[companyID], nil
}

type fakeNotifier struct {
	intents []notify.Intent
	err     error
}

func (n *fakeNotifier) Enqueue(intent notify.Intent) error {
	if n.err != nil {
		return n.err
	}
	n.intents = append(n.intents, intent)
	return nil
}

func (n *fakeNotifier) matching(substr string) []notify.Intent {
	var out []notify.Intent
	for _, in := range n.intents {
		if strings.Contains(in.Text, substr) {
			out = append(out, in)
		}
	}
	return out
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func manager(tgID int64) company.User {
	return company.User{ID: tgID, TgID: tgID, Role: company.RoleManager, IsActive: true}
}

func TestRemindPassSelectsWindow(t *testing.T) {
	store := newStore()
	store.recipients[1] = []company.User{manager(100)}
	store.recipients[2] = []company.User{manager(200)}
	store.recipients[3] = []company.User{manager(300)}
	// Inside the 3-day window.
	store.trials[1] = billing.Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.Add(48 * time.Hour), IsActive: true}
	// Outside the window.
	store.trials[2] = billing.Trial{ID: 2, CompanyID: 2, ExpiresAt: testNow.Add(10 * 24 * time.Hour), IsActive: true}
	store.subs[1] = billing.Subscription{ID: 1, CompanyID: 3, Status: billing.StatusActive, ExpiresAt: testNow.Add(24 * time.Hour)}

	n := &fakeNotifier{}
	r := New(store, n, nil, nil, 3*24*time.Hour, fixedNow(testNow))
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if got := n.matching("trial ends"); len(got) != 1 || got[0].RecipientID != 100 {
		t.Fatalf("want one trial reminder to 100, got %+v", got)
	}
	if got := n.matching("subscription expires"); len(got) != 1 || got[0].RecipientID != 300 {
		t.Fatalf("want one subscription reminder to 300, got %+v", got)
	}
}

func TestEnforcePassTransitionsAndNotifies(t *testing.T) {
	store := newStore()
	store.recipients[1] = []company.User{manager(100), manager(101)}
	store.trials[1] = billing.Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.Add(-time.Hour), IsActive: true}
	store.subs[1] = billing.Subscription{ID: 1, CompanyID: 1, Status: billing.StatusActive, ExpiresAt: testNow.Add(-time.Hour)}

	n := &fakeNotifier{}
	r := New(store, n, nil, nil, 0, fixedNow(testNow))
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	if store.trials[1].IsActive {
		t.Fatalf("expired trial must be deactivated")
	}
	if store.subs[1].Status != billing.StatusExpired {
		t.Fatalf("expired subscription status %s, want %s", store.subs[1].Status, billing.StatusExpired)
	}
	// One message per admin/manager, for the trial and for the subscription.
	if got := n.matching("trial has ended"); len(got) != 2 {
		t.Fatalf("want 2 trial notifications, got %+v", got)
	}
	if got := n.matching("subscription has expired"); len(got) != 2 {
		t.Fatalf("want 2 subscription notifications, got %+v", got)
	}
}

func TestSecondCycleSendsNoDuplicateNotifications(t *testing.T) {
	store := newStore()
	store.recipients[1] = []company.User{manager(100)}
	store.trials[1] = billing.Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.Add(-time.Hour), IsActive: true}
	store.subs[1] = billing.Subscription{ID: 1, CompanyID: 1, Status: billing.StatusActive, ExpiresAt: testNow.Add(-time.Hour)}

	n := &fakeNotifier{}
	r := New(store, n, nil, nil, 0, fixedNow(testNow))
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	sent := len(n.intents)
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	// Transitioned rows stop matching, so the second pass is silent.
	if len(n.intents) != sent {
		t.Fatalf("second cycle sent %d extra notifications", len(n.intents)-sent)
	}
}

func TestNotifierFailureDoesNotBlockTransitions(t *testing.T) {
	store := newStore()
	store.recipients[1] = []company.User{manager(100)}
	store.trials[1] = billing.Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.Add(-time.Hour), IsActive: true}

	n := &fakeNotifier{err: errors.New("queue full")}
	r := New(store, n, nil, nil, 0, fixedNow(testNow))
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("delivery failure must not fail the cycle: %v", err)
	}
	if store.trials[1].IsActive {
		t.Fatalf("transition must stand even when notification intake fails")
	}
}

func TestRecipientLookupFailureDoesNotBlockTransitions(t *testing.T) {
	store := newStore()
	store.trials[1] = billing.Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.Add(-time.Hour), IsActive: true}
	store.lookupErr = errors.New("users table busted")

	r := New(store, &fakeNotifier{}, nil, nil, 0, fixedNow(testNow))
	if err := r.RunCycle(context.Background()); err != nil {
		t.Fatalf("lookup failure must not fail the cycle: %v", err)
	}
	if store.trials[1].IsActive {
		t.Fatalf("transition must stand even when recipient lookup fails")
	}
}

func TestOneBrokenRowDoesNotStopTheRest(t *testing.T) {
	store := newStore()
	store.recipients[1] = []company.User{manager(100)}
	store.recipients[2] = []company.User{manager(200)}
	store.subs[1] = billing.Subscription{ID: 1, CompanyID: 1, Status: billing.StatusActive, ExpiresAt: testNow.Add(-time.Hour)}
	store.subs[2] = billing.Subscription{ID: 2, CompanyID: 2, Status: billing.StatusActive, ExpiresAt: testNow.Add(-time.Hour)}
	store.expireSubErrs = map[int64]error{1: errors.New("deadlock")}

	n := &fakeNotifier{}
	r := New(store, n, nil, nil, 0, fixedNow(testNow))
	err := r.RunCycle(context.Background())
	if err == nil {
		t.Fatalf("cycle must report the broken row")
	}
	if !strings.Contains(err.Error(), "deadlock") {
		t.Fatalf("aggregated error must carry the cause, got %v", err)
	}
	// The healthy row still transitioned and was announced.
	if store.subs[2].Status != billing.StatusExpired {
		t.Fatalf("healthy row status %s, want %s", store.subs[2].Status, billing.StatusExpired)
	}
	if store.subs[1].Status != billing.StatusActive {
		t.Fatalf("broken row must stay active for the next cycle")
	}
	if got := n.matching("subscription has expired"); len(got) != 1 || got[0].RecipientID != 200 {
		t.Fatalf("want one notification to 200, got %+v", got)
	}
}

func TestStoreListErrorIsAggregated(t *testing.T) {
	store := newStore()
	store.recipients[1] = []company.User{manager(100)}
	store.trialErr = errors.New("trials table gone")
	store.subs[1] = billing.Subscription{ID: 1, CompanyID: 1, Status: billing.StatusActive, ExpiresAt: testNow.Add(-time.Hour)}

	r := New(store, &fakeNotifier{}, nil, nil, 0, fixedNow(testNow))
	err := r.RunCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "trials table gone") {
		t.Fatalf("want aggregated trial list error, got %v", err)
	}
	// Subscription enforcement still ran.
	if store.subs[1].Status != billing.StatusExpired {
		t.Fatalf("subscription pass must run despite the trial list error")
	}
}

func TestCanceledContextStopsTheCycle(t *testing.T) {
	store := newStore()
	store.recipients[1] = []company.User{manager(100)}
	store.trials[1] = billing.Trial{ID: 1, CompanyID: 1, ExpiresAt: testNow.Add(-time.Hour), IsActive: true}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(store, &fakeNotifier{}, nil, nil, 0, fixedNow(testNow))
	if err := r.RunCycle(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled in the aggregate, got %v", err)
	}
	if !store.trials[1].IsActive {
		t.Fatalf("canceled cycle must not transition rows")
	}
}
