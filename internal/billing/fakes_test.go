package billing

import (
	"context"
	"sort"
	"time"

	"stroybot/internal/audit"
)

// fakeTrialStore keeps trials in memory, one per company.
type fakeTrialStore struct {
	rows   map[int64]Trial // keyed by company id
	nextID int64
	err    error
}

func newFakeTrialStore() *fakeTrialStore {
	return &fakeTrialStore{rows: make(map[int64]Trial)}
}

func (s *fakeTrialStore) ByCompany(_ context.Context, companyID int64) (*Trial, error) {
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[companyID]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (s *fakeTrialStore) Insert(_ context.Context, t *Trial) error {
	if s.err != nil {
		return s.err
	}
	s.nextID++
	t.ID = s.nextID
	s.rows[t.CompanyID] = *t
	return nil
}

func (s *fakeTrialStore) Update(_ context.Context, t *Trial) error {
	if s.err != nil {
		return s.err
	}
	s.rows[t.CompanyID] = *t
	return nil
}

// fakeSubStore keeps the append-only subscription history in memory.
type fakeSubStore struct {
	rows   []Subscription
	nextID int64
}

func (s *fakeSubStore) LatestByCompany(_ context.Context, companyID int64) (*Subscription, error) {
	var matches []Subscription
	for _, row := range s.rows {
		if row.CompanyID == companyID {
			matches = append(matches, row)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ExpiresAt.After(matches[j].ExpiresAt)
	})
	cp := matches[0]
	return &cp, nil
}

func (s *fakeSubStore) Insert(_ context.Context, sub *Subscription) error {
	s.nextID++
	sub.ID = s.nextID
	s.rows = append(s.rows, *sub)
	return nil
}

func (s *fakeSubStore) SetStatus(_ context.Context, id int64, status SubscriptionStatus, updatedBy int64) error {
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Status = status
			return nil
		}
	}
	return nil
}

type fakePlanStore struct {
	plans map[string]Plan
}

func newFakePlanStore(codes ...string) *fakePlanStore {
	s := &fakePlanStore{plans: make(map[string]Plan)}
	for i, code := range codes {
		s.plans[code] = Plan{ID: int64(i + 1), Code: code, Name: code, PeriodDays: 30}
	}
	return s
}

func (s *fakePlanStore) ByCode(_ context.Context, code string) (*Plan, error) {
	p, ok := s.plans[code]
	if !ok {
		return nil, nil
	}
	cp := p
	return &cp, nil
}

func (s *fakePlanStore) UpsertByCode(_ context.Context, p *Plan) error {
	if existing, ok := s.plans[p.Code]; ok {
		p.ID = existing.ID
	} else {
		p.ID = int64(len(s.plans) + 1)
	}
	s.plans[p.Code] = *p
	return nil
}

// fakeSink records appended audit events.
type fakeSink struct {
	events []audit.Event
	err    error
}

func (s *fakeSink) Append(_ context.Context, ev *audit.Event) error {
	if s.err != nil {
		return s.err
	}
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, *ev)
	return nil
}

type fakeDirectory struct {
	companies map[int64]int64 // tg id -> company id
}

func (d *fakeDirectory) CompanyIDByTelegramID(_ context.Context, tgID int64) (int64, error) {
	return d.companies[tgID], nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
