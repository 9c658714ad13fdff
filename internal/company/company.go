// Package company owns the tenant boundary: companies, their members, and
// the trial created atomically with every new company.
package company

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stroybot/core/logger"
	"stroybot/internal/audit"
	"stroybot/internal/billing"
	"stroybot/internal/storage"
)

// Role enumerates member roles inside a company.
type Role string

const (
	RoleManager    Role = "manager"
	RoleForeman    Role = "foreman"
	RoleWorker     Role = "worker"
	RoleClient     Role = "client"
	RoleSupplier   Role = "supplier"
	RoleAccountant Role = "accountant"
	RoleAdmin      Role = "admin"
)

// ErrCompanyNotFound is returned for unknown company ids.
var ErrCompanyNotFound = errors.New("company: not found")

// Company is the multi-tenant isolation boundary.
type Company struct {
	ID        int64         `db:"id"`
	Name      string        `db:"name"`
	CreatedBy sql.NullInt64 `db:"created_by"`
}

// User is a Telegram account known to the bot, optionally bound to a company.
type User struct {
	ID        int64         `db:"id"`
	TgID      int64         `db:"tg_id"`
	Role      Role          `db:"role"`
	CompanyID sql.NullInt64 `db:"company_id"`
	IsActive  bool          `db:"is_active"`
	CreatedAt time.Time     `db:"created_at"`
}

// Store persists companies and users.
type Store interface {
	InsertCompany(ctx context.Context, c *Company) error
	CompanyByID(ctx context.Context, id int64) (*Company, error)
	// UserByTelegramID returns nil when the account is unknown.
	UserByTelegramID(ctx context.Context, tgID int64) (*User, error)
	InsertUser(ctx context.Context, u *User) error
	SetMembership(ctx context.Context, userID, companyID int64, role Role) error
	// AdminsAndManagers lists members entitled to billing notifications.
	AdminsAndManagers(ctx context.Context, companyID int64) ([]User, error)
}

// Service wires company lifecycle operations.
type Service struct {
	store     Store
	trials    *billing.TrialManager
	sink      audit.Sink
	tx        storage.TxRunner
	trialDays int
}

// NewService builds the service. trialDays <= 0 selects the default.
func NewService(store Store, trials *billing.TrialManager, sink audit.Sink, tx storage.TxRunner, trialDays int) *Service {
	if tx == nil {
		tx = storage.NopTx{}
	}
	if trialDays <= 0 {
		trialDays = billing.DefaultTrialDays
	}
	return &Service{store: store, trials: trials, sink: sink, tx: tx, trialDays: trialDays}
}

// CreateCompany creates the company, its trial, and binds the creator as
// manager — all in one transaction.
func (s *Service) CreateCompany(ctx context.Context, name string, creatorTgID int64) (*Company, error) {
	if name == "" {
		return nil, fmt.Errorf("company: empty name")
	}
	creator, err := s.ensureUser(ctx, creatorTgID)
	if err != nil {
		return nil, err
	}

	c := &Company{
		Name:      name,
		CreatedBy: sql.NullInt64{Int64: creator.ID, Valid: true},
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.store.InsertCompany(ctx, c); err != nil {
			return fmt.Errorf("insert company: %w", err)
		}
		if _, err := s.trials.StartTrial(ctx, c.ID, creator.ID, s.trialDays); err != nil {
			return err
		}
		if err := s.store.SetMembership(ctx, creator.ID, c.ID, RoleManager); err != nil {
			return fmt.Errorf("bind creator: %w", err)
		}
		return audit.Record(ctx, s.sink, audit.Actor{UserID: creator.ID, TgID: creatorTgID}, audit.ActionCompanyCreated, "company", c.ID, map[string]any{
			"name": name,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "company", "company.create",
		slog.Int64("company_id", c.ID),
		slog.String("name", name),
	)
	return c, nil
}

// Join binds the user to an existing company with the given role; worker
// when the role is empty.
func (s *Service) Join(ctx context.Context, tgID, companyID int64, role Role) (*User, error) {
	if role == "" {
		role = RoleWorker
	}
	c, err := s.store.CompanyByID(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load company: %w", err)
	}
	if c == nil {
		return nil, ErrCompanyNotFound
	}
	u, err := s.ensureUser(ctx, tgID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetMembership(ctx, u.ID, companyID, role); err != nil {
		return nil, fmt.Errorf("join company: %w", err)
	}
	u.CompanyID = sql.NullInt64{Int64: companyID, Valid: true}
	u.Role = role
	logger.Info(ctx, "company", "company.join",
		slog.Int64("company_id", companyID),
		slog.Int64("user_id", u.ID),
		slog.String("role", string(role)),
	)
	return u, nil
}

// CompanyIDByTelegramID implements billing.MemberDirectory.
func (s *Service) CompanyIDByTelegramID(ctx context.Context, tgID int64) (int64, error) {
	u, err := s.store.UserByTelegramID(ctx, tgID)
	if err != nil {
		return 0, err
	}
	if u == nil || !u.CompanyID.Valid {
		return 0, nil
	}
	return u.CompanyID.Int64, nil
}

// UserByTelegramID exposes the member lookup for handlers.
func (s *Service) UserByTelegramID(ctx context.Context, tgID int64) (*User, error) {
	return s.store.UserByTelegramID(ctx, tgID)
}

func (s *Service) ensureUser(ctx context.Context, tgID int64) (*User, error) {
	u, err := s.store.UserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u != nil {
		return u, nil
	}
	u = &User{TgID: tgID, Role: RoleClient, IsActive: true}
	if err := s.store.InsertUser(ctx, u); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}
