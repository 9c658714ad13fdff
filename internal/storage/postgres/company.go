package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stroybot/internal/company"
)

// CompanyRepo implements company.Store.
type CompanyRepo struct {
	*DB
}

// NewCompanyRepo builds the repository.
func NewCompanyRepo(db *DB) *CompanyRepo {
	return &CompanyRepo{DB: db}
}

func (r *CompanyRepo) InsertCompany(ctx context.Context, c *company.Company) error {
	row := r.ext(ctx).QueryRowxContext(ctx, `
		INSERT INTO companies (name, created_by) VALUES ($1, $2) RETURNING id`,
		c.Name, c.CreatedBy)
	return row.Scan(&c.ID)
}

func (r *CompanyRepo) CompanyByID(ctx context.Context, id int64) (*company.Company, error) {
	var c company.Company
	err := sqlx.GetContext(ctx, r.ext(ctx), &c, `
		SELECT id, name, created_by FROM companies WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select company: %w", err)
	}
	return &c, nil
}

func (r *CompanyRepo) UserByTelegramID(ctx context.Context, tgID int64) (*company.User, error) {
	var u company.User
	err := sqlx.GetContext(ctx, r.ext(ctx), &u, `
		SELECT id, tg_id, role, company_id, is_active, created_at
		FROM users WHERE tg_id = $1`, tgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

func (r *CompanyRepo) InsertUser(ctx context.Context, u *company.User) error {
	row := r.ext(ctx).QueryRowxContext(ctx, `
		INSERT INTO users (tg_id, role, company_id, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		u.TgID, u.Role, u.CompanyID, u.IsActive)
	return row.Scan(&u.ID)
}

func (r *CompanyRepo) SetMembership(ctx context.Context, userID, companyID int64, role company.Role) error {
	_, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE users SET company_id = $2, role = $3, updated_at = now() WHERE id = $1`,
		userID, companyID, role)
	return err
}

func (r *CompanyRepo) AdminsAndManagers(ctx context.Context, companyID int64) ([]company.User, error) {
	var out []company.User
	err := sqlx.SelectContext(ctx, r.ext(ctx), &out, `
		SELECT id, tg_id, role, company_id, is_active, created_at
		FROM users
		WHERE company_id = $1 AND role IN ('admin', 'manager') AND is_active
		ORDER BY id`, companyID)
	return out, err
}
