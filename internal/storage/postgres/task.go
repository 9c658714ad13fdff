package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"stroybot/internal/task"
)

// TaskRepo implements task.Store. All predicates carry company_id: a task
// belonging to another company is indistinguishable from a missing one.
type TaskRepo struct {
	*DB
}

// NewTaskRepo builds the repository.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{DB: db}
}

func (r *TaskRepo) ByIDAndCompany(ctx context.Context, taskID, companyID int64) (*task.Task, error) {
	var t task.Task
	err := sqlx.GetContext(ctx, r.ext(ctx), &t, `
		SELECT id, title, description, status, project_id, company_id, user_id, created_at, deleted_at
		FROM tasks
		WHERE id = $1 AND company_id = $2 AND deleted_at IS NULL`,
		taskID, companyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select task: %w", err)
	}
	return &t, nil
}

func (r *TaskRepo) Insert(ctx context.Context, t *task.Task) error {
	row := r.ext(ctx).QueryRowxContext(ctx, `
		INSERT INTO tasks (title, description, status, project_id, company_id, user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		t.Title, t.Description, t.Status, t.ProjectID, t.CompanyID, t.AssigneeID)
	return row.Scan(&t.ID, &t.CreatedAt)
}

func (r *TaskRepo) SetStatus(ctx context.Context, taskID, companyID int64, status task.Status) error {
	res, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE tasks SET status = $3, updated_at = now()
		WHERE id = $1 AND company_id = $2 AND deleted_at IS NULL`,
		taskID, companyID, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *TaskRepo) SetAssignee(ctx context.Context, taskID, companyID, userID int64) error {
	res, err := r.ext(ctx).ExecContext(ctx, `
		UPDATE tasks SET user_id = $3, updated_at = now()
		WHERE id = $1 AND company_id = $2 AND deleted_at IS NULL`,
		taskID, companyID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *TaskRepo) ListByAssignee(ctx context.Context, userID int64) ([]task.Task, error) {
	var out []task.Task
	err := sqlx.SelectContext(ctx, r.ext(ctx), &out, `
		SELECT id, title, description, status, project_id, company_id, user_id, created_at, deleted_at
		FROM tasks
		WHERE user_id = $1 AND deleted_at IS NULL
		ORDER BY id`, userID)
	return out, err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return task.ErrTaskNotFound
	}
	return nil
}
