// Package task implements the tenant-scoped task workflow engine. Every
// mutation is bounded by the caller's company: a task belonging to another
// company behaves exactly like a missing one.
package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stroybot/core/logger"
	"stroybot/internal/audit"
	"stroybot/internal/metrics"
	"stroybot/internal/storage"
)

// Status enumerates workflow states.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusApproved   Status = "approved"
	StatusRework     Status = "rework"
)

var (
	// ErrTaskNotFound covers both a missing task and a cross-tenant reference.
	ErrTaskNotFound = errors.New("task: not found")
	// ErrIllegalTransition rejects a move the workflow does not allow.
	ErrIllegalTransition = errors.New("task: illegal status transition")
	// ErrInvalidStatus rejects a status outside the known set.
	ErrInvalidStatus = errors.New("task: invalid status")
)

// transitions is the allowed-move table. approved is terminal; rework loops
// back into in_progress.
var transitions = map[Status][]Status{
	StatusTodo:       {StatusInProgress},
	StatusInProgress: {StatusReady},
	StatusReady:      {StatusApproved, StatusRework},
	StatusRework:     {StatusInProgress},
	StatusApproved:   {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the workflow permits from -> to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is one unit of work owned by exactly one company.
type Task struct {
	ID          int64         `db:"id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	Status      Status        `db:"status"`
	ProjectID   sql.NullInt64 `db:"project_id"`
	CompanyID   int64         `db:"company_id"`
	AssigneeID  sql.NullInt64 `db:"user_id"`
	CreatedAt   time.Time     `db:"created_at"`
	DeletedAt   sql.NullTime  `db:"deleted_at"`
}

// Store persists tasks. Tenant scoping lives in the query predicates, never
// in post-hoc filtering.
type Store interface {
	// ByIDAndCompany returns nil when the task does not exist or belongs to
	// a different company.
	ByIDAndCompany(ctx context.Context, taskID, companyID int64) (*Task, error)
	Insert(ctx context.Context, t *Task) error
	SetStatus(ctx context.Context, taskID, companyID int64, status Status) error
	SetAssignee(ctx context.Context, taskID, companyID, userID int64) error
	ListByAssignee(ctx context.Context, userID int64) ([]Task, error)
}

// Workflow is the task state machine engine.
type Workflow struct {
	store Store
	sink  audit.Sink
	tx    storage.TxRunner
	stats *metrics.Collector
}

// NewWorkflow wires the engine. A nil tx runs mutations untransacted.
func NewWorkflow(store Store, sink audit.Sink, tx storage.TxRunner, stats *metrics.Collector) *Workflow {
	if tx == nil {
		tx = storage.NopTx{}
	}
	return &Workflow{store: store, sink: sink, tx: tx, stats: stats}
}

// Create inserts a task in todo for the actor's company.
func (w *Workflow) Create(ctx context.Context, t *Task, actor audit.Actor) (*Task, error) {
	if t == nil || t.Title == "" {
		return nil, fmt.Errorf("task: empty title")
	}
	if t.CompanyID == 0 {
		return nil, fmt.Errorf("task: missing company")
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	err := w.tx.InTx(ctx, func(ctx context.Context) error {
		if err := w.store.Insert(ctx, t); err != nil {
			return fmt.Errorf("insert task: %w", err)
		}
		return audit.Record(ctx, w.sink, actor, audit.ActionTaskCreated, "task", t.ID, map[string]any{
			"company_id": t.CompanyID,
			"title":      t.Title,
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "tasks", "task.create",
		slog.Int64("task_id", t.ID),
		slog.Int64("company_id", t.CompanyID),
	)
	return t, nil
}

// SetStatus moves a task through the workflow. The task must belong to the
// calling company, the move must be allowed by the transition table, and
// every success appends exactly one audit event carrying the new status.
func (w *Workflow) SetStatus(ctx context.Context, taskID, companyID int64, newStatus Status, actor audit.Actor) (*Task, error) {
	if !newStatus.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	t, err := w.store.ByIDAndCompany(ctx, taskID, companyID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	if !CanTransition(t.Status, newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, t.Status, newStatus)
	}

	err = w.tx.InTx(ctx, func(ctx context.Context) error {
		if err := w.store.SetStatus(ctx, taskID, companyID, newStatus); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		return audit.Record(ctx, w.sink, actor, audit.ActionStatusChanged, "task", taskID, map[string]any{
			"new_status": string(newStatus),
		})
	})
	if err != nil {
		return nil, err
	}

	t.Status = newStatus
	w.stats.IncTransition(string(newStatus))
	logger.Info(ctx, "tasks", "task.status",
		slog.Int64("task_id", taskID),
		slog.Int64("company_id", companyID),
		slog.String("status", string(newStatus)),
	)
	return t, nil
}

// Reassign changes the assignee. It is tenant-scoped like SetStatus but is
// a distinct operation and does not emit a status-change event.
func (w *Workflow) Reassign(ctx context.Context, taskID, companyID, newAssignee int64, actor audit.Actor) (*Task, error) {
	t, err := w.store.ByIDAndCompany(ctx, taskID, companyID)
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	err = w.tx.InTx(ctx, func(ctx context.Context) error {
		if err := w.store.SetAssignee(ctx, taskID, companyID, newAssignee); err != nil {
			return fmt.Errorf("set assignee: %w", err)
		}
		return audit.Record(ctx, w.sink, actor, audit.ActionTaskReassigned, "task", taskID, map[string]any{
			"new_assignee": newAssignee,
		})
	})
	if err != nil {
		return nil, err
	}
	t.AssigneeID = sql.NullInt64{Int64: newAssignee, Valid: true}
	logger.Info(ctx, "tasks", "task.reassign",
		slog.Int64("task_id", taskID),
		slog.Int64("assignee", newAssignee),
	)
	return t, nil
}

// MyTasks lists tasks assigned to the user.
func (w *Workflow) MyTasks(ctx context.Context, userID int64) ([]Task, error) {
	return w.store.ListByAssignee(ctx, userID)
}
