// Package audit records every state-changing operation of the billing and
// task cores as immutable events. The sink is written inside the caller's
// transaction: an action without its audit record must not commit.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Actions recorded by the core.
const (
	ActionCompanyCreated      = "company_created"
	ActionTrialStarted        = "trial_started"
	ActionTrialExtended       = "trial_extended"
	ActionSubscriptionStarted = "subscription_started"
	ActionSubscriptionPaused  = "subscription_paused"
	ActionSubscriptionResumed = "subscription_resumed"
	ActionSubscriptionCancel  = "subscription_canceled"
	ActionTaskCreated         = "task_created"
	ActionStatusChanged       = "status_changed"
	ActionTaskReassigned      = "task_reassigned"
)

// Event is an immutable audit record. Written once, never mutated.
type Event struct {
	ID          int64         `db:"id"`
	ActorUserID sql.NullInt64 `db:"actor_user_id"`
	ActorTgID   sql.NullInt64 `db:"actor_tg_id"`
	Action      string        `db:"action"`
	EntityType  string        `db:"entity_type"`
	EntityID    sql.NullInt64 `db:"entity_id"`
	Payload     []byte        `db:"payload"`
	CreatedAt   time.Time     `db:"created_at"`
}

// Sink consumes audit events. Failure is fatal to the enclosing operation.
type Sink interface {
	Append(ctx context.Context, ev *Event) error
}

// Actor identifies who performed an action. Zero values mean "unknown".
type Actor struct {
	UserID int64
	TgID   int64
}

// NewEvent builds an event with a JSON payload. An empty action is a
// programming error and is rejected.
func NewEvent(actor Actor, action, entityType string, entityID int64, payload map[string]any) (*Event, error) {
	if action == "" {
		return nil, fmt.Errorf("audit: empty action")
	}
	ev := &Event{
		Action:     action,
		EntityType: entityType,
	}
	if actor.UserID != 0 {
		ev.ActorUserID = sql.NullInt64{Int64: actor.UserID, Valid: true}
	}
	if actor.TgID != 0 {
		ev.ActorTgID = sql.NullInt64{Int64: actor.TgID, Valid: true}
	}
	if entityID != 0 {
		ev.EntityID = sql.NullInt64{Int64: entityID, Valid: true}
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("audit: marshal payload: %w", err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Record builds and appends an event in one call.
func Record(ctx context.Context, sink Sink, actor Actor, action, entityType string, entityID int64, payload map[string]any) error {
	if sink == nil {
		return fmt.Errorf("audit: nil sink")
	}
	ev, err := NewEvent(actor, action, entityType, entityID, payload)
	if err != nil {
		return err
	}
	if err := sink.Append(ctx, ev); err != nil {
		return fmt.Errorf("audit: append %s: %w", action, err)
	}
	return nil
}
