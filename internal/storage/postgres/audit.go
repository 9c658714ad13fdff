package postgres

import (
	"context"

	"stroybot/internal/audit"
)

// AuditRepo implements audit.Sink as an append-only table.
type AuditRepo struct {
	*DB
}

// NewAuditRepo builds the repository.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{DB: db}
}

func (r *AuditRepo) Append(ctx context.Context, ev *audit.Event) error {
	payload := ev.Payload
	if payload == nil {
		payload = []byte(`{}`)
	}
	row := r.ext(ctx).QueryRowxContext(ctx, `
		INSERT INTO audit_log (actor_user_id, actor_tg_id, action, entity_type, entity_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		ev.ActorUserID, ev.ActorTgID, ev.Action, ev.EntityType, ev.EntityID, payload)
	return row.Scan(&ev.ID, &ev.CreatedAt)
}
