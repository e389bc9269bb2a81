package audit

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink writes events to audit_logs.
type PostgresSink struct {
	DB *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{DB: db}
}

func (s *PostgresSink) Record(ctx context.Context, e Event) error {
	query := `
		INSERT INTO audit_logs (
			event_id, actor_user_id, action, entity, entity_id, description, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := s.DB.Exec(ctx, query,
		e.ID, e.ActorUserID, string(e.Action), e.Entity, e.EntityID, e.Description, e.At,
	)
	return err
}

// LogSink writes events as structured log lines.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Record(ctx context.Context, e Event) error {
	s.Logger.InfoContext(ctx, "audit",
		"event_id", e.ID.String(),
		"actor_user_id", e.ActorUserID,
		"action", string(e.Action),
		"entity", e.Entity,
		"entity_id", e.EntityID,
		"description", e.Description,
		"at", e.At,
	)
	return nil
}
