package postgres

import (
	"context"
	"errors"
	"time"

	"ai-image-queue/internal/domain/ports/adapter"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ adapter.AnalyticsRecorder = (*eventRepo)(nil)

// eventRepo persists job analytics/audit events. One row per event; webhook
// retries that replay an event id are absorbed by the primary key.
type eventRepo struct {
	pool *pgxpool.Pool
}

func NewEventRepo(pool *pgxpool.Pool) *eventRepo {
	return &eventRepo{pool: pool}
}

const uniqueViolation = "23505"

func (r *eventRepo) Record(ctx context.Context, ev adapter.JobEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	const q = `
INSERT INTO job_events (id, job_id, user_id, kind, detail, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6);`

	_, err := r.pool.Exec(ctx, q, ev.ID, ev.JobID, ev.UserID, ev.Kind, ev.Detail, ev.At)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil // already recorded
		}
		return err
	}
	return nil
}

// EnsureSchema creates the events table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const q = `
CREATE TABLE IF NOT EXISTS job_events (
	id          UUID PRIMARY KEY,
	job_id      TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS job_events_job_id_idx ON job_events (job_id);`

	_, err := pool.Exec(ctx, q)
	return err
}
