package adapter

import (
	"context"
	"time"
)

// Job event kinds recorded for observability and audit.
const (
	EventEnqueued         = "enqueued"
	EventAdmitted         = "admitted"
	EventCompleted        = "completed"
	EventFailed           = "failed"
	EventEvictedStale     = "evicted_stale"
	EventEvictedRetention = "evicted_retention"
)

type JobEvent struct {
	ID     string
	JobID  string
	UserID string
	Kind   string
	Detail string
	At     time.Time
}

// AnalyticsRecorder persists job events. Best-effort from the caller's point
// of view: recording failures are logged, never propagated.
type AnalyticsRecorder interface {
	Record(ctx context.Context, ev JobEvent) error
}
