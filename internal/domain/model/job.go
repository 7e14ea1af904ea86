package model

import "time"

type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one admission-controlled unit of externally executed image work.
// Field ownership: the admission controller writes Status/StartedAt once
// (QUEUED -> PROCESSING); webhook ingestion writes Progress, ImageURL and the
// terminal fields; everything else is set once at enqueue time.
type Job struct {
	ID         string
	UserID     string
	Status     JobStatus
	Request    Request
	EnqueuedAt time.Time
	StartedAt  time.Time

	// Progress is only meaningful while PROCESSING. The worker is trusted:
	// values may regress because webhooks can arrive out of order.
	Progress int

	ImageURL  string
	Buttons   []string
	MessageID string // worker-side message id, used to build follow-up button actions
	Reason    string // failure cause, set only on FAILED

	// OnDemandCredit marks a job paid with a pay-per-use credit rather than a
	// plan allotment. Read by the refund trigger on confirmed failure.
	OnDemandCredit bool
}

func NewJob(id, userID string, req Request, onDemandCredit bool) *Job {
	return &Job{
		ID:             id,
		UserID:         userID,
		Status:         JobStatusQueued,
		Request:        req,
		EnqueuedAt:     time.Now(),
		OnDemandCredit: onDemandCredit,
	}
}

// JobUpdate is a field-level merge applied to a stored job. Nil fields are
// left untouched so concurrent writers never clobber unrelated fields.
type JobUpdate struct {
	Status    *JobStatus
	StartedAt *time.Time
	Progress  *int
	ImageURL  *string
	Buttons   []string
	MessageID *string
	Reason    *string
}
