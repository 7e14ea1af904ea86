package repository

import (
	"context"

	"ai-image-queue/internal/domain/model"
)

// JobRepository is the storage abstraction for the job queue: job records,
// the FIFO waiting list and the bounded in-flight set. Any backend offering
// atomic list-pop + set-add + field upsert can implement it. Implementations
// fail fast when the store is unreachable; callers decide whether to retry.
type JobRepository interface {
	// Enqueue persists a new job and appends its id to the waiting list.
	Enqueue(ctx context.Context, job *model.Job) error

	// Find returns domain.ErrNotFound for unknown or already evicted ids.
	Find(ctx context.Context, id string) (*model.Job, error)

	// Update applies a field-level merge; unset fields are never touched.
	Update(ctx context.Context, id string, upd model.JobUpdate) error

	// Remove deletes the record and clears the id from the waiting list and
	// the in-flight set.
	Remove(ctx context.Context, id string) error

	// WaitingPosition returns the zero-based index of id in the waiting list,
	// or domain.ErrNotFound if the job is not waiting.
	WaitingPosition(ctx context.Context, id string) (int, error)

	// ClaimBatch atomically pops up to (capacity - |in-flight|) ids off the
	// head of the waiting list and adds them to the in-flight set. It is the
	// sole admission-control critical section and must stay indivisible even
	// under concurrent callers.
	ClaimBatch(ctx context.Context, capacity int) ([]string, error)

	// ReleaseInFlight drops id from the in-flight set once a terminal update
	// has been recorded.
	ReleaseInFlight(ctx context.Context, id string) error

	// ListIDs returns the ids of all live jobs, for janitor sweeps.
	ListIDs(ctx context.Context) ([]string, error)
}
