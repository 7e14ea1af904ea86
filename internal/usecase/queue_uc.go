package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/adapter"
	"ai-image-queue/internal/domain/ports/repository"
	"ai-image-queue/internal/infra/metrics"
)

// Compile-time check
var _ QueueUseCase = (*queueUC)(nil)

// expiredReason is the synthesized failure cause for unknown or evicted ids.
const expiredReason = "expired"

// Snapshot is the client-facing view of a job at poll time.
type Snapshot struct {
	JobID     string
	Status    model.JobStatus
	Position  int // zero-based waiting position; -1 unless QUEUED
	Progress  int
	ImageURL  string
	Buttons   []string
	MessageID string
	Reason    string
	Request   model.Request // echoed back so a failed job can be re-submitted verbatim
	Expired   bool          // true for the synthesized unknown-id failure
}

type QueueUseCase interface {
	// Submit enqueues a new job and returns its initial snapshot.
	Submit(ctx context.Context, userID string, req model.Request, onDemandCredit bool) (*Snapshot, error)

	// Poll returns the current snapshot. Terminal jobs are removed after the
	// first successful read; unknown ids yield a synthesized expired failure.
	Poll(ctx context.Context, jobID string) (*Snapshot, error)

	// AdmitWaiting claims waiting jobs up to the spare capacity and
	// dispatches each to the external worker. Safe to call concurrently.
	AdmitWaiting(ctx context.Context) (int, error)
}

// AsyncRunner runs fire-and-forget tasks off the request path.
type AsyncRunner interface {
	Submit(task func(ctx context.Context) error) error
}

type queueUC struct {
	jobs       repository.JobRepository
	dispatcher adapter.ImageWorkerAdapter
	analytics  adapter.AnalyticsRecorder
	runner     AsyncRunner
	capacity   int
	log        *zerolog.Logger
}

func NewQueueUseCase(
	jobs repository.JobRepository,
	dispatcher adapter.ImageWorkerAdapter,
	analytics adapter.AnalyticsRecorder,
	runner AsyncRunner,
	capacity int,
	logger *zerolog.Logger,
) *queueUC {
	l := logger.With().Str("component", "QueueUC").Logger()
	return &queueUC{
		jobs:       jobs,
		dispatcher: dispatcher,
		analytics:  analytics,
		runner:     runner,
		capacity:   capacity,
		log:        &l,
	}
}

func validateRequest(req model.Request) error {
	switch r := req.(type) {
	case model.GenerateRequest:
		if strings.TrimSpace(r.Prompt) == "" {
			return domain.ErrInvalidArgument
		}
	case model.ButtonRequest:
		if r.Label == "" || r.MessageID == "" {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrUnknownRequest
	}
	return nil
}

func (u *queueUC) Submit(ctx context.Context, userID string, req model.Request, onDemandCredit bool) (*Snapshot, error) {
	if userID == "" || req == nil {
		return nil, domain.ErrInvalidArgument
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	job := model.NewJob(ulid.Make().String(), userID, req, onDemandCredit)
	if err := u.jobs.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	metrics.IncEnqueued(string(req.Kind()))
	u.recordEvent(ctx, job, adapter.EventEnqueued, string(req.Kind()))

	snap := snapshotOf(job)
	if pos, err := u.jobs.WaitingPosition(ctx, job.ID); err == nil {
		snap.Position = pos
	}
	return snap, nil
}

func (u *queueUC) Poll(ctx context.Context, jobID string) (*Snapshot, error) {
	job, err := u.jobs.Find(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		// Expected for evicted or never-existing jobs: hand the UI a uniform
		// failure it can render and offer a retry for.
		return &Snapshot{
			JobID:    jobID,
			Status:   model.JobStatusFailed,
			Position: -1,
			Reason:   expiredReason,
			Expired:  true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	snap := snapshotOf(job)

	switch {
	case job.Status == model.JobStatusQueued:
		if pos, err := u.jobs.WaitingPosition(ctx, job.ID); err == nil {
			snap.Position = pos
		}
		// Draining is demand-driven: a poll on a queued job is what nudges
		// the admission controller.
		if err := u.runner.Submit(func(ctx context.Context) error {
			_, err := u.AdmitWaiting(ctx)
			return err
		}); err != nil {
			u.log.Warn().Err(err).Msg("could not schedule admission nudge")
		}
	case job.Status.Terminal():
		// At-most-once hand-off: the first successful read evicts the job.
		if err := u.jobs.Remove(ctx, job.ID); err != nil {
			u.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to remove terminal job after read")
		}
	}
	return snap, nil
}

func (u *queueUC) AdmitWaiting(ctx context.Context) (int, error) {
	ids, err := u.jobs.ClaimBatch(ctx, u.capacity)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	admitted := 0
	for _, id := range ids {
		job, err := u.jobs.Find(ctx, id)
		if err != nil {
			// Claimed but gone (raced with an eviction): free the slot.
			u.log.Warn().Err(err).Str("job_id", id).Msg("claimed job not found")
			if relErr := u.jobs.ReleaseInFlight(ctx, id); relErr != nil {
				u.log.Error().Err(relErr).Str("job_id", id).Msg("failed to release claimed slot")
			}
			continue
		}

		if job.Status != model.JobStatusQueued {
			// A webhook may fail a job while it still sits in the waiting
			// list. Claiming it must never move it backward.
			u.log.Warn().Str("job_id", id).Str("status", string(job.Status)).Msg("claimed non-queued job, skipping")
			if relErr := u.jobs.ReleaseInFlight(ctx, id); relErr != nil {
				u.log.Error().Err(relErr).Str("job_id", id).Msg("failed to release claimed slot")
			}
			continue
		}

		now := time.Now()
		status := model.JobStatusProcessing
		if err := u.jobs.Update(ctx, id, model.JobUpdate{Status: &status, StartedAt: &now}); err != nil {
			u.log.Error().Err(err).Str("job_id", id).Msg("failed to mark job processing")
			if relErr := u.jobs.ReleaseInFlight(ctx, id); relErr != nil {
				u.log.Error().Err(relErr).Str("job_id", id).Msg("failed to release claimed slot")
			}
			continue
		}
		job.Status = status
		job.StartedAt = now
		admitted++
		u.recordEvent(ctx, job, adapter.EventAdmitted, "")

		// Fire-and-forget dispatch. Failures are not retried here; the job
		// stays PROCESSING until the stale-processing sweep reclaims it.
		dispatchJob := job
		if err := u.runner.Submit(func(ctx context.Context) error {
			if err := u.dispatcher.Dispatch(ctx, dispatchJob); err != nil {
				metrics.IncDispatchFailure()
				u.log.Error().Err(err).Str("job_id", dispatchJob.ID).Msg("worker dispatch failed")
			}
			return nil
		}); err != nil {
			metrics.IncDispatchFailure()
			u.log.Error().Err(err).Str("job_id", job.ID).Msg("could not schedule worker dispatch")
		}
	}

	metrics.AddAdmitted(admitted)
	return admitted, nil
}

func (u *queueUC) recordEvent(ctx context.Context, job *model.Job, kind, detail string) {
	ev := adapter.JobEvent{JobID: job.ID, UserID: job.UserID, Kind: kind, Detail: detail}
	if err := u.analytics.Record(ctx, ev); err != nil {
		u.log.Warn().Err(err).Str("job_id", job.ID).Str("kind", kind).Msg("analytics record failed")
	}
}

func snapshotOf(job *model.Job) *Snapshot {
	return &Snapshot{
		JobID:     job.ID,
		Status:    job.Status,
		Position:  -1,
		Progress:  job.Progress,
		ImageURL:  job.ImageURL,
		Buttons:   job.Buttons,
		MessageID: job.MessageID,
		Reason:    job.Reason,
		Request:   job.Request,
	}
}
