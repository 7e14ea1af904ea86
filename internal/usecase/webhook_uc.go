package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/adapter"
	"ai-image-queue/internal/domain/ports/repository"
	"ai-image-queue/internal/infra/metrics"
)

// Worker callback statuses on the wire.
const (
	UpdateProcessing = "PROCESSING"
	UpdateDone       = "DONE"
	UpdateFail       = "FAIL"
)

// WorkerUpdate is one webhook callback from the external generation worker,
// correlated to a job by Ref.
type WorkerUpdate struct {
	Ref       string
	Status    string
	Progress  int
	ImageURL  string
	Buttons   []string
	MessageID string
	Error     string
}

type WebhookUseCase interface {
	Handle(ctx context.Context, upd WorkerUpdate) error
}

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type webhookUC struct {
	jobs      repository.JobRepository
	credits   adapter.CreditGateway
	analytics adapter.AnalyticsRecorder
	alerts    adapter.AlertNotifier
	log       *zerolog.Logger
}

func NewWebhookUseCase(
	jobs repository.JobRepository,
	credits adapter.CreditGateway,
	analytics adapter.AnalyticsRecorder,
	alerts adapter.AlertNotifier,
	logger *zerolog.Logger,
) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{
		jobs:      jobs,
		credits:   credits,
		analytics: analytics,
		alerts:    alerts,
		log:       &l,
	}
}

func (u *webhookUC) Handle(ctx context.Context, upd WorkerUpdate) error {
	job, err := u.jobs.Find(ctx, upd.Ref)
	if errors.Is(err, domain.ErrNotFound) {
		// The job was already read and evicted, or retention swept it.
		// Expected, not an error.
		metrics.IncWebhook("unknown_ref")
		u.log.Debug().Str("ref", upd.Ref).Str("status", upd.Status).Msg("webhook for unknown job, ignoring")
		return nil
	}
	if err != nil {
		return err
	}

	switch upd.Status {
	case UpdateProcessing:
		if job.Status.Terminal() {
			u.anomaly(job, upd.Status)
			return nil
		}
		metrics.IncWebhook("processing")
		fields := model.JobUpdate{Progress: &upd.Progress}
		if upd.ImageURL != "" {
			fields.ImageURL = &upd.ImageURL
		}
		return u.jobs.Update(ctx, job.ID, fields)

	case UpdateDone:
		if job.Status.Terminal() {
			// Replayed delivery; the first one already transitioned the job.
			u.anomaly(job, upd.Status)
			return nil
		}
		metrics.IncWebhook("done")
		status := model.JobStatusCompleted
		fields := model.JobUpdate{
			Status:   &status,
			ImageURL: &upd.ImageURL,
			Buttons:  upd.Buttons,
		}
		if upd.MessageID != "" {
			fields.MessageID = &upd.MessageID
		}
		if err := u.jobs.Update(ctx, job.ID, fields); err != nil {
			return err
		}
		u.releaseSlot(ctx, job.ID)
		metrics.IncFinished(string(model.JobStatusCompleted))
		if err := u.analytics.Record(ctx, adapter.JobEvent{
			JobID: job.ID, UserID: job.UserID, Kind: adapter.EventCompleted,
		}); err != nil {
			u.log.Warn().Err(err).Str("job_id", job.ID).Msg("analytics record failed")
		}
		return nil

	case UpdateFail:
		if job.Status.Terminal() {
			u.anomaly(job, upd.Status)
			return nil
		}
		metrics.IncWebhook("fail")
		reason := upd.Error
		if reason == "" {
			reason = "worker reported failure"
		}
		status := model.JobStatusFailed
		if err := u.jobs.Update(ctx, job.ID, model.JobUpdate{Status: &status, Reason: &reason}); err != nil {
			return err
		}
		u.releaseSlot(ctx, job.ID)
		metrics.IncFinished(string(model.JobStatusFailed))
		runFailureSideEffects(ctx, job, reason, u.credits, u.analytics, u.alerts, u.log)
		return nil

	default:
		return fmt.Errorf("%w: webhook status %q", domain.ErrInvalidArgument, upd.Status)
	}
}

func (u *webhookUC) releaseSlot(ctx context.Context, jobID string) {
	if err := u.jobs.ReleaseInFlight(ctx, jobID); err != nil {
		u.log.Error().Err(err).Str("job_id", jobID).Msg("failed to release in-flight slot")
	}
}

// anomaly logs updates that would move a job backward out of a terminal
// state. They are ignored, never applied.
func (u *webhookUC) anomaly(job *model.Job, wireStatus string) {
	metrics.IncWebhookAnomaly()
	u.log.Warn().
		Str("job_id", job.ID).
		Str("job_status", string(job.Status)).
		Str("webhook_status", wireStatus).
		Msg("ignoring webhook update for terminal job")
}
