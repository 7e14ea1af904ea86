package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"ai-image-queue/internal/domain"
	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/adapter"
	"ai-image-queue/internal/domain/ports/repository"
	"ai-image-queue/internal/infra/metrics"
)

// staleReason marks jobs reclaimed because the worker never reported back.
const staleReason = "processing timeout"

type JanitorUseCase interface {
	// SweepStaleProcessing force-fails PROCESSING jobs whose dispatch is
	// older than the stale threshold and frees their in-flight slots.
	SweepStaleProcessing(ctx context.Context) (int, error)

	// SweepExpiredTerminal evicts jobs older than the retention window,
	// bounding store growth for clients that never polled again.
	SweepExpiredTerminal(ctx context.Context) (int, error)
}

// Compile-time check
var _ JanitorUseCase = (*janitorUC)(nil)

type janitorUC struct {
	jobs       repository.JobRepository
	credits    adapter.CreditGateway
	analytics  adapter.AnalyticsRecorder
	alerts     adapter.AlertNotifier
	staleAfter time.Duration
	retention  time.Duration
	log        *zerolog.Logger
}

func NewJanitorUseCase(
	jobs repository.JobRepository,
	credits adapter.CreditGateway,
	analytics adapter.AnalyticsRecorder,
	alerts adapter.AlertNotifier,
	staleAfter, retention time.Duration,
	logger *zerolog.Logger,
) *janitorUC {
	l := logger.With().Str("component", "JanitorUC").Logger()
	return &janitorUC{
		jobs:       jobs,
		credits:    credits,
		analytics:  analytics,
		alerts:     alerts,
		staleAfter: staleAfter,
		retention:  retention,
		log:        &l,
	}
}

func (u *janitorUC) SweepStaleProcessing(ctx context.Context) (int, error) {
	ids, err := u.jobs.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-u.staleAfter)

	swept := 0
	for _, id := range ids {
		job, err := u.jobs.Find(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue // evicted while sweeping
		}
		if err != nil {
			u.log.Error().Err(err).Str("job_id", id).Msg("stale sweep: read failed, continuing")
			continue
		}
		if job.Status != model.JobStatusProcessing || job.StartedAt.IsZero() || !job.StartedAt.Before(cutoff) {
			continue
		}

		reason := staleReason
		status := model.JobStatusFailed
		if err := u.jobs.Update(ctx, id, model.JobUpdate{Status: &status, Reason: &reason}); err != nil {
			u.log.Error().Err(err).Str("job_id", id).Msg("stale sweep: update failed, continuing")
			continue
		}
		if err := u.jobs.ReleaseInFlight(ctx, id); err != nil {
			u.log.Error().Err(err).Str("job_id", id).Msg("stale sweep: release failed")
		}
		metrics.IncFinished(string(model.JobStatusFailed))

		// Same side effects as an externally reported failure.
		runFailureSideEffects(ctx, job, reason, u.credits, u.analytics, u.alerts, u.log)
		u.audit(ctx, job, adapter.EventEvictedStale)
		swept++
	}

	metrics.AddEvicted("stale", swept)
	return swept, nil
}

func (u *janitorUC) SweepExpiredTerminal(ctx context.Context) (int, error) {
	ids, err := u.jobs.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().Add(-u.retention)

	evicted := 0
	for _, id := range ids {
		job, err := u.jobs.Find(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			u.log.Error().Err(err).Str("job_id", id).Msg("retention sweep: read failed, continuing")
			continue
		}
		// Terminal jobs whose owner never polled again, plus queued jobs no
		// client ever came back for. Anything younger stays.
		if !job.EnqueuedAt.Before(cutoff) {
			continue
		}
		if err := u.jobs.Remove(ctx, id); err != nil {
			u.log.Error().Err(err).Str("job_id", id).Msg("retention sweep: remove failed, continuing")
			continue
		}
		u.audit(ctx, job, adapter.EventEvictedRetention)
		evicted++
	}

	metrics.AddEvicted("retention", evicted)
	return evicted, nil
}

func (u *janitorUC) audit(ctx context.Context, job *model.Job, kind string) {
	ev := adapter.JobEvent{JobID: job.ID, UserID: job.UserID, Kind: kind, Detail: string(job.Status)}
	if err := u.analytics.Record(ctx, ev); err != nil {
		u.log.Warn().Err(err).Str("job_id", job.ID).Str("kind", kind).Msg("audit record failed")
	}
}
