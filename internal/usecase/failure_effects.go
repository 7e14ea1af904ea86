package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"ai-image-queue/internal/domain/model"
	"ai-image-queue/internal/domain/ports/adapter"
)

// runFailureSideEffects performs the collaborator calls that follow a
// confirmed failure: refund of an on-demand credit, a failure analytics
// event and an operator alert. All three are best-effort; none may abort
// the transition that already happened.
func runFailureSideEffects(
	ctx context.Context,
	job *model.Job,
	reason string,
	credits adapter.CreditGateway,
	analytics adapter.AnalyticsRecorder,
	alerts adapter.AlertNotifier,
	log *zerolog.Logger,
) {
	if job.OnDemandCredit {
		if err := credits.RefundOnDemand(ctx, job.UserID); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Str("user_id", job.UserID).Msg("on-demand credit refund failed")
		}
	}
	if err := analytics.Record(ctx, adapter.JobEvent{
		JobID: job.ID, UserID: job.UserID, Kind: adapter.EventFailed, Detail: reason,
	}); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("analytics record failed")
	}
	if err := alerts.Notify(ctx, alertText(job, reason)); err != nil {
		// The worker may retry webhook delivery on non-2xx, so alert
		// failures are swallowed here and only logged.
		log.Warn().Err(err).Str("job_id", job.ID).Msg("operator alert failed")
	}
}

func alertText(job *model.Job, reason string) string {
	var what string
	switch r := job.Request.(type) {
	case model.GenerateRequest:
		what = "prompt: " + r.Prompt
	case model.ButtonRequest:
		what = "button: " + r.Label
	default:
		what = string(job.Request.Kind())
	}
	return fmt.Sprintf("image job %s failed: %s (%s)", job.ID, reason, what)
}
