package alert

import (
	"context"

	"ai-image-queue/internal/domain/ports/adapter"

	"github.com/rs/zerolog"
)

var _ adapter.AlertNotifier = (*NoopAlerter)(nil)

// NoopAlerter stands in for the operator channel in dev mode.
type NoopAlerter struct {
	log *zerolog.Logger
}

func NewNoopAlerter(logger *zerolog.Logger) *NoopAlerter {
	return &NoopAlerter{log: logger}
}

func (a *NoopAlerter) Notify(ctx context.Context, text string) error {
	a.log.Debug().Str("alert", text).Msg("noop alerter: dropping operator alert")
	return nil
}
