package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweep is the minimal shape the scheduler needs from a janitor sweep: it
// returns how many jobs it handled.
type Sweep func(ctx context.Context) (int, error)

// Scheduler periodically runs a single sweep with a bounded per-run timeout.
type Scheduler struct {
	name     string
	interval time.Duration
	sweep    Sweep
	log      *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler that runs sweep every interval.
// If interval <= 0 it defaults to 1 minute.
func NewScheduler(name string, interval time.Duration, sweep Sweep, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Str("sweep", name).Logger()
	return &Scheduler{
		name:     name,
		interval: interval,
		sweep:    sweep,
		log:      &l,
		done:     make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
// Calling Start more than once has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(s.ctx, time.Minute)
			n, err := s.sweep(runCtx)
			cancel()
			if err != nil {
				s.log.Error().Err(err).Msg("sweep error")
				continue
			}
			if n > 0 {
				s.log.Info().Int("count", n).Msg("sweep handled jobs")
			}
		}
	}
}

// Stop cancels the scheduler and waits for the loop to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
