// Package worker runs the recurring outreach sweep on a cron schedule.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-review-backend/internal/services"
)

// Sweeper periodically delivers due review requests.
type Sweeper struct {
	Outreach *services.OutreachService

	interval time.Duration
	cron     *cron.Cron
}

// NewSweeper constructs a Sweeper that runs every interval.
func NewSweeper(outreach *services.OutreachService, interval time.Duration) *Sweeper {
	return &Sweeper{Outreach: outreach, interval: interval}
}

// Start schedules the sweep and begins running it. Each pass gets its own
// timeout so a stuck delivery cannot wedge the schedule.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("interval", s.interval.String()).Msg("outreach sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight pass to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	log.Info().Msg("outreach sweeper stopped")
}

func (s *Sweeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := s.Outreach.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("outreach sweep failed")
		return
	}
	if res.Due > 0 {
		log.Info().
			Int("due", res.Due).
			Int("sent", res.Sent).
			Int("failed", res.Failed).
			Msg("outreach sweep")
	}
}
