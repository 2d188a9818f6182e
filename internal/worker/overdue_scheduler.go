package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-quiz/internal/clock"
)

// SweepTimeout bounds a single scheduled sweep.
const SweepTimeout = 4 * time.Minute

// OverdueScheduler runs the overdue sweep on a cron schedule. A run that
// overlaps the previous one is skipped.
type OverdueScheduler struct {
	cron    *cron.Cron
	sweeper *OverdueSweeper
	clock   clock.Clock
	log     zerolog.Logger
}

// NewOverdueScheduler registers the sweep under spec, e.g. "@every 1m".
func NewOverdueScheduler(spec string, sweeper *OverdueSweeper, clk clock.Clock, log zerolog.Logger) (*OverdueScheduler, error) {
	l := log.With().Str("component", "overdue_scheduler").Logger()
	cl := cronLogger{log: l}
	s := &OverdueScheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper: sweeper,
		clock:   clk,
		log:     l,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule overdue sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *OverdueScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), SweepTimeout)
	defer cancel()
	if _, err := s.sweeper.Run(ctx, s.clock.Unix()); err != nil {
		s.log.Error().Err(err).Msg("Overdue sweep failed")
	}
}

// Start begins running the schedule in its own goroutine.
func (s *OverdueScheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Overdue scheduler started")
}

// Stop halts the schedule and waits for a running sweep, up to ctx.
func (s *OverdueScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("Overdue sweep still running at shutdown")
	}
}

// cronLogger feeds cron's key/value logging into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
