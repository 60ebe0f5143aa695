package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleRunStore marks in-flight calls older than a cutoff as failed.
type StaleRunStore interface {
	SweepStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Sweeper periodically fails processing runs that stopped reporting
// progress, so their calls become re-triggerable again. Runs whose worker
// died mid-flight are the usual source.
type Sweeper struct {
	store  StaleRunStore
	maxAge time.Duration
	logger *slog.Logger
	cron   *cron.Cron
	clock  func() time.Time
}

func NewSweeper(store StaleRunStore, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &Sweeper{
		store:  store,
		maxAge: maxAge,
		logger: logger,
		clock:  time.Now,
	}
}

func (s *Sweeper) SetClock(clock func() time.Time) { s.clock = clock }

// Start schedules the sweep every five minutes until Stop is called.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("*/5 * * * *", func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// Sweep runs one pass; exposed for tests and manual ops.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := s.clock().UTC().Add(-s.maxAge)
	swept, err := s.store.SweepStale(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "stale run sweep failed", "error", err)
		return
	}
	if len(swept) > 0 {
		s.logger.WarnContext(ctx, "stale runs swept to failed", "count", len(swept), "call_ids", swept)
	}
}
