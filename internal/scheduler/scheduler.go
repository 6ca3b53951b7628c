package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"
)

const defaultRunTimeout = 5 * time.Minute

// Backfiller generates conditions for sessions that are still missing them.
type Backfiller interface {
	BackfillConditions(ctx context.Context, limit int) (int, error)
}

// Scheduler periodically backfills missing surf conditions.
type Scheduler struct {
	scheduler *gocron.Scheduler
	backfill  Backfiller
	interval  time.Duration
	batchSize int
	timeout   time.Duration
	log       *zap.Logger
}

// New creates a new Scheduler. An interval of 0 disables the job.
func New(backfill Backfiller, interval time.Duration, batchSize int, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := defaultRunTimeout
	if interval > 0 && interval < timeout {
		timeout = interval
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		backfill:  backfill,
		interval:  interval,
		batchSize: batchSize,
		timeout:   timeout,
		log:       log.Named("scheduler"),
	}
}

// Start schedules the backfill job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.log.Info("backfill disabled; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info("backfill scheduled", zap.Duration("interval", s.interval), zap.Int("batch_size", s.batchSize))
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	filled, err := s.backfill.BackfillConditions(ctx, s.batchSize)
	if err != nil {
		s.log.Error("backfill failed", zap.Int("filled", filled), zap.Error(err))
		return
	}
	s.log.Debug("backfill completed", zap.Int("filled", filled), zap.Duration("took", time.Since(start)))
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
