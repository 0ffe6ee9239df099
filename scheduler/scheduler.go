// Package scheduler runs the billing cycle on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is the job the scheduler drives.
type Runner interface {
	RunBillingCycle(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	logger  *zap.Logger
	timeout time.Duration

	// ctx is cancelled on Stop so an in-flight cycle can abandon its work.
	ctx    context.Context
	cancel context.CancelFunc
}

// New schedules runner on spec, a standard five-field cron expression or a
// descriptor such as "@hourly". Schedules are evaluated in UTC and a run that
// is still going when the next one fires causes that one to be skipped.
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner:  runner,
		logger:  logger,
		timeout: 10 * time.Minute,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid billing schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("billing scheduler started", zap.Time("next_run", s.Next()))
}

// Next returns when the cycle fires next, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops scheduling and waits for a running cycle to finish, or for ctx to
// end, in which case the running cycle is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// RunOnce runs the cycle immediately, outside the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	err := s.runner.RunBillingCycle(ctx)
	if err != nil {
		s.logger.Error("billing cycle failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	s.logger.Debug("billing cycle completed", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	_ = s.RunOnce(ctx)
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
