package worker

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduledJob is a periodic scan run by the Scheduler.
type ScheduledJob interface {
	Name() string
	Run(ctx context.Context) (RunReport, error)
}

// Scheduler triggers jobs on cron specs and runs them on the pool.
type Scheduler struct {
	cron   *cron.Cron
	pool   *Pool
	logger *zap.Logger
}

// NewScheduler builds an idle scheduler.
func NewScheduler(pool *Pool, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{logger: logger.Named("cron")}
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		pool:   pool,
		logger: logger,
	}
}

// Add registers job under spec, e.g. "@every 15m" or "*/30 * * * *".
func (s *Scheduler) Add(spec string, job ScheduledJob) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.pool.Go(context.Background(), job.Name(), func(ctx context.Context) error {
			_, err := job.Run(ctx)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", job.Name(), spec, err)
	}
	s.logger.Info("job scheduled", zap.String("job", job.Name()), zap.String("spec", spec))
	return nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops firing new runs. Runs already on the pool are left to the pool's shutdown.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
