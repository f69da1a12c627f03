package processor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// TypeProcessDue is the asynq task type that triggers one processor tick.
const TypeProcessDue = "withdrawals:process_due"

// NewProcessDueTask builds the periodic tick task. Ticks are not retried: the
// next scheduled tick picks up whatever is still due.
func NewProcessDueTask(interval time.Duration) *asynq.Task {
	return asynq.NewTask(TypeProcessDue, nil,
		asynq.MaxRetry(0),
		asynq.Unique(interval),
	)
}

// ProcessTask implements asynq.Handler.
func (p *Processor) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	report, err := p.Tick(ctx)
	if err != nil {
		return fmt.Errorf("process due withdrawals: %v: %w", err, asynq.SkipRetry)
	}
	p.logger.Debug("tick done", "claimed", report.Claimed, "completed", report.Completed, "failed", report.Failed)
	return nil
}

// Register attaches the tick handler to mux.
func (p *Processor) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeProcessDue, p)
}

// RegisterSchedule enqueues a tick every interval on the scheduler.
func RegisterSchedule(s *asynq.Scheduler, interval time.Duration) (string, error) {
	return s.Register(fmt.Sprintf("@every %s", interval), NewProcessDueTask(interval))
}

// ServeAsynq runs an asynq scheduler and server against redisURL until ctx is
// cancelled. Each scheduled task runs one Tick.
func (p *Processor) ServeAsynq(ctx context.Context, redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	logger := NewAsynqLogger(p.logger)

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: logger, Location: time.UTC})
	entryID, err := RegisterSchedule(scheduler, p.cfg.Interval)
	if err != nil {
		return fmt.Errorf("register schedule: %w", err)
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     1,
		Logger:          logger,
		ShutdownTimeout: p.cfg.ReclaimAfter,
	})
	mux := asynq.NewServeMux()
	p.Register(mux)

	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	p.logger.Info("asynq processor start", "entry", entryID, "interval", p.cfg.Interval)

	<-ctx.Done()
	srv.Shutdown()
	return ctx.Err()
}

// AsynqLogger adapts slog to asynq.Logger.
type AsynqLogger struct {
	logger *slog.Logger
}

func NewAsynqLogger(logger *slog.Logger) *AsynqLogger {
	return &AsynqLogger{logger: logger.With("component", "asynq")}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
