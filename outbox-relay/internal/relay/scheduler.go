package relay

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Drainer - один проход по outbox.
type Drainer interface {
	Drain(ctx context.Context) (Stats, error)
}

// Scheduler запускает Drain по cron-расписанию. Перекрывающиеся проходы пропускаются.
type Scheduler struct {
	drainer Drainer
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger
}

func NewScheduler(drainer Drainer, timeout time.Duration, logger *zap.Logger) *Scheduler {
	named := logger.Named("OutboxScheduler")
	cronLogger := zapCronLogger{sugar: named.Sugar()}
	return &Scheduler{
		drainer: drainer,
		cron:    cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		timeout: timeout,
		logger:  named,
	}
}

// Start регистрирует расписание ("@every 10s" или cron-выражение) и запускает планировщик.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Outbox scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop останавливает планировщик и ждет текущий проход.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Outbox scheduler stopped")
}

// RunOnce выполняет один проход с таймаутом.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := s.drainer.Drain(ctx); err != nil {
		s.logger.Error("Outbox drain failed", zap.Error(err))
	}
}

// zapCronLogger направляет журнал cron в zap.
type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
