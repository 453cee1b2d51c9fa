package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSpec 預設每日執行一次
const DefaultSpec = "@daily"

// Config 排程設定
type Config struct {
	Enabled    bool
	Spec       string
	JobTimeout time.Duration
}

// Job 排程執行的工作
type Job interface {
	RunOnce(ctx context.Context) (int, error)
}

// Scheduler 以 robfig/cron 定期執行背景工作
type Scheduler struct {
	cron     *cron.Cron
	config   Config
	job      Job
	logger   *zap.Logger
	stopOnce sync.Once
	stopped  chan struct{}
}

// New 創建排程器
func New(cfg Config, job Job, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	logger = logger.Named("scheduler")

	return &Scheduler{
		cron:    newCron(logger),
		config:  cfg,
		job:     job,
		logger:  logger,
		stopped: make(chan struct{}),
	}
}

func newCron(logger *zap.Logger) *cron.Cron {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
}

// Start 註冊工作並啟動；ctx 取消時自動停止
//
// 排程關閉時直接返回 nil。
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("scheduler disabled by config")
		close(s.stopped)
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.config.Spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.config.Spec))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	if _, err := s.job.RunOnce(ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.Error(err))
	}
}

// Stop 停止排程並等待執行中的工作結束（可重複調用）
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if !s.config.Enabled {
			return
		}
		<-s.cron.Stop().Done()
		close(s.stopped)
		s.logger.Info("scheduler stopped")
	})
}

// Done 排程完全停止後關閉
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}
