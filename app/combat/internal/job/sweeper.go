// Package job 后台定时任务
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// Config 到期释放任务配置
type Config struct {
	Disabled bool `mapstructure:"disabled"`
	// Schedule cron 表达式，支持 @every 30s
	Schedule string `mapstructure:"schedule" validate:"required"`
	// Timeout 单轮清理上限
	Timeout  time.Duration `mapstructure:"timeout"`
	Timezone string        `mapstructure:"timezone"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Schedule: "@every 30s",
		Timeout:  20 * time.Second,
	}
}

// Releaser 释放已到期的监禁记录
type Releaser interface {
	ReleaseExpired(ctx context.Context) (int, error)
}

// ReleaseSweeper 周期性释放到期的监狱与医院记录，上一轮未结束时跳过本轮
type ReleaseSweeper struct {
	config   *Config
	cron     *cron.Cron
	releaser Releaser
	logger   logger.Logger
}

// NewReleaseSweeper 创建清理任务
func NewReleaseSweeper(cfg *Config, releaser Releaser, l logger.Logger) (*ReleaseSweeper, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge sweeper config: %w", err)
	}
	if err := config.Validate(newCfg); err != nil {
		return nil, err
	}

	s := &ReleaseSweeper{
		config:   newCfg,
		releaser: releaser,
		logger:   l.Named("job.sweeper"),
	}

	cl := cronLogger{l: s.logger}
	opts := []cron.Option{
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	}
	if newCfg.Timezone != "" {
		loc, err := time.LoadLocation(newCfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid sweeper timezone %q: %w", newCfg.Timezone, err)
		}
		opts = append(opts, cron.WithLocation(loc))
	}
	s.cron = cron.New(opts...)

	if _, err := s.cron.AddFunc(newCfg.Schedule, s.Sweep); err != nil {
		return nil, fmt.Errorf("invalid sweeper schedule %q: %w", newCfg.Schedule, err)
	}
	return s, nil
}

// Sweep 执行一轮清理
func (s *ReleaseSweeper) Sweep() {
	ctx := context.Background()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	n, err := s.releaser.ReleaseExpired(ctx)
	if err != nil {
		s.logger.Error("release sweep failed", "released", n, "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("release sweep finished", "released", n, "duration", time.Since(start).String())
	}
}

// Start 启动调度
func (s *ReleaseSweeper) Start() error {
	if s.config.Disabled {
		s.logger.Info("release sweeper disabled")
		return nil
	}
	s.cron.Start()
	s.logger.Info("release sweeper started", "schedule", s.config.Schedule)
	return nil
}

// Stop 停止调度并等待正在执行的清理结束
func (s *ReleaseSweeper) Stop() error {
	<-s.cron.Stop().Done()
	return nil
}

// cronLogger 适配 cron.Logger
type cronLogger struct {
	l logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
