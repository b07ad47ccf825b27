package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/atomic"
)

// Client Sentry 客户端，持有独立 Hub
type Client struct {
	hub    *sentry.Hub // 未配置 DSN 时为 nil
	config *Config
	closed atomic.Bool

	captured atomic.Uint64
	dropped  atomic.Uint64
}

// Stats 统计信息
type Stats struct {
	EventsCaptured uint64
	EventsDropped  uint64
}

// New 创建 Sentry 客户端
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{config: cfg}
	if cfg.DSN == "" {
		return c, nil
	}

	client, err := sentry.NewClient(cfg.toClientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}

	c.hub = sentry.NewHub(client, sentry.NewScope())
	c.hub.ConfigureScope(func(scope *sentry.Scope) {
		for key, value := range cfg.Tags {
			scope.SetTag(key, value)
		}
	})
	return c, nil
}

// Enabled 是否会真正上报
func (c *Client) Enabled() bool {
	return c.hub != nil && !c.closed.Load()
}

// CaptureError 上报错误，tags 只作用于本次事件
func (c *Client) CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil || !c.Enabled() {
		return
	}

	hub := c.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if ctx != nil {
			scope.SetContext("request", sentry.Context{"deadline_exceeded": ctx.Err() == context.DeadlineExceeded})
		}
		c.count(hub.CaptureException(err))
	})
}

// RecoverWithContext 上报 panic（不重新抛出）
func (c *Client) RecoverWithContext(ctx context.Context, recovered any) {
	if recovered == nil || !c.Enabled() {
		return
	}
	c.count(c.hub.Clone().RecoverWithContext(ctx, recovered))
}

func (c *Client) count(id *sentry.EventID) {
	if id != nil && *id != "" {
		c.captured.Inc()
		return
	}
	c.dropped.Inc()
}

// Flush 等待事件上报完成
func (c *Client) Flush(timeout time.Duration) bool {
	if c.hub == nil {
		return true
	}
	return c.hub.Flush(timeout)
}

// Stats 获取统计信息
func (c *Client) Stats() Stats {
	return Stats{
		EventsCaptured: c.captured.Load(),
		EventsDropped:  c.dropped.Load(),
	}
}

// Close 刷出缓冲后关闭
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.Flush(c.config.ShutdownTimeout)
	return nil
}
