package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

const flushPollInterval = 5 * time.Millisecond

// Config 投递配置
type Config struct {
	// Workers 投递协程池大小
	Workers int `mapstructure:"workers" validate:"gte=1"`
	// MaxPending 池满时最多排队的任务数，超出丢弃
	MaxPending int `mapstructure:"max_pending" validate:"gte=0"`
	// RateLimit 每秒投递事件上限，0 表示不限
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	Burst     int     `mapstructure:"burst" validate:"gte=0"`
	// Timeout 单个事件投递超时
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:    16,
		MaxPending: 1024,
		RateLimit:  0,
		Burst:      100,
		Timeout:    3 * time.Second,
	}
}

// Stats 投递统计
type Stats struct {
	Dispatched int64
	Delivered  int64
	Failed     int64
	Dropped    int64
}

// Dispatcher 在事务提交后异步投递事件，失败只记录不回传
type Dispatcher struct {
	config    *Config
	pool      *ants.Pool
	limiter   *rate.Limiter
	notifiers []Notifier
	pushers   []StatePusher
	recorders []ProgressRecorder
	metrics   *metrics.CombatMetrics
	logger    logger.Logger

	// mu 保证 closed 的判断与 inflight 的递增不会与 Close 交错
	mu         sync.RWMutex
	closed     bool
	inflight   atomic.Int64
	dispatched atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
}

// Option Dispatcher 选项
type Option func(*Dispatcher)

// WithNotifier 添加通知 sink
func WithNotifier(n ...Notifier) Option {
	return func(d *Dispatcher) { d.notifiers = append(d.notifiers, n...) }
}

// WithStatePusher 添加状态推送 sink
func WithStatePusher(p ...StatePusher) Option {
	return func(d *Dispatcher) { d.pushers = append(d.pushers, p...) }
}

// WithProgressRecorder 添加进度 sink
func WithProgressRecorder(r ...ProgressRecorder) Option {
	return func(d *Dispatcher) { d.recorders = append(d.recorders, r...) }
}

// NewDispatcher 创建投递器
func NewDispatcher(cfg *Config, m *metrics.CombatMetrics, l logger.Logger, opts ...Option) (*Dispatcher, error) {
	newCfg := cfg
	if newCfg == nil {
		newCfg = DefaultConfig()
	}
	if err := config.Validate(newCfg); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	if l == nil {
		l = logger.NewNoop()
	}

	d := &Dispatcher{
		config:  newCfg,
		limiter: rate.NewLimiter(rate.Inf, 0),
		metrics: m,
		logger:  l.Named("event.dispatcher"),
	}
	if newCfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(newCfg.RateLimit), max(newCfg.Burst, 1))
	}
	for _, opt := range opts {
		opt(d)
	}

	pool, err := ants.NewPool(newCfg.Workers,
		ants.WithMaxBlockingTasks(newCfg.MaxPending),
		ants.WithNonblocking(newCfg.MaxPending == 0),
		ants.WithPanicHandler(func(p any) {
			d.logger.Error("event task panicked", "panic", p)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher pool: %w", err)
	}
	d.pool = pool
	return d, nil
}

// Dispatch 异步投递一批事件，不阻塞调用方
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.drop(len(events))
		return
	}
	d.inflight.Inc()
	d.mu.RUnlock()

	// 请求结束后 ctx 会被取消，投递需要脱离请求生命周期
	base := context.WithoutCancel(ctx)
	batch := append([]Event(nil), events...)

	err := d.pool.Submit(func() {
		defer d.inflight.Dec()
		for _, e := range batch {
			d.deliver(base, e)
		}
	})
	if err != nil {
		d.inflight.Dec()
		d.drop(len(events))
		d.logger.Warn("event batch dropped", "events", len(events), "error", err)
		return
	}
	d.dispatched.Add(int64(len(events)))
}

func (d *Dispatcher) drop(n int) {
	d.dropped.Add(int64(n))
	for i := 0; i < n; i++ {
		d.metrics.RecordDropped()
	}
}

// deliver 并发投递到该类型的所有 sink，单个 sink 失败不影响其他 sink
func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		d.failed.Inc()
		d.logger.Warn("event rate limit wait failed", "event_id", e.ID, "error", err)
		return
	}

	var g errgroup.Group
	run := func(sink string, fn func() error) {
		g.Go(func() error {
			err := fn()
			d.metrics.RecordEvent(sink, err == nil)
			if err != nil {
				d.failed.Inc()
				d.logger.Warn("event delivery failed",
					"sink", sink,
					"event_id", e.ID,
					"type", e.Type,
					"user_id", e.UserID,
					"error", err,
				)
				return nil
			}
			d.delivered.Inc()
			return nil
		})
	}

	switch e.Type {
	case TypeNotification:
		for _, n := range d.notifiers {
			n := n
			run(sinkName(n), func() error { return n.Notify(ctx, *e.Notification) })
		}
	case TypeState:
		for _, p := range d.pushers {
			p := p
			run(sinkName(p), func() error { return p.PushCharacterState(ctx, e.UserID, *e.Snapshot) })
		}
	case TypeProgress:
		for _, r := range d.recorders {
			r := r
			run(sinkName(r), func() error {
				return r.RecordProgress(ctx, e.Progress.UserID, e.Progress.Metric, e.Progress.Delta)
			})
		}
	}
	_ = g.Wait()
}

// Flush 等待已提交的投递任务完成
func (d *Dispatcher) Flush(timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(flushPollInterval)
	defer tick.Stop()

	for d.inflight.Load() > 0 {
		select {
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
	return true
}

// Stats 获取统计
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Delivered:  d.delivered.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
	}
}

// Close 等待在途事件后释放协程池
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.Flush(d.config.Timeout)
	return d.pool.ReleaseTimeout(d.config.Timeout)
}

type named interface {
	Name() string
}

func sinkName(v any) string {
	if n, ok := v.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}
