package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// RetryConfig 瞬时错误重试策略
type RetryConfig struct {
	// MaxRetries 首次执行之外的重试次数
	MaxRetries int           `mapstructure:"max_retries" validate:"gte=0"`
	BaseDelay  time.Duration `mapstructure:"base_delay" validate:"gt=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gtefield=BaseDelay"`
	Multiplier float64       `mapstructure:"multiplier" validate:"gte=1"`
	// Jitter 随机化因子，0 表示固定间隔
	Jitter float64 `mapstructure:"jitter" validate:"gte=0,lt=1"`
}

// Config 协调器配置
type Config struct {
	Retry    RetryConfig    `mapstructure:"retry"`
	PairLock PairLockConfig `mapstructure:"pair_lock"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			MaxDelay:   5 * time.Second,
			Multiplier: 2,
		},
		PairLock: *DefaultPairLockConfig(),
	}
}

// MaxRunDuration 一次 Run 的最坏耗时：每次尝试以 attempt 为上限，加上每次退避的最大间隔
func (c *Config) MaxRunDuration(attempt time.Duration) time.Duration {
	r := c.Retry
	total := attempt * time.Duration(r.MaxRetries+1)
	interval := float64(r.BaseDelay)
	for i := 0; i < r.MaxRetries; i++ {
		capped := math.Min(interval, float64(r.MaxDelay))
		total += time.Duration(capped * (1 + r.Jitter))
		interval *= r.Multiplier
	}
	return total
}

// ErrorReporter 意外错误上报（Sentry）
type ErrorReporter interface {
	CaptureError(ctx context.Context, err error, tags map[string]string)
}

// EventDispatcher 提交后的事件投递
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []event.Event)
}

// Scope 业务闭包可见的事务作用域
type Scope interface {
	repository.Scope
	// Character 返回作用域开始时已加锁的角色
	Character(userID int64) *model.Character
	// Emit 收集事件，提交成功后才投递
	Emit(events ...event.Event)
}

type txScope struct {
	repository.Scope
	chars map[int64]*model.Character
	buf   *event.Buffer
}

func (s *txScope) Character(userID int64) *model.Character {
	return s.chars[userID]
}

func (s *txScope) Emit(events ...event.Event) {
	s.buf.Emit(events...)
}

// Coordinator 事务协调器
//   - 两个角色的操作先获取角色对锁，已被占用时立即返回 busy
//   - 每次尝试在一个事务中按 ID 升序锁定角色后执行业务闭包
//   - 瞬时错误按指数退避重试，业务错误不重试
//   - 事件在提交后投递，回滚时丢弃
type Coordinator struct {
	config     *Config
	store      repository.Store
	locker     PairLocker
	dispatcher EventDispatcher
	reporter   ErrorReporter
	metrics    *metrics.CombatMetrics
	tracer     trace.Tracer
	logger     logger.Logger
}

// NewCoordinator 创建协调器，reporter 可为 nil
func NewCoordinator(
	cfg *Config,
	store repository.Store,
	locker PairLocker,
	dispatcher EventDispatcher,
	reporter ErrorReporter,
	m *metrics.CombatMetrics,
	l logger.Logger,
) (*Coordinator, error) {
	newCfg := cfg
	if newCfg == nil {
		newCfg = DefaultConfig()
	}
	if err := config.Validate(newCfg); err != nil {
		return nil, fmt.Errorf("invalid coordinator config: %w", err)
	}
	if locker == nil {
		locker = NewLocalPairLocker(&newCfg.PairLock)
	}

	return &Coordinator{
		config:     newCfg,
		store:      store,
		locker:     locker,
		dispatcher: dispatcher,
		reporter:   reporter,
		metrics:    m,
		tracer:     otel.Tracer("combat/coordinator"),
		logger:     l.Named("manager.coordinator"),
	}, nil
}

func (c *Coordinator) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.config.Retry.BaseDelay
	b.MaxInterval = c.config.Retry.MaxDelay
	b.Multiplier = c.config.Retry.Multiplier
	b.RandomizationFactor = c.config.Retry.Jitter
	return b
}

// Run 在协调器作用域中执行 fn，op 用于日志与指标
func (c *Coordinator) Run(ctx context.Context, op string, ids []int64, fn func(ctx context.Context, s Scope) error) error {
	start := time.Now()
	ids = repository.SortedUnique(ids)

	ctx, span := c.tracer.Start(ctx, "coordinator."+op, trace.WithAttributes(
		attribute.String("combat.op", op),
		attribute.Int64Slice("combat.user_ids", ids),
	))
	defer span.End()

	if len(ids) == 2 {
		key := PairKey(ids[0], ids[1])
		release, ok, err := c.locker.TryLock(ctx, key)
		if err != nil {
			return c.finish(ctx, span, op, start, fmt.Errorf("acquire pair lock: %w", err))
		}
		if !ok {
			c.metrics.RecordBusy()
			return c.finish(ctx, span, op, start, errcode.Busy())
		}
		defer release()

		// 锁过期后可能被他人持有，本次执行不得越过锁的 TTL
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.PairLock.TTL)
		defer cancel()
	}

	buf := &event.Buffer{}
	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		buf.Reset()

		err := c.store.WithinTx(ctx, func(ctx context.Context, rs repository.Scope) error {
			chars, err := rs.LockCharacters(ctx, ids...)
			if err != nil {
				return err
			}
			return fn(ctx, &txScope{Scope: rs, chars: chars, buf: buf})
		})
		if err == nil {
			return struct{}{}, nil
		}
		if repository.IsTransient(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(c.config.Retry.MaxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.metrics.RecordRetry(op)
			c.logger.WarnContext(ctx, "transient failure, retrying",
				"op", op,
				"attempt", attempt,
				"next", next.String(),
				"error", err,
			)
		}),
	)
	span.SetAttributes(attribute.Int("combat.attempts", attempt))

	if err == nil && c.dispatcher != nil {
		c.dispatcher.Dispatch(ctx, buf.Events())
	}
	return c.finish(ctx, span, op, start, err)
}

// finish 将错误归类为业务、瞬时或内部错误
func (c *Coordinator) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) error {
	outcome := "ok"
	defer func() {
		c.metrics.RecordTx(op, outcome, time.Since(start).Seconds())
	}()

	if err == nil {
		return nil
	}

	if errors.Is(err, repository.ErrNotFound) {
		err = errcode.Wrap(err, errcode.ReasonNotFound, "character not found")
	}

	switch {
	case errcode.IsBusiness(err):
		outcome = "rejected"
		span.SetAttributes(attribute.String("combat.reason", string(errcode.ReasonOf(err))))
		return err

	case repository.IsTransient(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		outcome = "exhausted"
		span.SetStatus(codes.Error, "retries exhausted")
		c.logger.WarnContext(ctx, "transient failure persisted", "op", op, "error", err)
		return errcode.Wrap(err, errcode.ReasonTransientFailure, "temporarily unavailable, please try again")

	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.ErrorContext(ctx, "operation aborted", "op", op, "error", err)
		if c.reporter != nil {
			c.reporter.CaptureError(ctx, err, map[string]string{"op": op})
		}
		if _, ok := errcode.As(err); ok {
			return err
		}
		return errcode.Wrap(err, errcode.ReasonInternal, "internal error")
	}
}
