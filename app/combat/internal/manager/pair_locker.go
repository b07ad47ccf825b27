package manager

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"

	"github.com/lk2023060901/underworld/pkg/database/redis"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// PairKey 无序角色对的规范键 min:max
func PairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatInt(a, 10) + ":" + strconv.FormatInt(b, 10)
}

// PairLocker 同一角色对的互斥表，已被持有时立即拒绝而不排队
type PairLocker interface {
	// TryLock 获取成功时返回释放函数
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// PairLockConfig 角色对锁配置
type PairLockConfig struct {
	// Backend local 或 redis（多实例部署）
	Backend string `mapstructure:"backend" validate:"oneof=local redis"`
	// TTL 持有上限，超时后可被抢占，避免崩溃或卡住的请求永久占用
	TTL       time.Duration `mapstructure:"ttl" validate:"gt=0"`
	Shards    int           `mapstructure:"shards" validate:"gte=1"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// DefaultPairLockConfig 默认配置
func DefaultPairLockConfig() *PairLockConfig {
	return &PairLockConfig{
		Backend:   "local",
		TTL:       30 * time.Second,
		Shards:    32,
		KeyPrefix: "combat:pair:",
	}
}

type pairEntry struct {
	token   uint64
	expires time.Time
}

type pairShard struct {
	mu   sync.Mutex
	held map[string]pairEntry
}

// LocalPairLocker 进程内分片锁表
type LocalPairLocker struct {
	shards []*pairShard
	ttl    time.Duration
	seq    atomic.Uint64
	now    func() time.Time
}

// NewLocalPairLocker 创建进程内锁表
func NewLocalPairLocker(cfg *PairLockConfig) *LocalPairLocker {
	if cfg == nil {
		cfg = DefaultPairLockConfig()
	}
	n := cfg.Shards
	if n <= 0 {
		n = 1
	}
	l := &LocalPairLocker{
		shards: make([]*pairShard, n),
		ttl:    cfg.TTL,
		now:    time.Now,
	}
	for i := range l.shards {
		l.shards[i] = &pairShard{held: make(map[string]pairEntry)}
	}
	return l
}

func (l *LocalPairLocker) shard(key string) *pairShard {
	return l.shards[xxhash.Sum64String(key)%uint64(len(l.shards))]
}

// TryLock 非阻塞获取
func (l *LocalPairLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	s := l.shard(key)
	now := l.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.held[key]; ok && (l.ttl <= 0 || now.Before(e.expires)) {
		return nil, false, nil
	}

	token := l.seq.Inc()
	s.held[key] = pairEntry{token: token, expires: now.Add(l.ttl)}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// 已被超时抢占时不删除他人的条目
		if e, ok := s.held[key]; ok && e.token == token {
			delete(s.held, key)
		}
	}, true, nil
}

// Held 当前持有的键数量
func (l *LocalPairLocker) Held() int {
	n := 0
	for _, s := range l.shards {
		s.mu.Lock()
		n += len(s.held)
		s.mu.Unlock()
	}
	return n
}

// RedisPairLocker 基于 Redis 的跨实例锁表
type RedisPairLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger
}

// NewRedisPairLocker 创建 Redis 锁表
func NewRedisPairLocker(client *redis.Client, cfg *PairLockConfig, l logger.Logger) *RedisPairLocker {
	if cfg == nil {
		cfg = DefaultPairLockConfig()
	}
	return &RedisPairLocker{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.TTL,
		logger: l.Named("manager.pairlock"),
	}
}

// TryLock SET NX PX，释放时校验持有者
func (r *RedisPairLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	lock := r.client.NewLock(r.prefix+key, r.ttl)
	ok, err := lock.TryLock(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("pair lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lock.Unlock(ctx); err != nil && !errors.Is(err, redis.ErrLockNotHeld) {
			r.logger.Warn("failed to release pair lock", "key", lock.Key(), "error", err)
		}
	}, true, nil
}
