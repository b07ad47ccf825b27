package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultLockTTL = 10 * time.Second

// unlockScript 只有持有者才能删除锁
var unlockScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Lock 单节点分布式锁（SET NX PX + Lua 校验释放）
type Lock struct {
	client *Client
	key    string
	value  string // 持有者标识
	ttl    time.Duration
}

// NewLock 创建分布式锁
func (c *Client) NewLock(key string, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Lock{
		client: c,
		key:    key,
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Key 锁的键
func (l *Lock) Key() string {
	return l.key
}

// TryLock 非阻塞获取锁
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.rdb.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock %s: %w", l.key, err)
	}
	return ok, nil
}

// Unlock 释放锁，锁已过期或被他人持有时返回 ErrLockNotHeld
func (l *Lock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client.rdb, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}
