// Package repository 角色、监禁与日志的存储抽象，提供事务作用域与行锁
package repository

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/pkg/database/postgres"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict 并发写入冲突（内存存储中的唯一约束冲突）
	ErrConflict = errors.New("repository: write conflict")
	// ErrLockTimeout 等待行锁超时
	ErrLockTimeout = errors.New("repository: lock wait timeout")
)

// IsTransient 是否为重试整个事务即可恢复的错误
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrLockTimeout) ||
		postgres.IsTransient(err)
}

// Config 存储配置
type Config struct {
	// Driver postgres 或 memory
	Driver string `mapstructure:"driver" validate:"oneof=postgres memory"`
	// IsolationLevel 事务隔离级别，默认 read committed，行锁已保证正确性
	IsolationLevel string `mapstructure:"isolation_level"`
	// LockTimeout 等待行锁的上限，超时视为瞬时错误
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// StatementTimeout 单条语句上限
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Driver:           "postgres",
		IsolationLevel:   string(postgres.TxIsolationLevelReadCommitted),
		LockTimeout:      5 * time.Second,
		StatementTimeout: 10 * time.Second,
	}
}

// Store 存储入口
type Store interface {
	// WithinTx 在一个事务中执行 fn，fn 返回错误时回滚
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Scope) error) error

	GetCharacter(ctx context.Context, userID int64) (*model.Character, error)
	// GetConfinement 不存在时返回 ErrNotFound
	GetConfinement(ctx context.Context, kind model.ConfinementKind, userID int64) (*model.Confinement, error)
	ListExpired(ctx context.Context, kind model.ConfinementKind, now time.Time, limit int) ([]*model.Confinement, error)
	ListFights(ctx context.Context, userID int64, limit int) ([]*model.FightRecord, error)
	ListCrimeLogs(ctx context.Context, userID int64, limit int) ([]*model.CrimeLog, error)

	// SyncCrimes 将配置中的犯罪定义写入存储
	SyncCrimes(ctx context.Context, defs []*model.CrimeDefinition) error
	ListCrimes(ctx context.Context) ([]*model.CrimeDefinition, error)
}

// Scope 事务作用域，所有写操作在提交前不可见
type Scope interface {
	// LockCharacters 按用户 ID 升序依次加行锁并返回角色
	LockCharacters(ctx context.Context, ids ...int64) (map[int64]*model.Character, error)
	SaveCharacter(ctx context.Context, c *model.Character) error

	// GetConfinement 读取并锁定监禁记录，不存在时返回 ErrNotFound
	GetConfinement(ctx context.Context, kind model.ConfinementKind, userID int64) (*model.Confinement, error)
	CreateConfinement(ctx context.Context, rec *model.Confinement) error
	// DeleteConfinement 记录已不存在时返回 false
	DeleteConfinement(ctx context.Context, kind model.ConfinementKind, id int64) (bool, error)

	AppendFight(ctx context.Context, r *model.FightRecord) error
	AppendCrimeLog(ctx context.Context, l *model.CrimeLog) error
}

// SortedUnique 返回升序去重后的 ID
func SortedUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
