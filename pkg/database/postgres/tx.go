package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier 连接池与事务共有的读写能力，DAO 只依赖该接口
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Tx 事务接口
type Tx interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type txWrapper struct {
	tx pgx.Tx
}

func (t *txWrapper) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	result, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return result.RowsAffected(), nil
}

func (t *txWrapper) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

func (t *txWrapper) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return noRowsMapper{t.tx.QueryRow(ctx, sql, args...)}
}

func (t *txWrapper) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *txWrapper) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// TxIsolationLevel 事务隔离级别
type TxIsolationLevel string

const (
	TxIsolationLevelDefault        TxIsolationLevel = ""
	TxIsolationLevelReadCommitted  TxIsolationLevel = "read committed"
	TxIsolationLevelRepeatableRead TxIsolationLevel = "repeatable read"
	TxIsolationLevelSerializable   TxIsolationLevel = "serializable"
)

// TxAccessMode 事务访问模式
type TxAccessMode string

const (
	TxAccessModeDefault   TxAccessMode = ""
	TxAccessModeReadWrite TxAccessMode = "read write"
	TxAccessModeReadOnly  TxAccessMode = "read only"
)

// TxOptions 事务选项
type TxOptions struct {
	IsoLevel   TxIsolationLevel
	AccessMode TxAccessMode

	// 为 0 时使用 Config 中的值，负数表示不设置
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// BeginTx 开启事务（默认选项）
func (c *Client) BeginTx(ctx context.Context) (Tx, error) {
	return c.BeginTxWithOptions(ctx, TxOptions{})
}

// BeginTxWithOptions 使用选项开启事务，并设置事务级超时
func (c *Client) BeginTxWithOptions(ctx context.Context, opts TxOptions) (Tx, error) {
	tx, err := c.getMaster().BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.TxIsoLevel(opts.IsoLevel),
		AccessMode: pgx.TxAccessMode(opts.AccessMode),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, stmt := range c.txSettings(opts) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}
	return &txWrapper{tx: tx}, nil
}

// txSettings 生成事务开始时执行的 SET LOCAL 语句
func (c *Client) txSettings(opts TxOptions) []string {
	lock, stmt := opts.LockTimeout, opts.StatementTimeout
	if lock == 0 {
		lock = c.cfg.LockTimeout
	}
	if stmt == 0 {
		stmt = c.cfg.StatementTimeout
	}

	var out []string
	if lock > 0 {
		out = append(out, fmt.Sprintf("SET LOCAL lock_timeout = %d", lock.Milliseconds()))
	}
	if stmt > 0 {
		out = append(out, fmt.Sprintf("SET LOCAL statement_timeout = %d", stmt.Milliseconds()))
	}
	return out
}

// WithTx 在事务中执行函数
func (c *Client) WithTx(ctx context.Context, fn func(Tx) error) error {
	return c.WithTxOptions(ctx, TxOptions{}, fn)
}

// WithTxOptions 使用选项在事务中执行函数，fn 返回错误或 panic 时回滚
func (c *Client) WithTxOptions(ctx context.Context, opts TxOptions, fn func(Tx) error) error {
	tx, err := c.BeginTxWithOptions(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			c.logger.Warn("rollback failed", "error", rbErr, "cause", err)
		}
		return err
	}

	return tx.Commit(ctx)
}
