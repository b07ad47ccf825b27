package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// applyQueryTimeout 应用查询超时到 context
func (c *Client) applyQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.QueryTimeout)
	}
	return ctx, func() {}
}

// Exec 执行写操作（主库）
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := c.applyQueryTimeout(ctx)
	defer cancel()

	result, err := c.getMaster().Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return result.RowsAffected(), nil
}

// Query 查询多行（从库），调用方负责 Close
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	ctx, cancel := c.applyQueryTimeout(ctx)
	rows, err := c.getSlave().Query(ctx, sql, args...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return &cancelRows{Rows: rows, cancel: cancel}, nil
}

// QueryRow 查询单行（主库），超时在 Scan 结束时释放
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	ctx, cancel := c.applyQueryTimeout(ctx)
	return &cancelRow{row: c.getMaster().QueryRow(ctx, sql, args...), cancel: cancel}
}

// QueryOne 查询单条记录并按 db tag 扫描到结构体
func QueryOne[T any](ctx context.Context, q Querier, sql string, args ...any) (*T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOne[T](rows)
}

// QueryAll 查询多条记录并按 db tag 扫描到结构体切片
func QueryAll[T any](ctx context.Context, q Querier, sql string, args ...any) ([]*T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll[T](rows)
}

type cancelRows struct {
	pgx.Rows
	cancel context.CancelFunc
}

func (r *cancelRows) Close() {
	r.Rows.Close()
	r.cancel()
}

type cancelRow struct {
	row    pgx.Row
	cancel context.CancelFunc
}

func (r *cancelRow) Scan(dest ...any) error {
	defer r.cancel()
	return noRowsMapper{r.row}.Scan(dest...)
}

// noRowsMapper 将 pgx.ErrNoRows 统一为 ErrNoRows
type noRowsMapper struct {
	row pgx.Row
}

func (r noRowsMapper) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	return err
}
