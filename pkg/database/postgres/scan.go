package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// scanOne 读取首行，列按 db 标签映射到 T，无结果返回 ErrNoRows
func scanOne[T any](rows pgx.Rows) (*T, error) {
	v, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByNameLax[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRows
	}
	return v, err
}

// scanAll 读取全部行，无结果返回空切片
func scanAll[T any](rows pgx.Rows) ([]*T, error) {
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByNameLax[T])
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*T{}
	}
	return out, nil
}
