package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("postgres: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("postgres: invalid config")

	// ErrNoRows 没有查询到数据
	ErrNoRows = errors.New("postgres: no rows in result set")
)

// 可重试的 SQLSTATE
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
	codeInFailedTx           = "25P02"
)

var transientCodes = map[string]struct{}{
	codeSerializationFailure: {},
	codeDeadlockDetected:     {},
	codeUniqueViolation:      {},
	codeLockNotAvailable:     {},
	codeQueryCanceled:        {},
	codeInFailedTx:           {},
}

// IsTransient 判断错误是否为并发冲突导致、整体重试事务即可恢复的错误
// 唯一键冲突也计入：并发插入同一角色的禁闭记录时，重试后会走更新路径
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := transientCodes[pgErr.Code]
	return ok
}

// IsNoRows 判断是否为无结果错误
func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

// SQLState 返回错误中的 SQLSTATE，非数据库错误返回空串
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
