// Package dao 各数据表的 SQL 访问，所有方法接收 postgres.Querier 以便在事务内外复用
package dao

import (
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/pkg/database/postgres"
	"github.com/lk2023060901/underworld/pkg/logger"
)

var qb = postgres.QueryBuilder

type base struct {
	logger  logger.Logger
	metrics *metrics.CombatMetrics
}

// observe 记录查询耗时与结果，用法 defer d.observe("select", time.Now(), &err)
func (b *base) observe(op string, start time.Time, err *error) {
	b.metrics.RecordDBQuery(op, *err == nil || postgres.IsNoRows(*err), time.Since(start).Seconds())
}
