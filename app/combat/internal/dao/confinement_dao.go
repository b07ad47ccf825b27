package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/pkg/database/postgres"
	"github.com/lk2023060901/underworld/pkg/logger"
)

var confinementColumns = []string{
	"id", "user_id", "minutes", "rate", "started_at", "release_at", "crime_id", "hp_loss", "reason",
}

// ConfinementDAO 监狱与医院记录，两张表结构一致
type ConfinementDAO struct {
	base
}

// NewConfinementDAO 创建监禁记录 DAO
func NewConfinementDAO(l logger.Logger, m *metrics.CombatMetrics) *ConfinementDAO {
	return &ConfinementDAO{base{logger: l.Named("dao.confinement"), metrics: m}}
}

// GetByUser 获取角色当前记录，forUpdate 时加行锁
func (d *ConfinementDAO) GetByUser(ctx context.Context, q postgres.Querier, kind model.ConfinementKind, userID int64, forUpdate bool) (rec *model.Confinement, err error) {
	defer d.observe("select", time.Now(), &err)

	builder := qb.Select(confinementColumns...).
		From(kind.Table()).
		Where(squirrel.Eq{"user_id": userID})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rec, err = postgres.QueryOne[model.Confinement](ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	rec.Kind = kind
	return rec, nil
}

// Insert 写入记录，user_id 唯一索引冲突时返回 23505
func (d *ConfinementDAO) Insert(ctx context.Context, q postgres.Querier, rec *model.Confinement) (err error) {
	defer d.observe("insert", time.Now(), &err)

	query, args, err := qb.Insert(rec.Kind.Table()).
		Columns(confinementColumns...).
		Values(rec.ID, rec.UserID, rec.Minutes, rec.Rate, rec.StartedAt, rec.ReleaseAt, rec.CrimeID, rec.HPLoss, rec.Reason).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err = q.Exec(ctx, query, args...); err != nil {
		d.logger.WarnContext(ctx, "failed to insert confinement",
			"kind", rec.Kind,
			"user_id", rec.UserID,
			"error", err,
		)
		return fmt.Errorf("failed to insert %s record: %w", rec.Kind, err)
	}
	return nil
}

// DeleteByID 按 ID 删除，返回是否删除了记录
func (d *ConfinementDAO) DeleteByID(ctx context.Context, q postgres.Querier, kind model.ConfinementKind, id int64) (deleted bool, err error) {
	defer d.observe("delete", time.Now(), &err)

	query, args, err := qb.Delete(kind.Table()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build query: %w", err)
	}

	affected, err := q.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s record: %w", kind, err)
	}
	return affected > 0, nil
}

// ListExpired 列出 release_at <= now 的记录
func (d *ConfinementDAO) ListExpired(ctx context.Context, q postgres.Querier, kind model.ConfinementKind, now time.Time, limit uint64) (recs []*model.Confinement, err error) {
	defer d.observe("select", time.Now(), &err)

	query, args, err := qb.Select(confinementColumns...).
		From(kind.Table()).
		Where(squirrel.LtOrEq{"release_at": now}).
		OrderBy("release_at ASC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	recs, err = postgres.QueryAll[model.Confinement](ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired %s records: %w", kind, err)
	}
	for _, r := range recs {
		r.Kind = kind
	}
	return recs, nil
}
