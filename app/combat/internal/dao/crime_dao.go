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

var crimeColumns = []string{
	"id", "name", "enabled", "required_level", "energy_cost", "success_rate", "min_reward", "max_reward",
	"xp_reward", "cooldown_seconds", "fail_outcome", "jail_minutes", "hospital_minutes", "hp_loss",
	"jail_rate", "hospital_rate",
}

var crimeLogColumns = []string{"id", "user_id", "crime_id", "success", "payout", "xp", "outcome", "created_at"}

// CrimeDAO 犯罪配置与犯罪日志
type CrimeDAO struct {
	base
}

// NewCrimeDAO 创建犯罪 DAO
func NewCrimeDAO(l logger.Logger, m *metrics.CombatMetrics) *CrimeDAO {
	return &CrimeDAO{base{logger: l.Named("dao.crime"), metrics: m}}
}

// Upsert 按 ID 写入或覆盖犯罪配置
func (d *CrimeDAO) Upsert(ctx context.Context, q postgres.Querier, c *model.CrimeDefinition) (err error) {
	defer d.observe("upsert", time.Now(), &err)

	query, args, err := qb.Insert("crimes").
		Columns(crimeColumns...).
		Values(c.ID, c.Name, c.Enabled, c.RequiredLevel, c.EnergyCost, c.SuccessRate, c.MinReward, c.MaxReward,
			c.XPReward, c.CooldownSeconds, string(c.FailOutcome), c.JailMinutes, c.HospitalMinutes, c.HPLoss,
			c.JailRate, c.HospitalRate).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			required_level = EXCLUDED.required_level,
			energy_cost = EXCLUDED.energy_cost,
			success_rate = EXCLUDED.success_rate,
			min_reward = EXCLUDED.min_reward,
			max_reward = EXCLUDED.max_reward,
			xp_reward = EXCLUDED.xp_reward,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			fail_outcome = EXCLUDED.fail_outcome,
			jail_minutes = EXCLUDED.jail_minutes,
			hospital_minutes = EXCLUDED.hospital_minutes,
			hp_loss = EXCLUDED.hp_loss,
			jail_rate = EXCLUDED.jail_rate,
			hospital_rate = EXCLUDED.hospital_rate`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err = q.Exec(ctx, query, args...); err != nil {
		d.logger.ErrorContext(ctx, "failed to upsert crime", "crime_id", c.ID, "error", err)
		return fmt.Errorf("failed to upsert crime: %w", err)
	}
	return nil
}

// List 获取全部犯罪配置
func (d *CrimeDAO) List(ctx context.Context, q postgres.Querier) (defs []*model.CrimeDefinition, err error) {
	defer d.observe("select", time.Now(), &err)

	query, args, err := qb.Select(crimeColumns...).
		From("crimes").
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	defs, err = postgres.QueryAll[model.CrimeDefinition](ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crimes: %w", err)
	}
	return defs, nil
}

// InsertLog 追加犯罪日志
func (d *CrimeDAO) InsertLog(ctx context.Context, q postgres.Querier, l *model.CrimeLog) (err error) {
	defer d.observe("insert", time.Now(), &err)

	query, args, err := qb.Insert("crime_logs").
		Columns(crimeLogColumns...).
		Values(l.ID, l.UserID, l.CrimeID, l.Success, l.Payout, l.XP, l.Outcome, l.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err = q.Exec(ctx, query, args...); err != nil {
		d.logger.ErrorContext(ctx, "failed to insert crime log",
			"user_id", l.UserID,
			"crime_id", l.CrimeID,
			"error", err,
		)
		return fmt.Errorf("failed to insert crime log: %w", err)
	}
	return nil
}

// ListLogs 查询角色最近的犯罪日志
func (d *CrimeDAO) ListLogs(ctx context.Context, q postgres.Querier, userID int64, limit uint64) (logs []*model.CrimeLog, err error) {
	defer d.observe("select", time.Now(), &err)

	query, args, err := qb.Select(crimeLogColumns...).
		From("crime_logs").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	logs, err = postgres.QueryAll[model.CrimeLog](ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crime logs: %w", err)
	}
	return logs, nil
}
