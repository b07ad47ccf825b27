package dao

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/pkg/database/postgres"
	"github.com/lk2023060901/underworld/pkg/logger"
)

var fightColumns = []string{
	"id", "attacker_id", "defender_id", "winner_id", "attacker_damage", "defender_damage",
	"attacker_xp", "defender_xp", "money_stolen", "rounds", "narrative", "round_log", "created_at",
}

// FightDAO 战斗记录
type FightDAO struct {
	base
}

// NewFightDAO 创建战斗记录 DAO
func NewFightDAO(l logger.Logger, m *metrics.CombatMetrics) *FightDAO {
	return &FightDAO{base{logger: l.Named("dao.fight"), metrics: m}}
}

// Insert 追加战斗记录
func (d *FightDAO) Insert(ctx context.Context, q postgres.Querier, r *model.FightRecord) (err error) {
	defer d.observe("insert", time.Now(), &err)

	roundLog, err := json.Marshal(r.RoundLog)
	if err != nil {
		return fmt.Errorf("failed to encode round log: %w", err)
	}

	query, args, err := qb.Insert("fight_records").
		Columns(fightColumns...).
		Values(r.ID, r.AttackerID, r.DefenderID, r.WinnerID, r.AttackerDamage, r.DefenderDamage,
			r.AttackerXP, r.DefenderXP, r.MoneyStolen, r.Rounds, r.Narrative, string(roundLog), r.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err = q.Exec(ctx, query, args...); err != nil {
		d.logger.ErrorContext(ctx, "failed to insert fight record",
			"attacker_id", r.AttackerID,
			"defender_id", r.DefenderID,
			"error", err,
		)
		return fmt.Errorf("failed to insert fight record: %w", err)
	}
	return nil
}

// ListByUser 查询角色参与的最近战斗
func (d *FightDAO) ListByUser(ctx context.Context, q postgres.Querier, userID int64, limit uint64) (recs []*model.FightRecord, err error) {
	defer d.observe("select", time.Now(), &err)

	query, args, err := qb.Select(fightColumns...).
		From("fight_records").
		Where(squirrel.Or{
			squirrel.Eq{"attacker_id": userID},
			squirrel.Eq{"defender_id": userID},
		}).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	recs, err = postgres.QueryAll[model.FightRecord](ctx, q, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list fights: %w", err)
	}
	return recs, nil
}
