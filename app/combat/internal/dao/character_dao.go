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

var characterColumns = []string{
	"user_id", "name", "level", "exp", "money", "energy", "max_energy", "hp", "max_hp",
	"strength", "defense", "crime_cooldown", "gym_cooldown", "kill_count", "vip_expires_at", "updated_at",
}

// CharacterDAO 角色数据访问对象
type CharacterDAO struct {
	base
}

// NewCharacterDAO 创建角色 DAO
func NewCharacterDAO(l logger.Logger, m *metrics.CombatMetrics) *CharacterDAO {
	return &CharacterDAO{base{logger: l.Named("dao.character"), metrics: m}}
}

// GetByID 根据用户 ID 获取角色
func (d *CharacterDAO) GetByID(ctx context.Context, q postgres.Querier, userID int64) (c *model.Character, err error) {
	defer d.observe("select", time.Now(), &err)
	return d.get(ctx, q, userID, false)
}

// LockByID 加行锁读取角色（SELECT ... FOR UPDATE），必须在事务中调用
func (d *CharacterDAO) LockByID(ctx context.Context, q postgres.Querier, userID int64) (c *model.Character, err error) {
	defer d.observe("select_for_update", time.Now(), &err)
	return d.get(ctx, q, userID, true)
}

func (d *CharacterDAO) get(ctx context.Context, q postgres.Querier, userID int64, forUpdate bool) (*model.Character, error) {
	builder := qb.Select(characterColumns...).
		From("characters").
		Where(squirrel.Eq{"user_id": userID})
	if forUpdate {
		builder = builder.Suffix("FOR UPDATE")
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	c, err := postgres.QueryOne[model.Character](ctx, q, query, args...)
	if err != nil {
		if !postgres.IsNoRows(err) {
			d.logger.ErrorContext(ctx, "failed to get character",
				"user_id", userID,
				"for_update", forUpdate,
				"error", err,
			)
		}
		return nil, err
	}
	return c, nil
}

// Create 创建角色
func (d *CharacterDAO) Create(ctx context.Context, q postgres.Querier, c *model.Character) (err error) {
	defer d.observe("insert", time.Now(), &err)

	query, args, err := qb.Insert("characters").
		Columns(characterColumns...).
		Values(c.UserID, c.Name, c.Level, c.Exp, c.Money, c.Energy, c.MaxEnergy, c.HP, c.MaxHP,
			c.Strength, c.Defense, c.CrimeCooldown, c.GymCooldown, c.KillCount, c.VIPExpiresAt, c.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err = q.Exec(ctx, query, args...); err != nil {
		d.logger.ErrorContext(ctx, "failed to create character", "user_id", c.UserID, "error", err)
		return fmt.Errorf("failed to create character: %w", err)
	}
	return nil
}

// Update 更新角色的可变字段
func (d *CharacterDAO) Update(ctx context.Context, q postgres.Querier, c *model.Character) (err error) {
	defer d.observe("update", time.Now(), &err)

	query, args, err := qb.Update("characters").
		SetMap(map[string]any{
			"level":          c.Level,
			"exp":            c.Exp,
			"money":          c.Money,
			"energy":         c.Energy,
			"max_energy":     c.MaxEnergy,
			"hp":             c.HP,
			"max_hp":         c.MaxHP,
			"strength":       c.Strength,
			"defense":        c.Defense,
			"crime_cooldown": c.CrimeCooldown,
			"gym_cooldown":   c.GymCooldown,
			"kill_count":     c.KillCount,
			"updated_at":     c.UpdatedAt,
		}).
		Where(squirrel.Eq{"user_id": c.UserID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	affected, err := q.Exec(ctx, query, args...)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to update character", "user_id", c.UserID, "error", err)
		return fmt.Errorf("failed to update character: %w", err)
	}
	if affected == 0 {
		return postgres.ErrNoRows
	}
	return nil
}
