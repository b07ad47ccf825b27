package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/manager"
	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// 释放方式
const (
	releaseNatural = "natural"
	releasePaid    = "paid"
)

// ConfinementStatus 监禁状态
type ConfinementStatus struct {
	Kind             model.ConfinementKind `json:"kind"`
	Confined         bool                  `json:"confined"`
	RemainingSeconds int64                 `json:"remaining_seconds"`
	Cost             int64                 `json:"cost"`
	ReleaseAt        *time.Time            `json:"release_at,omitempty"`
	Reason           string                `json:"reason,omitempty"`
}

// ReleaseResult 付费提前释放结果
type ReleaseResult struct {
	Success  bool  `json:"success"`
	Cost     int64 `json:"cost"`
	NewMoney int64 `json:"new_money"`
	NewHP    *int  `json:"new_hp,omitempty"` // 仅医院
}

// ConfinementService 监狱与医院
type ConfinementService struct {
	policy  *ConfinementPolicy
	coord   *manager.Coordinator
	store   repository.Store
	metrics *metrics.CombatMetrics
	logger  logger.Logger
	opts    options
}

// NewConfinementService 创建监禁服务
func NewConfinementService(
	policy *ConfinementPolicy,
	coord *manager.Coordinator,
	store repository.Store,
	m *metrics.CombatMetrics,
	l logger.Logger,
	opts ...Option,
) (*ConfinementService, error) {
	p, err := resolvePolicy(policy, DefaultConfinementPolicy)
	if err != nil {
		return nil, err
	}
	return &ConfinementService{
		policy:  p,
		coord:   coord,
		store:   store,
		metrics: m,
		logger:  l.Named("service.confinement"),
		opts:    newOptions(opts),
	}, nil
}

// Status 查询监禁状态，已到期但尚未清理的记录视为未监禁
func (s *ConfinementService) Status(ctx context.Context, userID int64, kind model.ConfinementKind) (*ConfinementStatus, error) {
	st := &ConfinementStatus{Kind: kind}

	rec, err := s.store.GetConfinement(ctx, kind, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s status of user %d: %w", kind, userID, err)
	}

	now := s.opts.now()
	if !rec.Active(now) {
		return st, nil
	}
	st.Confined = true
	st.RemainingSeconds = rec.RemainingSeconds(now)
	st.Cost = rec.Cost(now)
	st.ReleaseAt = &rec.ReleaseAt
	st.Reason = rec.Reason
	return st, nil
}

// PayEarlyRelease 支付剩余费用提前释放，医院释放后生命回满
func (s *ConfinementService) PayEarlyRelease(ctx context.Context, userID int64, kind model.ConfinementKind) (*ReleaseResult, error) {
	var res *ReleaseResult
	err := s.coord.Run(ctx, "early_release", []int64{userID}, func(ctx context.Context, sc manager.Scope) error {
		now := s.opts.now()
		c := sc.Character(userID)

		rec, err := sc.GetConfinement(ctx, kind, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return errcode.New(errcode.ReasonNotConfined, "you are not in %s", kind)
		}
		if err != nil {
			return err
		}
		if !rec.Active(now) {
			return errcode.New(errcode.ReasonNotConfined, "your %s time is already over", kind)
		}

		cost := rec.Cost(now)
		if c.Money < cost {
			return errcode.New(errcode.ReasonInsufficientFunds, "release costs $%d but you only have $%d", cost, c.Money).
				WithMeta("cost", cost)
		}

		if _, err := sc.DeleteConfinement(ctx, kind, rec.ID); err != nil {
			return err
		}
		c.Money -= cost
		res = &ReleaseResult{Success: true, Cost: cost}
		if kind == model.KindHospital {
			c.HP = c.MaxHP
			hp := c.HP
			res.NewHP = &hp
		}
		if err := sc.SaveCharacter(ctx, c); err != nil {
			return err
		}
		res.NewMoney = c.Money

		sc.Emit(
			event.NewNotification(userID, event.NotifyEarlyReleased,
				fmt.Sprintf("Released from %s", kind),
				fmt.Sprintf("You paid $%d to leave the %s early.", cost, kind),
				map[string]any{"kind": string(kind), "cost": cost}),
			event.NewStatePush(c),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRelease(string(kind), releasePaid)
	s.logger.InfoContext(ctx, "early release paid", "user_id", userID, "kind", kind, "cost", res.Cost)
	return res, nil
}

// ReleaseExpired 释放所有已到期的记录，单条失败不影响其他记录
func (s *ConfinementService) ReleaseExpired(ctx context.Context) (int, error) {
	now := s.opts.now()
	released := 0

	for _, kind := range []model.ConfinementKind{model.KindJail, model.KindHospital} {
		recs, err := s.store.ListExpired(ctx, kind, now, s.policy.SweepBatch)
		if err != nil {
			return released, fmt.Errorf("list expired %s records: %w", kind, err)
		}
		for _, rec := range recs {
			if ctx.Err() != nil {
				return released, ctx.Err()
			}
			ok, err := s.Release(ctx, kind, rec.UserID, rec.ID)
			if err != nil {
				s.logger.WarnContext(ctx, "failed to release record",
					"kind", kind,
					"record_id", rec.ID,
					"user_id", rec.UserID,
					"error", err,
				)
				continue
			}
			if ok {
				released++
			}
		}
	}

	if released > 0 {
		s.logger.InfoContext(ctx, "expired confinements released", "count", released)
	}
	return released, nil
}

// Release 按记录 ID 自然释放，记录已不存在时为空操作
func (s *ConfinementService) Release(ctx context.Context, kind model.ConfinementKind, userID, recordID int64) (bool, error) {
	released := false
	err := s.coord.Run(ctx, "release", []int64{userID}, func(ctx context.Context, sc manager.Scope) error {
		released = false
		ok, err := sc.DeleteConfinement(ctx, kind, recordID)
		if err != nil || !ok {
			return err
		}
		c := sc.Character(userID)
		s.restore(c, kind)
		if err := sc.SaveCharacter(ctx, c); err != nil {
			return err
		}
		s.emitReleased(sc, c, kind)
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if released {
		s.metrics.RecordRelease(string(kind), releaseNatural)
	}
	return released, nil
}

// ensureFree 在当前作用域中确认角色未被监禁，已到期未清理的记录就地释放
func (s *ConfinementService) ensureFree(ctx context.Context, sc manager.Scope, c *model.Character, now time.Time) error {
	for _, kind := range []model.ConfinementKind{model.KindJail, model.KindHospital} {
		rec, err := sc.GetConfinement(ctx, kind, c.UserID)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		if rec.Active(now) {
			return errcode.Confined(c.UserID, string(kind)).
				WithMeta("remaining_seconds", rec.RemainingSeconds(now))
		}

		ok, err := sc.DeleteConfinement(ctx, kind, rec.ID)
		if err != nil {
			return err
		}
		if ok {
			s.restore(c, kind)
			s.emitReleased(sc, c, kind)
		}
	}
	return nil
}

// restore 自然出院恢复生命，不会降低当前生命
func (s *ConfinementService) restore(c *model.Character, kind model.ConfinementKind) {
	if kind != model.KindHospital {
		return
	}
	target := c.MaxHP * s.policy.NaturalReleaseHPPercent / 100
	if c.HP < target {
		c.HP = target
	}
}

func (s *ConfinementService) emitReleased(sc manager.Scope, c *model.Character, kind model.ConfinementKind) {
	sc.Emit(
		event.NewNotification(c.UserID, event.NotifyReleased,
			fmt.Sprintf("Released from %s", kind),
			fmt.Sprintf("Your %s time is over.", kind),
			map[string]any{"kind": string(kind)}),
		event.NewStatePush(c),
	)
}
