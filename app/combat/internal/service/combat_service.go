package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/lk2023060901/underworld/app/combat/internal/battle"
	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/leveling"
	"github.com/lk2023060901/underworld/app/combat/internal/manager"
	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/pkg/idgen"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// FightOutcome 战斗结算结果
type FightOutcome struct {
	Fight           *model.FightRecord `json:"fight"`
	Attacker        model.Snapshot     `json:"attacker"`
	Defender        model.Snapshot     `json:"defender"`
	AttackerLevelUp leveling.Summary   `json:"attacker_level_up"`
	DefenderLevelUp leveling.Summary   `json:"defender_level_up"`
	Hospital        *model.Confinement `json:"hospital,omitempty"`
}

// CombatService PvP 战斗
type CombatService struct {
	policy      *CombatPolicy
	coord       *manager.Coordinator
	store       repository.Store
	confinement *ConfinementService
	ids         idgen.Generator
	metrics     *metrics.CombatMetrics
	tracer      trace.Tracer
	logger      logger.Logger
	opts        options
}

// NewCombatService 创建战斗服务
func NewCombatService(
	policy *CombatPolicy,
	coord *manager.Coordinator,
	store repository.Store,
	confinement *ConfinementService,
	ids idgen.Generator,
	m *metrics.CombatMetrics,
	l logger.Logger,
	opts ...Option,
) (*CombatService, error) {
	p, err := resolvePolicy(policy, DefaultCombatPolicy)
	if err != nil {
		return nil, err
	}
	return &CombatService{
		policy:      p,
		coord:       coord,
		store:       store,
		confinement: confinement,
		ids:         ids,
		metrics:     m,
		tracer:      otel.Tracer("combat/service"),
		logger:      l.Named("service.combat"),
		opts:        newOptions(opts),
	}, nil
}

// RunFight 结算一场战斗
func (s *CombatService) RunFight(ctx context.Context, attackerID, defenderID int64) (*FightOutcome, error) {
	if attackerID == defenderID {
		return nil, errcode.SelfTarget()
	}

	ctx, span := s.tracer.Start(ctx, "combat.RunFight", trace.WithAttributes(
		attribute.Int64("combat.attacker_id", attackerID),
		attribute.Int64("combat.defender_id", defenderID),
	))
	defer span.End()

	var out *FightOutcome
	err := s.coord.Run(ctx, "fight", []int64{attackerID, defenderID}, func(ctx context.Context, sc manager.Scope) error {
		o, err := s.resolve(ctx, sc, attackerID, defenderID)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}

	attackerWon := out.Fight.WinnerID == attackerID
	s.metrics.RecordFight(attackerWon)
	if out.Hospital != nil {
		s.metrics.RecordConfinement(string(model.KindHospital), model.ReasonFight)
	}
	span.SetAttributes(attribute.Int64("combat.winner_id", out.Fight.WinnerID))

	s.logger.InfoContext(ctx, "fight resolved",
		"fight_id", out.Fight.ID,
		"attacker_id", attackerID,
		"defender_id", defenderID,
		"winner_id", out.Fight.WinnerID,
		"rounds", out.Fight.Rounds,
		"stolen", out.Fight.MoneyStolen,
	)
	return out, nil
}

func (s *CombatService) resolve(ctx context.Context, sc manager.Scope, attackerID, defenderID int64) (*FightOutcome, error) {
	now := s.opts.now()
	attacker, defender := sc.Character(attackerID), sc.Character(defenderID)

	for _, c := range []*model.Character{attacker, defender} {
		if err := s.confinement.ensureFree(ctx, sc, c, now); err != nil {
			return nil, err
		}
	}

	bp := &s.policy.Battle
	res := battle.Simulate(s.opts.src, bp, attacker, defender)

	winner, loser := attacker, defender
	if res.WinnerID == defenderID {
		winner, loser = defender, attacker
	}
	loserLevel := loser.Level
	loserHPBefore := loser.HP

	attacker.HP, defender.HP = res.AttackerHP, res.DefenderHP

	stolen := bp.StealAmount(s.opts.src, loser.Money)
	loser.Money -= stolen
	winner.Money += stolen

	winnerXP := bp.XP.Award(winner.Level, loser.Level, true)
	loserXP := bp.XP.Award(loser.Level, winner.Level, false)
	winner.Exp += winnerXP
	loser.Exp += loserXP

	var hospital *model.Confinement
	if res.KnockedOut {
		winner.KillCount++
		var err error
		if hospital, err = s.admit(ctx, sc, loser, loserLevel, loserHPBefore-loser.HP, now); err != nil {
			return nil, err
		}
	}

	winnerUp := leveling.ApplyLevelUp(winner)
	loserUp := leveling.ApplyLevelUp(loser)
	if res.KnockedOut {
		// 升级会补加生命，被击倒住院的一方保持 0
		loser.HP = 0
	}

	fightID, err := s.ids.NextID()
	if err != nil {
		return nil, err
	}
	rec := &model.FightRecord{
		ID:             fightID,
		AttackerID:     attackerID,
		DefenderID:     defenderID,
		WinnerID:       winner.UserID,
		AttackerDamage: res.AttackerDamage,
		DefenderDamage: res.DefenderDamage,
		Rounds:         res.Rounds,
		MoneyStolen:    stolen,
		Narrative:      battle.Narrative(res, attacker, defender, stolen),
		RoundLog:       res.RoundLog,
		CreatedAt:      now,
	}
	if winner == attacker {
		rec.AttackerXP, rec.DefenderXP = winnerXP, loserXP
	} else {
		rec.AttackerXP, rec.DefenderXP = loserXP, winnerXP
	}

	for _, c := range []*model.Character{attacker, defender} {
		if err := sc.SaveCharacter(ctx, c); err != nil {
			return nil, err
		}
	}
	if err := sc.AppendFight(ctx, rec); err != nil {
		return nil, err
	}

	s.emitFight(sc, rec, winner, loser, winnerXP, loserXP, hospital)
	emitLevelUp(sc, winner.UserID, winnerUp)
	emitLevelUp(sc, loser.UserID, loserUp)

	out := &FightOutcome{
		Fight:    rec,
		Attacker: attacker.Snapshot(),
		Defender: defender.Snapshot(),
		Hospital: hospital,
	}
	if winner == attacker {
		out.AttackerLevelUp, out.DefenderLevelUp = winnerUp, loserUp
	} else {
		out.AttackerLevelUp, out.DefenderLevelUp = loserUp, winnerUp
	}
	return out, nil
}

// admit 被击倒的一方住院，时长与费率按等级缩放
func (s *CombatService) admit(ctx context.Context, sc manager.Scope, c *model.Character, level, hpLost int, now time.Time) (*model.Confinement, error) {
	scale := clampFloat(float64(level)/10, s.policy.ScaleMin, s.policy.ScaleMax)
	minutes := int(scaled(float64(s.policy.HospitalMinutes), scale))
	rate := scaled(float64(s.policy.HospitalRate), scale)

	id, err := s.ids.NextID()
	if err != nil {
		return nil, err
	}
	rec := model.NewConfinement(model.KindHospital, c.UserID, minutes, rate, now)
	rec.ID = id
	rec.HPLoss = hpLost
	rec.Reason = model.ReasonFight
	if err := sc.CreateConfinement(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *CombatService) emitFight(sc manager.Scope, rec *model.FightRecord, winner, loser *model.Character, winnerXP, loserXP int64, hospital *model.Confinement) {
	winData := map[string]any{
		"fight_id":  rec.ID,
		"opponent":  loser.UserID,
		"stolen":    rec.MoneyStolen,
		"xp":        winnerXP,
		"rounds":    rec.Rounds,
		"narrative": rec.Narrative,
	}
	loseData := map[string]any{
		"fight_id":  rec.ID,
		"opponent":  winner.UserID,
		"lost":      rec.MoneyStolen,
		"xp":        loserXP,
		"rounds":    rec.Rounds,
		"narrative": rec.Narrative,
	}
	loseBody := fmt.Sprintf("You lost the fight and $%d.", rec.MoneyStolen)
	if hospital != nil {
		loseData["hospital_minutes"] = hospital.Minutes
		loseData["release_at"] = hospital.ReleaseAt
		loseBody = fmt.Sprintf("You were knocked out, lost $%d and spend %d minutes in hospital.",
			rec.MoneyStolen, hospital.Minutes)
	}

	sc.Emit(
		event.NewNotification(winner.UserID, event.NotifyFightWon, "Fight won",
			fmt.Sprintf("You won the fight and took $%d.", rec.MoneyStolen), winData),
		event.NewNotification(loser.UserID, event.NotifyFightLost, "Fight lost", loseBody, loseData),
		event.NewStatePush(winner),
		event.NewStatePush(loser),
		event.NewProgress(winner.UserID, event.ProgressFightsWon, 1),
		event.NewProgress(loser.UserID, event.ProgressFightsLost, 1),
	)
	if hospital != nil {
		sc.Emit(event.NewProgress(winner.UserID, event.ProgressKills, 1))
	}
}

// emitLevelUp 一次结算只发一条升级通知
func emitLevelUp(sc manager.Scope, userID int64, sum leveling.Summary) {
	if !sum.LeveledUp() {
		return
	}
	sc.Emit(event.NewNotification(userID, event.NotifyLevelUp, "Level up",
		fmt.Sprintf("You reached level %d.", sum.To),
		map[string]any{"summary": sum}))
}

// History 角色最近的战斗
func (s *CombatService) History(ctx context.Context, userID int64, limit int) ([]*model.FightRecord, error) {
	if limit <= 0 || limit > s.policy.HistoryLimit {
		limit = s.policy.HistoryLimit
	}
	return s.store.ListFights(ctx, userID, limit)
}
