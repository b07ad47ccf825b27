package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/errcode"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/leveling"
	"github.com/lk2023060901/underworld/app/combat/internal/manager"
	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/app/combat/internal/rng"
	"github.com/lk2023060901/underworld/pkg/idgen"
	"github.com/lk2023060901/underworld/pkg/logger"
)

const (
	outcomeNone         = "none"
	defaultHistoryLimit = 20
	// 失败时获得成功经验的 30%
	failXPNumerator   = 3
	failXPDenominator = 10
)

// CrimeOutcome 犯罪结算结果
type CrimeOutcome struct {
	Log         *model.CrimeLog    `json:"log"`
	Character   model.Snapshot     `json:"character"`
	LevelUp     leveling.Summary   `json:"level_up"`
	Confinement *model.Confinement `json:"confinement,omitempty"`
	Narrative   string             `json:"narrative"`
}

// CrimeService PvE 犯罪
type CrimeService struct {
	catalog      *CrimeCatalog
	coord        *manager.Coordinator
	store        repository.Store
	confinement  *ConfinementService
	ids          idgen.Generator
	metrics      *metrics.CombatMetrics
	logger       logger.Logger
	historyLimit int
	opts         options
}

// NewCrimeService 创建犯罪服务
func NewCrimeService(
	catalog *CrimeCatalog,
	coord *manager.Coordinator,
	store repository.Store,
	confinement *ConfinementService,
	ids idgen.Generator,
	m *metrics.CombatMetrics,
	l logger.Logger,
	opts ...Option,
) *CrimeService {
	return &CrimeService{
		catalog:      catalog,
		coord:        coord,
		store:        store,
		confinement:  confinement,
		ids:          ids,
		metrics:      m,
		logger:       l.Named("service.crime"),
		historyLimit: defaultHistoryLimit,
		opts:         newOptions(opts),
	}
}

// ExecuteCrime 结算一次犯罪
func (s *CrimeService) ExecuteCrime(ctx context.Context, userID, crimeID int64) (*CrimeOutcome, error) {
	def, ok := s.catalog.Get(crimeID)
	if !ok {
		return nil, errcode.NotFound("crime", crimeID)
	}
	if !def.Enabled {
		return nil, errcode.New(errcode.ReasonCrimeDisabled, "%s is not available right now", def.Name)
	}

	var out *CrimeOutcome
	err := s.coord.Run(ctx, "crime", []int64{userID}, func(ctx context.Context, sc manager.Scope) error {
		o, err := s.resolve(ctx, sc, sc.Character(userID), def)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCrime(out.Log.Success)
	if out.Confinement != nil {
		s.metrics.RecordConfinement(string(out.Confinement.Kind), model.ReasonCrime)
	}
	s.logger.InfoContext(ctx, "crime resolved",
		"user_id", userID,
		"crime_id", crimeID,
		"success", out.Log.Success,
		"payout", out.Log.Payout,
		"outcome", out.Log.Outcome,
	)
	return out, nil
}

func (s *CrimeService) resolve(ctx context.Context, sc manager.Scope, c *model.Character, def *model.CrimeDefinition) (*CrimeOutcome, error) {
	now := s.opts.now()

	if err := s.confinement.ensureFree(ctx, sc, c, now); err != nil {
		return nil, err
	}
	if err := checkCrime(c, def, now); err != nil {
		return nil, err
	}

	vip := c.IsVIP(now)
	xp := def.XPReward
	if vip {
		xp = xp * 3 / 2
	}

	level := c.Level
	log := &model.CrimeLog{
		UserID:    c.UserID,
		CrimeID:   def.ID,
		Outcome:   outcomeNone,
		CreatedAt: now,
	}
	var conf *model.Confinement
	var narrative string

	if rng.Bernoulli(s.opts.src, def.SuccessRate) {
		payout := rng.UniformInt(s.opts.src, def.MinReward, def.MaxReward)
		if vip {
			payout = payout * 3 / 2
		}
		log.Success = true
		log.Payout = payout
		log.XP = xp
		c.Money += payout
		narrative = fmt.Sprintf("You pulled off %s and walked away with $%d.", def.Name, payout)
	} else {
		log.XP = xp * failXPNumerator / failXPDenominator
		var err error
		if conf, err = s.punish(ctx, sc, c, def, level, now); err != nil {
			return nil, err
		}
		log.Outcome = string(conf.Kind)
		if conf.Kind == model.KindJail {
			narrative = fmt.Sprintf("You were caught attempting %s and sent to jail for %d minutes.", def.Name, conf.Minutes)
		} else {
			narrative = fmt.Sprintf("%s went wrong. You lost %d HP and spend %d minutes in hospital.", def.Name, conf.HPLoss, conf.Minutes)
		}
	}

	c.Exp += log.XP
	c.Energy -= def.EnergyCost
	c.CrimeCooldown = now.UnixMilli() + int64(def.CooldownSeconds)*1000
	sum := leveling.ApplyLevelUp(c)

	id, err := s.ids.NextID()
	if err != nil {
		return nil, err
	}
	log.ID = id

	if err := sc.SaveCharacter(ctx, c); err != nil {
		return nil, err
	}
	if err := sc.AppendCrimeLog(ctx, log); err != nil {
		return nil, err
	}

	s.emitCrime(sc, c, def, log, conf, narrative)
	emitLevelUp(sc, c.UserID, sum)

	return &CrimeOutcome{
		Log:         log,
		Character:   c.Snapshot(),
		LevelUp:     sum,
		Confinement: conf,
		Narrative:   narrative,
	}, nil
}

// checkCrime 等级、能量、冷却依次校验
func checkCrime(c *model.Character, def *model.CrimeDefinition, now time.Time) error {
	if c.Level < def.RequiredLevel {
		return errcode.New(errcode.ReasonLevelTooLow, "%s requires level %d", def.Name, def.RequiredLevel).
			WithMeta("required_level", def.RequiredLevel)
	}
	if c.Energy < def.EnergyCost {
		return errcode.New(errcode.ReasonInsufficientEnergy, "%s needs %d energy", def.Name, def.EnergyCost).
			WithMeta("energy_cost", def.EnergyCost)
	}
	if nowMs := now.UnixMilli(); nowMs < c.CrimeCooldown {
		remaining := (c.CrimeCooldown - nowMs + 999) / 1000
		return errcode.OnCooldown(remaining)
	}
	return nil
}

// punish 失败处置，时长与费率按 level/10 缩放
func (s *CrimeService) punish(ctx context.Context, sc manager.Scope, c *model.Character, def *model.CrimeDefinition, level int, now time.Time) (*model.Confinement, error) {
	kind := model.KindJail
	switch def.FailOutcome {
	case model.FailHospital:
		kind = model.KindHospital
	case model.FailEither:
		if rng.Bernoulli(s.opts.src, 0.5) {
			kind = model.KindHospital
		}
	}

	scale := float64(level) / 10
	var rec *model.Confinement
	if kind == model.KindJail {
		rec = model.NewConfinement(kind, c.UserID,
			int(scaled(float64(def.JailMinutes), scale)), scaled(float64(def.JailRate), scale), now)
	} else {
		rec = model.NewConfinement(kind, c.UserID,
			int(scaled(float64(def.HospitalMinutes), scale)), scaled(float64(def.HospitalRate), scale), now)
		before := c.HP
		c.HP -= int(scaledZero(float64(def.HPLoss), scale))
		if c.HP < 0 {
			c.HP = 0
		}
		rec.HPLoss = before - c.HP
	}

	id, err := s.ids.NextID()
	if err != nil {
		return nil, err
	}
	rec.ID = id
	crimeID := def.ID
	rec.CrimeID = &crimeID
	rec.Reason = model.ReasonCrime
	if err := sc.CreateConfinement(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *CrimeService) emitCrime(sc manager.Scope, c *model.Character, def *model.CrimeDefinition, log *model.CrimeLog, conf *model.Confinement, narrative string) {
	data := map[string]any{
		"crime_id": def.ID,
		"payout":   log.Payout,
		"xp":       log.XP,
		"outcome":  log.Outcome,
	}
	kind, title := event.NotifyCrimeSuccess, "Crime succeeded"
	if !log.Success {
		kind, title = event.NotifyCrimeFailed, "Crime failed"
		data["minutes"] = conf.Minutes
		data["release_at"] = conf.ReleaseAt
	}

	sc.Emit(
		event.NewNotification(c.UserID, kind, title, narrative, data),
		event.NewStatePush(c),
		event.NewProgress(c.UserID, event.ProgressCrimesCommitted, 1),
	)
	if log.Success {
		sc.Emit(event.NewProgress(c.UserID, event.ProgressCrimesSucceeded, 1))
	}
	if log.Payout > 0 {
		sc.Emit(event.NewProgress(c.UserID, event.ProgressMoneyEarned, log.Payout))
	}
}

// History 角色最近的犯罪日志
func (s *CrimeService) History(ctx context.Context, userID int64, limit int) ([]*model.CrimeLog, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	return s.store.ListCrimeLogs(ctx, userID, limit)
}
