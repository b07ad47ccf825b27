// Package battle 回合制战斗模拟，不涉及存储
package battle

import (
	"fmt"
	"math"

	"github.com/lk2023060901/underworld/app/combat/internal/leveling"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/rng"
)

// FameOf 综合战力，最大生命取等级推导值
func (p *Policy) FameOf(c *model.Character) float64 {
	return float64(c.Level)*p.Fame.LevelWeight +
		float64(c.Strength)*p.Fame.StrengthWeight +
		float64(leveling.MaxHPForLevel(c.Level))*p.Fame.HPWeight +
		float64(c.Defense)*p.Fame.DefenseWeight
}

// HitChance 行动方命中率
func (p *Policy) HitChance(ownFame, opponentFame float64) float64 {
	total := ownFame + opponentFame
	if total <= 0 {
		return 0.5
	}
	chance := ownFame / total
	if ownFame > opponentFame {
		chance += p.HitBonus
	}
	return math.Min(chance, 1.0)
}

// Result 模拟结果
type Result struct {
	WinnerID       int64
	LoserID        int64
	Rounds         int
	AttackerHP     int // 战斗结束时的生命
	DefenderHP     int
	AttackerDamage int // 攻击方造成的伤害
	DefenderDamage int
	AttackerFame   float64
	DefenderFame   float64
	KnockedOut     bool // 败者生命归零
	RoundLog       []string
}

// AttackerWon 攻击方是否获胜
func (r *Result) AttackerWon(attackerID int64) bool {
	return r.WinnerID == attackerID
}

type side struct {
	c    *model.Character
	hp   int
	fame float64
	dmg  int
}

// Simulate 模拟战斗，不修改传入的角色
func Simulate(src rng.Source, p *Policy, attacker, defender *model.Character) *Result {
	a := &side{c: attacker, hp: attacker.HP, fame: p.FameOf(attacker)}
	d := &side{c: defender, hp: defender.HP, fame: p.FameOf(defender)}

	res := &Result{
		AttackerFame: a.fame,
		DefenderFame: d.fame,
		RoundLog:     make([]string, 0, p.RoundCap),
	}

	actor, target := a, d
	for round := 1; round <= p.RoundCap; round++ {
		if a.hp <= 0 || d.hp <= 0 {
			break
		}
		res.Rounds = round

		if rng.Bernoulli(src, p.HitChance(actor.fame, target.fame)) {
			dmg := int(math.Round(actor.fame * rng.Uniform(src, p.DamageMin, p.DamageMax)))
			if dmg < 1 {
				dmg = 1
			}
			if dmg > target.hp {
				dmg = target.hp
			}
			target.hp -= dmg
			actor.dmg += dmg
			res.RoundLog = append(res.RoundLog, fmt.Sprintf("Round %d: %s hits %s for %d damage (%d HP left)",
				round, displayName(actor.c), displayName(target.c), dmg, target.hp))
		} else {
			res.RoundLog = append(res.RoundLog, fmt.Sprintf("Round %d: %s misses %s",
				round, displayName(actor.c), displayName(target.c)))
		}

		actor, target = target, actor
	}

	res.AttackerHP, res.DefenderHP = a.hp, d.hp
	res.AttackerDamage, res.DefenderDamage = a.dmg, d.dmg

	var winner, loser *side
	switch {
	case d.hp <= 0:
		winner, loser = a, d
	case a.hp <= 0:
		winner, loser = d, a
	case a.fame > d.fame:
		winner, loser = a, d
	default:
		// 回合用尽按声望判定，相等时防守方胜
		winner, loser = d, a
	}
	res.WinnerID, res.LoserID = winner.c.UserID, loser.c.UserID
	res.KnockedOut = loser.hp <= 0
	return res
}

// StealAmount 胜者从败者处夺取的金钱
func (p *Policy) StealAmount(src rng.Source, loserMoney int64) int64 {
	if loserMoney <= 0 {
		return 0
	}
	stolen := int64(math.Floor(float64(loserMoney) * rng.Uniform(src, p.StealMin, p.StealMax)))
	if stolen > loserMoney {
		stolen = loserMoney
	}
	return stolen
}

// Narrative 战斗描述
func Narrative(res *Result, attacker, defender *model.Character, stolen int64) string {
	winner, loser := attacker, defender
	if res.WinnerID == defender.UserID {
		winner, loser = defender, attacker
	}
	verb := "outlasted"
	if res.KnockedOut {
		verb = "knocked out"
	}
	return fmt.Sprintf("%s %s %s after %d rounds and took $%d",
		displayName(winner), verb, displayName(loser), res.Rounds, stolen)
}

func displayName(c *model.Character) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("player#%d", c.UserID)
}
