// Package leveling 经验曲线与升级属性成长
package leveling

import (
	"math"

	"github.com/lk2023060901/underworld/app/combat/internal/model"
)

const (
	// MaxLevel 等级上限
	MaxLevel = 200

	baseHP       = 100
	hpPerLevel   = 10
	strPerLevel  = 2
	defPerLevel  = 1
	enPerLevel   = 2
	milestoneGap = 5
	milestoneStr = 10
	milestoneDef = 5
)

var (
	exp20 = int64(math.Floor(100 * math.Pow(1.25, 19)))
	exp50 = int64(math.Floor(float64(exp20) * math.Pow(1.08, 30)))
	exp80 = exp50 + 30*2500
)

// ExpNeeded 从 level 升到 level+1 所需经验
//   - 1..20 陡峭指数
//   - 21..50 平缓指数
//   - 51..80 与 80 以上为两段线性
func ExpNeeded(level int) int64 {
	if level < 1 {
		level = 1
	}
	switch {
	case level <= 20:
		return int64(math.Floor(100 * math.Pow(1.25, float64(level-1))))
	case level <= 50:
		return int64(math.Floor(float64(exp20) * math.Pow(1.08, float64(level-20))))
	case level <= 80:
		return exp50 + int64(level-50)*2500
	default:
		return exp80 + int64(level-80)*5000
	}
}

// MaxHPForLevel 等级对应的最大生命值
func MaxHPForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return baseHP + (level-1)*hpPerLevel
}

// Summary 一次结算中累计的升级结果
type Summary struct {
	From           int `json:"from"`
	To             int `json:"to"`
	LevelsGained   int `json:"levels_gained"`
	StrengthGained int `json:"strength_gained"`
	DefenseGained  int `json:"defense_gained"`
	EnergyGained   int `json:"max_energy_gained"`
	HPGained       int `json:"max_hp_gained"`
}

// LeveledUp 是否升级
func (s Summary) LeveledUp() bool {
	return s.LevelsGained > 0
}

// ApplyLevelUp 经验足够时循环升级，返回汇总结果
func ApplyLevelUp(c *model.Character) Summary {
	s := Summary{From: c.Level, To: c.Level}

	for c.Level < MaxLevel {
		need := ExpNeeded(c.Level)
		if c.Exp < need {
			break
		}
		c.Exp -= need
		c.Level++

		str, def := strPerLevel, defPerLevel
		if c.Level%milestoneGap == 0 {
			str += milestoneStr
			def += milestoneDef
		}
		c.Strength += str
		c.Defense += def
		c.MaxEnergy += enPerLevel
		c.Energy += enPerLevel

		newMax := MaxHPForLevel(c.Level)
		delta := newMax - c.MaxHP
		c.MaxHP = newMax
		c.HP += delta

		s.LevelsGained++
		s.StrengthGained += str
		s.DefenseGained += def
		s.EnergyGained += enPerLevel
		s.HPGained += delta
	}

	s.To = c.Level
	c.Clamp()
	return s
}
