package battle

import (
	"math"
	"sort"
)

// FamePolicy 声望权重
type FamePolicy struct {
	LevelWeight    float64 `mapstructure:"level_weight" validate:"gte=0"`
	StrengthWeight float64 `mapstructure:"strength_weight" validate:"gte=0"`
	HPWeight       float64 `mapstructure:"hp_weight" validate:"gte=0"`
	DefenseWeight  float64 `mapstructure:"defense_weight" validate:"gte=0"`
}

// XPBracket 按自身等级划分的经验档位
type XPBracket struct {
	MaxLevel int   `mapstructure:"max_level"` // 0 表示无上限
	Base     int64 `mapstructure:"base" validate:"gte=0"`
	Min      int64 `mapstructure:"min" validate:"gte=0"`
	Max      int64 `mapstructure:"max" validate:"gtefield=Min"`
}

// DiffFactor 等级差（对手减自身）系数，按 MaxDiff 升序匹配
type DiffFactor struct {
	MaxDiff int     `mapstructure:"max_diff"`
	Factor  float64 `mapstructure:"factor" validate:"gte=0"`
}

// XPPolicy 战斗经验策略
type XPPolicy struct {
	Brackets         []XPBracket  `mapstructure:"brackets" validate:"required,dive"`
	DiffFactors      []DiffFactor `mapstructure:"diff_factors" validate:"required,dive"`
	AboveDiffFactor  float64      `mapstructure:"above_diff_factor" validate:"gte=0"` // 超过所有档位时
	WinnerMultiplier float64      `mapstructure:"winner_multiplier" validate:"gte=0"`
	LoserMultiplier  float64      `mapstructure:"loser_multiplier" validate:"gte=0"`
}

// Policy 战斗策略
type Policy struct {
	RoundCap  int        `mapstructure:"round_cap" validate:"gte=1"`
	Fame      FamePolicy `mapstructure:"fame"`
	HitBonus  float64    `mapstructure:"hit_bonus" validate:"gte=0,lte=1"`
	DamageMin float64    `mapstructure:"damage_min" validate:"gt=0"`
	DamageMax float64    `mapstructure:"damage_max" validate:"gtefield=DamageMin"`
	StealMin  float64    `mapstructure:"steal_min" validate:"gte=0,lte=1"`
	StealMax  float64    `mapstructure:"steal_max" validate:"gtefield=StealMin,lte=1"`
	XP        XPPolicy   `mapstructure:"xp"`
}

// DefaultPolicy 默认战斗策略
func DefaultPolicy() *Policy {
	return &Policy{
		RoundCap: 20,
		Fame: FamePolicy{
			LevelWeight:    10,
			StrengthWeight: 2,
			HPWeight:       0.1,
			DefenseWeight:  1.5,
		},
		HitBonus:  0.20,
		DamageMin: 0.05,
		DamageMax: 0.08,
		StealMin:  0.30,
		StealMax:  0.40,
		XP:        *DefaultXPPolicy(),
	}
}

// DefaultXPPolicy 默认经验策略
func DefaultXPPolicy() *XPPolicy {
	return &XPPolicy{
		Brackets: []XPBracket{
			{MaxLevel: 10, Base: 20, Min: 5, Max: 150},
			{MaxLevel: 30, Base: 40, Min: 10, Max: 300},
			{MaxLevel: 50, Base: 70, Min: 20, Max: 600},
			{MaxLevel: 0, Base: 100, Min: 30, Max: 1000},
		},
		DiffFactors: []DiffFactor{
			{MaxDiff: -10, Factor: 0.3},
			{MaxDiff: -5, Factor: 0.6},
			{MaxDiff: -1, Factor: 0.85},
			{MaxDiff: 0, Factor: 1.0},
			{MaxDiff: 5, Factor: 1.5},
			{MaxDiff: 10, Factor: 2.5},
		},
		AboveDiffFactor:  4.0,
		WinnerMultiplier: 1.8,
		LoserMultiplier:  0.5,
	}
}

func (p *XPPolicy) bracket(level int) XPBracket {
	for _, b := range p.Brackets {
		if b.MaxLevel == 0 || level <= b.MaxLevel {
			return b
		}
	}
	return p.Brackets[len(p.Brackets)-1]
}

func (p *XPPolicy) diffFactor(diff int) float64 {
	factors := make([]DiffFactor, len(p.DiffFactors))
	copy(factors, p.DiffFactors)
	sort.Slice(factors, func(i, j int) bool { return factors[i].MaxDiff < factors[j].MaxDiff })

	for _, f := range factors {
		if diff <= f.MaxDiff {
			return f.Factor
		}
	}
	return p.AboveDiffFactor
}

// Award 计算一方获得的经验
func (p *XPPolicy) Award(ownLevel, opponentLevel int, won bool) int64 {
	if len(p.Brackets) == 0 {
		return 0
	}
	b := p.bracket(ownLevel)
	mult := p.LoserMultiplier
	if won {
		mult = p.WinnerMultiplier
	}

	xp := int64(math.Round(float64(b.Base) * p.diffFactor(opponentLevel-ownLevel) * mult))
	if xp < b.Min {
		xp = b.Min
	}
	if xp > b.Max {
		xp = b.Max
	}
	return xp
}
