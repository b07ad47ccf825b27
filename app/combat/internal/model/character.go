package model

import "time"

// Character 角色，每个玩家一行
type Character struct {
	UserID        int64      `db:"user_id" json:"user_id"`
	Name          string     `db:"name" json:"name"`
	Level         int        `db:"level" json:"level"`
	Exp           int64      `db:"exp" json:"exp"`
	Money         int64      `db:"money" json:"money"`
	Energy        int        `db:"energy" json:"energy"`
	MaxEnergy     int        `db:"max_energy" json:"max_energy"`
	HP            int        `db:"hp" json:"hp"`
	MaxHP         int        `db:"max_hp" json:"max_hp"`
	Strength      int        `db:"strength" json:"strength"`
	Defense       int        `db:"defense" json:"defense"`
	CrimeCooldown int64      `db:"crime_cooldown" json:"crime_cooldown"` // epoch ms
	GymCooldown   int64      `db:"gym_cooldown" json:"gym_cooldown"`     // epoch ms
	KillCount     int        `db:"kill_count" json:"kill_count"`
	VIPExpiresAt  *time.Time `db:"vip_expires_at" json:"vip_expires_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// IsVIP 当前是否为 VIP
func (c *Character) IsVIP(now time.Time) bool {
	return c.VIPExpiresAt != nil && c.VIPExpiresAt.After(now)
}

// Clamp 将 HP、能量、金钱限制在合法区间
func (c *Character) Clamp() {
	if c.Level < 1 {
		c.Level = 1
	}
	if c.Exp < 0 {
		c.Exp = 0
	}
	if c.Money < 0 {
		c.Money = 0
	}
	if c.MaxHP < 1 {
		c.MaxHP = 1
	}
	c.HP = clampInt(c.HP, 0, c.MaxHP)
	if c.MaxEnergy < 0 {
		c.MaxEnergy = 0
	}
	c.Energy = clampInt(c.Energy, 0, c.MaxEnergy)
}

// Clone 深拷贝
func (c *Character) Clone() *Character {
	if c == nil {
		return nil
	}
	cp := *c
	if c.VIPExpiresAt != nil {
		t := *c.VIPExpiresAt
		cp.VIPExpiresAt = &t
	}
	return &cp
}

// Snapshot 推送给客户端的实时状态
type Snapshot struct {
	UserID    int64 `json:"user_id"`
	Level     int   `json:"level"`
	Exp       int64 `json:"exp"`
	Money     int64 `json:"money"`
	Energy    int   `json:"energy"`
	MaxEnergy int   `json:"max_energy"`
	HP        int   `json:"hp"`
	MaxHP     int   `json:"max_hp"`
	Strength  int   `json:"strength"`
	Defense   int   `json:"defense"`
}

// Snapshot 生成状态快照
func (c *Character) Snapshot() Snapshot {
	return Snapshot{
		UserID:    c.UserID,
		Level:     c.Level,
		Exp:       c.Exp,
		Money:     c.Money,
		Energy:    c.Energy,
		MaxEnergy: c.MaxEnergy,
		HP:        c.HP,
		MaxHP:     c.MaxHP,
		Strength:  c.Strength,
		Defense:   c.Defense,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
