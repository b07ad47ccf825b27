package model

import "time"

// FightRecord 战斗记录，只追加不修改
type FightRecord struct {
	ID             int64     `db:"id" json:"id"`
	AttackerID     int64     `db:"attacker_id" json:"attacker_id"`
	DefenderID     int64     `db:"defender_id" json:"defender_id"`
	WinnerID       int64     `db:"winner_id" json:"winner_id"`
	AttackerDamage int       `db:"attacker_damage" json:"attacker_damage"` // 攻击方造成的总伤害
	DefenderDamage int       `db:"defender_damage" json:"defender_damage"`
	AttackerXP     int64     `db:"attacker_xp" json:"attacker_xp"`
	DefenderXP     int64     `db:"defender_xp" json:"defender_xp"`
	MoneyStolen    int64     `db:"money_stolen" json:"money_stolen"`
	Rounds         int       `db:"rounds" json:"rounds"`
	Narrative      string    `db:"narrative" json:"narrative"`
	RoundLog       []string  `db:"round_log" json:"round_log"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
