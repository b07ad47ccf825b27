package model

import "time"

// FailOutcome 犯罪失败后的处置策略
type FailOutcome string

const (
	FailJail     FailOutcome = "jail"
	FailHospital FailOutcome = "hospital"
	FailEither   FailOutcome = "either"
)

// CrimeDefinition 犯罪配置，结算过程中只读
type CrimeDefinition struct {
	ID              int64       `db:"id" json:"id" mapstructure:"id" validate:"required,gt=0"`
	Name            string      `db:"name" json:"name" mapstructure:"name" validate:"required"`
	Enabled         bool        `db:"enabled" json:"enabled" mapstructure:"enabled"`
	RequiredLevel   int         `db:"required_level" json:"required_level" mapstructure:"required_level" validate:"gte=1"`
	EnergyCost      int         `db:"energy_cost" json:"energy_cost" mapstructure:"energy_cost" validate:"gte=0"`
	SuccessRate     float64     `db:"success_rate" json:"success_rate" mapstructure:"success_rate" validate:"gte=0,lte=1"`
	MinReward       int64       `db:"min_reward" json:"min_reward" mapstructure:"min_reward" validate:"gte=0"`
	MaxReward       int64       `db:"max_reward" json:"max_reward" mapstructure:"max_reward" validate:"gtefield=MinReward"`
	XPReward        int64       `db:"xp_reward" json:"xp_reward" mapstructure:"xp_reward" validate:"gte=0"`
	CooldownSeconds int         `db:"cooldown_seconds" json:"cooldown_seconds" mapstructure:"cooldown_seconds" validate:"gte=0"`
	FailOutcome     FailOutcome `db:"fail_outcome" json:"fail_outcome" mapstructure:"fail_outcome" validate:"oneof=jail hospital either"`
	JailMinutes     int         `db:"jail_minutes" json:"jail_minutes" mapstructure:"jail_minutes" validate:"gte=0"`
	HospitalMinutes int         `db:"hospital_minutes" json:"hospital_minutes" mapstructure:"hospital_minutes" validate:"gte=0"`
	HPLoss          int         `db:"hp_loss" json:"hp_loss" mapstructure:"hp_loss" validate:"gte=0"`
	JailRate        int64       `db:"jail_rate" json:"jail_rate" mapstructure:"jail_rate" validate:"gte=0"`             // 每分钟保释费
	HospitalRate    int64       `db:"hospital_rate" json:"hospital_rate" mapstructure:"hospital_rate" validate:"gte=0"` // 每分钟医药费
}

// CrimeLog 一次犯罪尝试的记录
type CrimeLog struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	CrimeID   int64     `db:"crime_id" json:"crime_id"`
	Success   bool      `db:"success" json:"success"`
	Payout    int64     `db:"payout" json:"payout"`
	XP        int64     `db:"xp" json:"xp"`
	Outcome   string    `db:"outcome" json:"outcome"` // none, jail, hospital
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
