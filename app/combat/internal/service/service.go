// Package service 战斗、犯罪与监禁的业务结算
package service

import (
	"fmt"
	"math"
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/battle"
	"github.com/lk2023060901/underworld/app/combat/internal/rng"
	"github.com/lk2023060901/underworld/pkg/config"
)

// CombatPolicy 战斗结算策略
type CombatPolicy struct {
	Battle battle.Policy `mapstructure:"battle"`
	// HospitalMinutes 被击倒后的基础住院分钟数，按等级缩放
	HospitalMinutes int `mapstructure:"hospital_minutes" validate:"gte=1"`
	// HospitalRate 每分钟基础医药费
	HospitalRate int64   `mapstructure:"hospital_rate" validate:"gte=1"`
	ScaleMin     float64 `mapstructure:"scale_min" validate:"gt=0"`
	ScaleMax     float64 `mapstructure:"scale_max" validate:"gtefield=ScaleMin"`
	HistoryLimit int     `mapstructure:"history_limit" validate:"gte=1"`
}

// DefaultCombatPolicy 默认战斗策略
func DefaultCombatPolicy() *CombatPolicy {
	return &CombatPolicy{
		Battle:          *battle.DefaultPolicy(),
		HospitalMinutes: 20,
		HospitalRate:    10,
		ScaleMin:        0.5,
		ScaleMax:        2.0,
		HistoryLimit:    20,
	}
}

// ConfinementPolicy 监禁策略
type ConfinementPolicy struct {
	// NaturalReleaseHPPercent 自然出院时恢复到的生命百分比
	NaturalReleaseHPPercent int `mapstructure:"natural_release_hp_percent" validate:"gte=0,lte=100"`
	// SweepBatch 每轮每种监禁最多释放的记录数
	SweepBatch int `mapstructure:"sweep_batch" validate:"gte=1"`
}

// DefaultConfinementPolicy 默认监禁策略
func DefaultConfinementPolicy() *ConfinementPolicy {
	return &ConfinementPolicy{
		NaturalReleaseHPPercent: 80,
		SweepBatch:              100,
	}
}

// resolvePolicy nil 时取默认值，否则按原样校验使用
// 策略中 0 是合法取值（如关闭某项声望权重），默认值应在解析配置前预置
func resolvePolicy[T any](cfg *T, defaults func() *T) (*T, error) {
	if cfg == nil {
		cfg = defaults()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return cfg, nil
}

type options struct {
	now func() time.Time
	src rng.Source
}

// Option 服务选项
type Option func(*options)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRand 替换随机源
func WithRand(src rng.Source) Option {
	return func(o *options) {
		if src != nil {
			o.src = src
		}
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.src == nil {
		o.src = rng.NewTimeSeeded()
	}
	return o
}

// scaled 按系数缩放，结果至少为 1
func scaled(base float64, scale float64) int64 {
	v := int64(math.Round(base * scale))
	if v < 1 {
		v = 1
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// scaledZero 按系数缩放，允许为 0
func scaledZero(base float64, scale float64) int64 {
	return int64(math.Round(base * scale))
}
