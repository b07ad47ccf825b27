package model

import (
	"fmt"
	"time"
)

// ConfinementKind 监禁类型
type ConfinementKind string

const (
	KindJail     ConfinementKind = "jail"
	KindHospital ConfinementKind = "hospital"
)

// ParseConfinementKind 解析监禁类型
func ParseConfinementKind(s string) (ConfinementKind, error) {
	switch ConfinementKind(s) {
	case KindJail, KindHospital:
		return ConfinementKind(s), nil
	}
	return "", fmt.Errorf("unknown confinement kind %q", s)
}

// Table 对应的数据表
func (k ConfinementKind) Table() string {
	if k == KindHospital {
		return "hospital_records"
	}
	return "jail_records"
}

// 监禁原因
const (
	ReasonCrime = "crime"
	ReasonFight = "fight"
)

// Confinement 监狱或医院记录，同一角色同一类型最多一条
type Confinement struct {
	ID        int64           `db:"id" json:"id"`
	Kind      ConfinementKind `db:"-" json:"kind"`
	UserID    int64           `db:"user_id" json:"user_id"`
	Minutes   int             `db:"minutes" json:"minutes"`
	Rate      int64           `db:"rate" json:"rate"`
	StartedAt time.Time       `db:"started_at" json:"started_at"`
	ReleaseAt time.Time       `db:"release_at" json:"release_at"`
	CrimeID   *int64          `db:"crime_id" json:"crime_id,omitempty"`
	HPLoss    int             `db:"hp_loss" json:"hp_loss"`
	Reason    string          `db:"reason" json:"reason"`
}

// Active 在 now 时刻是否仍生效
func (c *Confinement) Active(now time.Time) bool {
	return c != nil && now.Before(c.ReleaseAt)
}

// RemainingSeconds 剩余秒数，已到期返回 0
func (c *Confinement) RemainingSeconds(now time.Time) int64 {
	if !c.Active(now) {
		return 0
	}
	d := c.ReleaseAt.Sub(now)
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// Cost 提前释放费用：剩余分钟向上取整乘以费率
func (c *Confinement) Cost(now time.Time) int64 {
	secs := c.RemainingSeconds(now)
	if secs == 0 {
		return 0
	}
	minutes := (secs + 59) / 60
	return minutes * c.Rate
}

// NewConfinement 以 now 为起点创建记录
func NewConfinement(kind ConfinementKind, userID int64, minutes int, rate int64, now time.Time) *Confinement {
	return &Confinement{
		Kind:      kind,
		UserID:    userID,
		Minutes:   minutes,
		Rate:      rate,
		StartedAt: now,
		ReleaseAt: now.Add(time.Duration(minutes) * time.Minute),
	}
}
