// Package event 领域事件与提交后的投递
package event

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lk2023060901/underworld/app/combat/internal/model"
)

// Type 事件类型
type Type string

const (
	TypeNotification Type = "notification"
	TypeState        Type = "state"
	TypeProgress     Type = "progress"
)

// 通知类型
const (
	NotifyFightWon      = "fight_won"
	NotifyFightLost     = "fight_lost"
	NotifyCrimeSuccess  = "crime_success"
	NotifyCrimeFailed   = "crime_failed"
	NotifyLevelUp       = "level_up"
	NotifyReleased      = "released"
	NotifyEarlyReleased = "early_released"
)

// 进度指标
const (
	ProgressFightsWon       = "fights_won"
	ProgressFightsLost      = "fights_lost"
	ProgressKills           = "kills"
	ProgressCrimesCommitted = "crimes_committed"
	ProgressCrimesSucceeded = "crimes_succeeded"
	ProgressMoneyEarned     = "money_earned"
)

// Notification 发给玩家的通知
type Notification struct {
	UserID int64          `json:"user_id"`
	Kind   string         `json:"kind"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}

// Progress 进度增量
type Progress struct {
	UserID int64  `json:"user_id"`
	Metric string `json:"metric"`
	Delta  int64  `json:"delta"`
}

// Event 事务内产生、提交后投递的事件
type Event struct {
	ID           string          `json:"id"`
	Type         Type            `json:"type"`
	UserID       int64           `json:"user_id"`
	Notification *Notification   `json:"notification,omitempty"`
	Snapshot     *model.Snapshot `json:"snapshot,omitempty"`
	Progress     *Progress       `json:"progress,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func newEvent(t Type, userID int64) Event {
	return Event{ID: uuid.NewString(), Type: t, UserID: userID, CreatedAt: time.Now()}
}

// NewNotification 通知事件
func NewNotification(userID int64, kind, title, body string, data map[string]any) Event {
	e := newEvent(TypeNotification, userID)
	e.Notification = &Notification{UserID: userID, Kind: kind, Title: title, Body: body, Data: data}
	return e
}

// NewStatePush 角色状态推送事件
func NewStatePush(c *model.Character) Event {
	e := newEvent(TypeState, c.UserID)
	snap := c.Snapshot()
	e.Snapshot = &snap
	return e
}

// NewProgress 进度事件，delta 为 0 时调用方应跳过
func NewProgress(userID int64, metric string, delta int64) Event {
	e := newEvent(TypeProgress, userID)
	e.Progress = &Progress{UserID: userID, Metric: metric, Delta: delta}
	return e
}

// Notifier 通知投递
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// StatePusher 实时状态推送
type StatePusher interface {
	PushCharacterState(ctx context.Context, userID int64, snap model.Snapshot) error
}

// ProgressRecorder 进度记录
type ProgressRecorder interface {
	RecordProgress(ctx context.Context, userID int64, metric string, delta int64) error
}

// Buffer 事务作用域内收集事件
type Buffer struct {
	events []Event
}

// Emit 追加事件
func (b *Buffer) Emit(events ...Event) {
	b.events = append(b.events, events...)
}

// Events 返回已收集事件
func (b *Buffer) Events() []Event {
	return b.events
}

// Reset 清空，重试前调用
func (b *Buffer) Reset() {
	b.events = b.events[:0]
}
