// Package errcode 定义战斗与惩罚模块的业务错误
package errcode

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Reason 机器可读的失败原因
type Reason string

const (
	ReasonSelfTarget         Reason = "self_target"
	ReasonNotFound           Reason = "not_found"
	ReasonConfined           Reason = "confined"
	ReasonBusy               Reason = "busy"
	ReasonLevelTooLow        Reason = "level_too_low"
	ReasonInsufficientEnergy Reason = "insufficient_energy"
	ReasonOnCooldown         Reason = "on_cooldown"
	ReasonInsufficientFunds  Reason = "insufficient_funds"
	ReasonNotConfined        Reason = "not_confined"
	ReasonCrimeDisabled      Reason = "crime_disabled"
	ReasonInvalidArgument    Reason = "invalid_argument"
	ReasonTransientFailure   Reason = "transient_failure"
	ReasonInternal           Reason = "internal"
)

// Error 业务错误，Meta 携带如剩余冷却秒数等附加信息
type Error struct {
	Reason  Reason
	Message string
	Meta    map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.cause
}

// WithMeta 附加元数据，返回新错误
func (e *Error) WithMeta(key string, value any) *Error {
	cp := *e
	cp.Meta = make(map[string]any, len(e.Meta)+1)
	for k, v := range e.Meta {
		cp.Meta[k] = v
	}
	cp.Meta[key] = value
	return &cp
}

// New 创建业务错误
func New(reason Reason, format string, args ...any) *Error {
	return &Error{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Wrap 以业务原因包装底层错误
func Wrap(cause error, reason Reason, msg string) *Error {
	return &Error{Reason: reason, Message: msg, cause: cause}
}

// 常用构造
func SelfTarget() *Error { return New(ReasonSelfTarget, "cannot attack yourself") }

func NotFound(what string, id int64) *Error {
	return New(ReasonNotFound, "%s %d not found", what, id)
}

func Confined(userID int64, kind string) *Error {
	return New(ReasonConfined, "user %d is in %s", userID, kind).WithMeta("kind", kind)
}

func Busy() *Error { return New(ReasonBusy, "another fight between these players is in progress") }

func OnCooldown(remainingSeconds int64) *Error {
	return New(ReasonOnCooldown, "crime on cooldown").WithMeta("remaining_seconds", remainingSeconds)
}

// As 提取业务错误
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ReasonOf 返回错误原因，非业务错误视为 internal
func ReasonOf(err error) Reason {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Reason
	}
	return ReasonInternal
}

// IsBusiness 是否为调用方可预期的业务拒绝（不应重试、不上报）
func IsBusiness(err error) bool {
	e, ok := As(err)
	if !ok {
		return false
	}
	return e.Reason != ReasonInternal && e.Reason != ReasonTransientFailure
}

// Is 判断错误原因
func Is(err error, reason Reason) bool {
	return ReasonOf(err) == reason
}
