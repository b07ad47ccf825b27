package logger

import (
	"go.uber.org/zap/zapcore"
)

// Hook 写入前回调，返回 false 丢弃该条日志，可就地改写 fields
type Hook interface {
	OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool
}

// HookFunc 函数式 Hook
type HookFunc func(entry zapcore.Entry, fields []zapcore.Field) bool

func (f HookFunc) OnWrite(entry zapcore.Entry, fields []zapcore.Field) bool {
	return f(entry, fields)
}

// HookedCore 在底层 Core 写入前依次执行钩子
type HookedCore struct {
	zapcore.Core
	hooks []Hook
}

// NewHookedCore 没有钩子时直接返回 core
func NewHookedCore(core zapcore.Core, hooks ...Hook) zapcore.Core {
	if len(hooks) == 0 {
		return core
	}
	return &HookedCore{Core: core, hooks: hooks}
}

func (h *HookedCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !h.Enabled(entry.Level) {
		return ce
	}
	return ce.AddCore(entry, h)
}

func (h *HookedCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	// 钩子可能改写字段，复制一份避免影响调用方
	out := append([]zapcore.Field(nil), fields...)
	for _, hook := range h.hooks {
		if !hook.OnWrite(entry, out) {
			return nil
		}
	}
	return h.Core.Write(entry, out)
}

func (h *HookedCore) With(fields []zapcore.Field) zapcore.Core {
	// With 绑定的字段同样需要经过钩子
	out := append([]zapcore.Field(nil), fields...)
	for _, hook := range h.hooks {
		hook.OnWrite(zapcore.Entry{}, out)
	}
	return &HookedCore{Core: h.Core.With(out), hooks: h.hooks}
}

const redacted = "***"

// SensitiveDataHook 将指定键的值替换为 ***
func SensitiveDataHook(keys []string) Hook {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return HookFunc(func(_ zapcore.Entry, fields []zapcore.Field) bool {
		for i := range fields {
			if _, ok := set[fields[i].Key]; ok {
				fields[i] = zapcore.Field{Key: fields[i].Key, Type: zapcore.StringType, String: redacted}
			}
		}
		return true
	})
}
