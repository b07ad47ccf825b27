package sentry

import "errors"

var (
	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("sentry: invalid config")

	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("sentry: nil config")
)
