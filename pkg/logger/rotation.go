package logger

import (
	"fmt"
	"io"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"gopkg.in/natefinch/lumberjack.v2"
)

const defaultRotationPattern = ".%Y%m%d%H"

// NewRotationWriter 按配置返回文件 writer：size 走 lumberjack，time 走 file-rotatelogs
func NewRotationWriter(cfg *RotationConfig, outputPath string) (io.Writer, error) {
	if cfg.Type != RotationByTime {
		return &lumberjack.Logger{
			Filename:   outputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}, nil
	}

	every, err := parseRotationDuration(cfg.RotationTime, 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("rotation_time: %w", err)
	}
	keep, err := parseRotationDuration(cfg.MaxAgeTime, 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("max_age_time: %w", err)
	}

	suffix := cfg.RotationPattern
	if suffix == "" {
		suffix = defaultRotationPattern
	}
	return rotatelogs.New(outputPath+suffix,
		rotatelogs.WithLinkName(outputPath),
		rotatelogs.WithRotationTime(every),
		rotatelogs.WithMaxAge(keep),
	)
}

// parseRotationDuration 空值取默认
func parseRotationDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}
