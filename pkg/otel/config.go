// Package otel 初始化全局 TracerProvider，供服务内的 span 与 HTTP/Kafka 中间件使用
package otel

import (
	"errors"
	"time"
)

var (
	ErrInvalidServiceName  = errors.New("otel: service name is required")
	ErrInvalidSamplerRatio = errors.New("otel: sampler ratio must be between 0 and 1")
	ErrUnsupportedExporter = errors.New("otel: unsupported exporter")
)

// Exporter 导出方式
type Exporter string

const (
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterStdout   Exporter = "stdout"
)

// Config 追踪配置，Enabled 为 false 时保留全局 noop provider
type Config struct {
	Enabled     bool     `mapstructure:"enabled"`
	ServiceName string   `mapstructure:"service_name"`
	Exporter    Exporter `mapstructure:"exporter"`
	// Endpoint OTLP 地址，http 默认 4318，grpc 默认 4317
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
	// SampleRatio 根 span 采样率，子 span 跟随父决策
	SampleRatio float64 `mapstructure:"sample_ratio"`

	BatchTimeout    time.Duration     `mapstructure:"batch_timeout"`
	MaxQueueSize    int               `mapstructure:"max_queue_size"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout"`
	Attributes      map[string]string `mapstructure:"attributes"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:     "underworld",
		Exporter:        ExporterOTLPHTTP,
		Endpoint:        "localhost:4318",
		SampleRatio:     1.0,
		BatchTimeout:    5 * time.Second,
		MaxQueueSize:    2048,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return ErrInvalidServiceName
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return ErrInvalidSamplerRatio
	}
	switch c.Exporter {
	case ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterStdout:
		return nil
	}
	return ErrUnsupportedExporter
}
