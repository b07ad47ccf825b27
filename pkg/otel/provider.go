package otel

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/atomic"

	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// Provider 持有 SDK TracerProvider，未启用时为空壳
type Provider struct {
	config   *Config
	provider *sdktrace.TracerProvider
	logger   logger.Logger
	closed   atomic.Bool
	stdout   io.Writer
}

// Option 选项
type Option func(*Provider)

// WithWriter stdout 导出器的输出目标
func WithWriter(w io.Writer) Option {
	return func(p *Provider) { p.stdout = w }
}

// New 创建并注册全局 TracerProvider 与 W3C 传播器
func New(cfg *Config, l logger.Logger, opts ...Option) (*Provider, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge otel config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNoop()
	}

	p := &Provider{config: newCfg, logger: l.Named("otel"), stdout: os.Stdout}
	for _, opt := range opts {
		opt(p)
	}
	if !newCfg.Enabled {
		return p, nil
	}

	exporter, err := p.newExporter(context.Background())
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", newCfg.ServiceName)}
	for k, v := range newCfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	p.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(newCfg.BatchTimeout),
			sdktrace.WithMaxQueueSize(newCfg.MaxQueueSize),
		),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(newCfg.SampleRatio))),
	)
	otel.SetTracerProvider(p.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p.logger.Info("tracing enabled",
		"exporter", newCfg.Exporter,
		"endpoint", newCfg.Endpoint,
		"sample_ratio", newCfg.SampleRatio,
	)
	return p, nil
}

func (p *Provider) newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	switch p.config.Exporter {
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(p.config.Endpoint)}
		if p.config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(p.stdout))
	default:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(p.config.Endpoint)}
		if p.config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
}

// Enabled 是否注册了 SDK provider
func (p *Provider) Enabled() bool {
	return p.provider != nil
}

// ForceFlush 导出缓冲中的 span
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.ForceFlush(ctx)
}

// Close 导出剩余 span 后关闭，可重复调用
func (p *Provider) Close() error {
	if p.provider == nil || p.closed.Swap(true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
	defer cancel()
	return p.provider.Shutdown(ctx)
}
