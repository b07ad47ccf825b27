package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/lk2023060901/underworld/pkg/logger"
)

// LoggingProducerMiddleware 记录发送耗时与失败
func LoggingProducerMiddleware(log logger.Logger) ProducerMiddleware {
	return func(ctx context.Context, msg *Message, next func(context.Context, *Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		if err != nil {
			log.ErrorContext(ctx, "message publish failed",
				"topic", msg.Topic,
				"key", string(msg.Key),
				"duration", time.Since(start),
				"error", err,
			)
			return err
		}
		log.DebugContext(ctx, "message published",
			"topic", msg.Topic,
			"key", string(msg.Key),
			"duration", time.Since(start),
		)
		return nil
	}
}

// TracingProducerMiddleware 创建 producer span 并将追踪上下文注入消息头
func TracingProducerMiddleware(tracerName string) ProducerMiddleware {
	return func(ctx context.Context, msg *Message, next func(context.Context, *Message) error) error {
		ctx, span := otel.Tracer(tracerName).Start(ctx, "kafka.publish",
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		defer span.End()

		if msg.Headers == nil {
			msg.Headers = make(map[string]string)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Headers))

		err := next(ctx, msg)
		if err != nil {
			span.RecordError(err)
		}
		return err
	}
}
