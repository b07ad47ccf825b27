package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/atomic"
)

// messageWriter kafka.Writer 的最小接口
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaWriter 根据配置创建 kafka.Writer
func (c *Client) kafkaWriter(topic string) messageWriter {
	cfg := c.config.Producer
	l := c.logger.Named("kafka.writer")

	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.config.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxRetries + 1,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Async:                  cfg.Async,
		Compression:            parseCompression(cfg.Compression),
		AllowAutoTopicCreation: true,
	}
	if cfg.Async {
		w.Completion = func(msgs []kafka.Message, err error) {
			if err != nil {
				l.Error("async write failed", "topic", topic, "count", len(msgs), "error", err)
			}
		}
	}
	return w
}

// Producer Kafka 生产者
type Producer struct {
	client *Client
	topic  string
	writer messageWriter

	produced  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64

	mu       sync.RWMutex
	lastSent time.Time

	closed atomic.Bool
}

func newProducer(c *Client, topic string, w messageWriter) *Producer {
	return &Producer{client: c, topic: topic, writer: w}
}

// Publish 发布单条消息，经过中间件链
func (p *Producer) Publish(ctx context.Context, msg *Message) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if msg.Topic == "" {
		msg.Topic = p.topic
	}
	p.produced.Inc()

	publish := p.doPublish
	mws := p.client.producerMiddlewares
	for i := len(mws) - 1; i >= 0; i-- {
		mw, next := mws[i], publish
		publish = func(ctx context.Context, msg *Message) error {
			return mw(ctx, msg, next)
		}
	}

	if err := publish(ctx, msg); err != nil {
		p.failed.Inc()
		return err
	}

	p.succeeded.Inc()
	p.mu.Lock()
	p.lastSent = time.Now()
	p.mu.Unlock()
	return nil
}

// PublishWithKey 发布带 Key 的消息
func (p *Producer) PublishWithKey(ctx context.Context, key string, value []byte, headers map[string]string) error {
	return p.Publish(ctx, &Message{Key: []byte(key), Value: value, Headers: headers})
}

func (p *Producer) doPublish(ctx context.Context, msg *Message) error {
	km := kafka.Message{Key: msg.Key, Value: msg.Value}
	if len(msg.Headers) > 0 {
		km.Headers = make([]kafka.Header, 0, len(msg.Headers))
		for k, v := range msg.Headers {
			km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}
	return p.writer.WriteMessages(ctx, km)
}

// Topic 返回 topic 名称
func (p *Producer) Topic() string {
	return p.topic
}

// Stats 返回统计信息
func (p *Producer) Stats() ProducerStats {
	p.mu.RLock()
	last := p.lastSent
	p.mu.RUnlock()
	return ProducerStats{
		MessagesProduced:  p.produced.Load(),
		MessagesSucceeded: p.succeeded.Load(),
		MessagesFailed:    p.failed.Load(),
		LastMessageTime:   last,
	}
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	p.client.logger.Debug("producer closing", "topic", p.topic)
	return p.writer.Close()
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return 0
	}
}
