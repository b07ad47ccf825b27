package kafka

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// Client Kafka 客户端，按 topic 缓存生产者
type Client struct {
	config *Config
	logger logger.Logger

	producers  map[string]*Producer
	producerMu sync.Mutex

	producerMiddlewares []ProducerMiddleware
	newWriter           func(topic string) messageWriter

	closed atomic.Bool
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithLogger 设置日志
func WithLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProducerMiddleware 添加生产者中间件，按添加顺序由外向内执行
func WithProducerMiddleware(mw ...ProducerMiddleware) ClientOption {
	return func(c *Client) {
		c.producerMiddlewares = append(c.producerMiddlewares, mw...)
	}
}

// New 创建 Kafka 客户端
func New(cfg *Config, opts ...ClientOption) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:    newCfg,
		logger:    logger.NewNoop(),
		producers: make(map[string]*Producer),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newWriter == nil {
		c.newWriter = c.kafkaWriter
	}
	return c, nil
}

// Producer 获取指定 topic 的生产者（懒创建）
func (c *Client) Producer(topic string) (*Producer, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}

	c.producerMu.Lock()
	defer c.producerMu.Unlock()

	if p, ok := c.producers[topic]; ok {
		return p, nil
	}
	p := newProducer(c, topic, c.newWriter(topic))
	c.producers[topic] = p
	return p, nil
}

// Close 关闭所有生产者，刷出缓冲中的消息
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.producerMu.Lock()
	defer c.producerMu.Unlock()

	var firstErr error
	for topic, p := range c.producers {
		if err := p.Close(); err != nil {
			c.logger.Error("failed to close producer", "topic", topic, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
