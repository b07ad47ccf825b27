package kafka

import (
	"context"
	"time"
)

// Message 消息结构
type Message struct {
	Topic string

	// Key 同一 Key 的消息路由到同一分区，保证单个角色的消息有序
	Key   []byte
	Value []byte

	// Headers 元数据，如 traceparent、event_type
	Headers map[string]string
}

// ProducerMiddleware 生产者中间件
type ProducerMiddleware func(ctx context.Context, msg *Message, next func(context.Context, *Message) error) error

// ProducerStats 生产者统计
type ProducerStats struct {
	MessagesProduced  int64
	MessagesSucceeded int64
	MessagesFailed    int64
	LastMessageTime   time.Time
}
