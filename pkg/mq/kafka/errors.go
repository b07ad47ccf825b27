package kafka

import "errors"

var (
	// ErrNoBrokers 无 broker 地址
	ErrNoBrokers = errors.New("kafka: no brokers configured")

	// ErrClientClosed 客户端已关闭
	ErrClientClosed = errors.New("kafka: client closed")

	// ErrProducerClosed 生产者已关闭
	ErrProducerClosed = errors.New("kafka: producer closed")
)
