package kafka

import "time"

// Config Kafka 配置
type Config struct {
	Brokers  []string       `mapstructure:"brokers"`
	Producer ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig 生产者配置
type ProducerConfig struct {
	// Async 异步发送时写入失败只记录日志
	Async        bool          `mapstructure:"async"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`

	// RequiredAcks 0: 不等待, 1: Leader, -1: 所有副本
	RequiredAcks int `mapstructure:"required_acks"`

	// Compression none, gzip, snappy, lz4, zstd
	Compression  string        `mapstructure:"compression"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Brokers: []string{"localhost:9092"},
		Producer: ProducerConfig{
			BatchSize:    100,
			BatchTimeout: 50 * time.Millisecond,
			MaxRetries:   3,
			RequiredAcks: -1,
			Compression:  "snappy",
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	return nil
}
