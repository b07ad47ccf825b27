package event

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/pkg/database/redis"
	"github.com/lk2023060901/underworld/pkg/logger"
	"github.com/lk2023060901/underworld/pkg/mq/kafka"
	"github.com/lk2023060901/underworld/pkg/serializer"
)

// SinkConfig sink 配置
type SinkConfig struct {
	// Kafka 通知与进度写入 Kafka，关闭时通知只写日志
	Kafka bool `mapstructure:"kafka"`
	// Redis 状态推送走 Redis PUBLISH
	Redis bool `mapstructure:"redis"`

	NotificationTopic string `mapstructure:"notification_topic"`
	ProgressTopic     string `mapstructure:"progress_topic"`
	// StateChannelPrefix 状态推送频道前缀，完整频道为 <prefix><user_id>
	StateChannelPrefix string `mapstructure:"state_channel_prefix"`
	// StateCodec 状态推送编码 json 或 msgpack
	StateCodec string `mapstructure:"state_codec" validate:"omitempty,oneof=json msgpack"`
}

// DefaultSinkConfig 默认配置
func DefaultSinkConfig() *SinkConfig {
	return &SinkConfig{
		NotificationTopic:  "notifications",
		ProgressTopic:      "progress",
		StateChannelPrefix: "character:state:",
		StateCodec:         "json",
	}
}

// publisher 抽象 kafka.Producer，便于测试
type publisher interface {
	PublishWithKey(ctx context.Context, key string, value []byte, headers map[string]string) error
}

var _ publisher = (*kafka.Producer)(nil)

// KafkaNotifier 通知写入 Kafka，key 为用户 ID 保证同一玩家有序
type KafkaNotifier struct {
	producer publisher
	codec    serializer.Serializer
}

// NewKafkaNotifier 创建 Kafka 通知 sink
func NewKafkaNotifier(p publisher) *KafkaNotifier {
	return &KafkaNotifier{producer: p, codec: serializer.NewJSON()}
}

func (n *KafkaNotifier) Name() string { return "kafka_notification" }

// Notify 发送通知
func (n *KafkaNotifier) Notify(ctx context.Context, msg Notification) error {
	payload, err := n.codec.Serialize(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return n.producer.PublishWithKey(ctx, strconv.FormatInt(msg.UserID, 10), payload, map[string]string{
		"kind":         msg.Kind,
		"content-type": n.codec.ContentType(),
	})
}

// KafkaProgressRecorder 进度增量写入 Kafka
type KafkaProgressRecorder struct {
	producer publisher
	codec    serializer.Serializer
}

// NewKafkaProgressRecorder 创建 Kafka 进度 sink
func NewKafkaProgressRecorder(p publisher) *KafkaProgressRecorder {
	return &KafkaProgressRecorder{producer: p, codec: serializer.NewJSON()}
}

func (r *KafkaProgressRecorder) Name() string { return "kafka_progress" }

// RecordProgress 发送进度增量
func (r *KafkaProgressRecorder) RecordProgress(ctx context.Context, userID int64, metric string, delta int64) error {
	payload, err := r.codec.Serialize(Progress{UserID: userID, Metric: metric, Delta: delta})
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return r.producer.PublishWithKey(ctx, strconv.FormatInt(userID, 10), payload, map[string]string{"metric": metric})
}

// MetricsProgressRecorder 进度累计到 Prometheus
type MetricsProgressRecorder struct {
	metrics *metrics.CombatMetrics
}

// NewMetricsProgressRecorder 创建指标进度 sink
func NewMetricsProgressRecorder(m *metrics.CombatMetrics) *MetricsProgressRecorder {
	return &MetricsProgressRecorder{metrics: m}
}

func (r *MetricsProgressRecorder) Name() string { return "metrics_progress" }

// RecordProgress 累加指标
func (r *MetricsProgressRecorder) RecordProgress(_ context.Context, _ int64, metric string, delta int64) error {
	r.metrics.RecordProgress(metric, float64(delta))
	return nil
}

// redisPublisher 抽象 redis.Client 的发布能力
type redisPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) (int64, error)
}

var _ redisPublisher = (*redis.Client)(nil)

// RedisStatePusher 通过 Redis PUBLISH 推送角色状态
type RedisStatePusher struct {
	client redisPublisher
	prefix string
	codec  serializer.Serializer
}

// NewRedisStatePusher 创建 Redis 状态推送 sink
func NewRedisStatePusher(client redisPublisher, cfg *SinkConfig) (*RedisStatePusher, error) {
	if cfg == nil {
		cfg = DefaultSinkConfig()
	}
	codecName := cfg.StateCodec
	if codecName == "" {
		codecName = "json"
	}
	codec, err := serializer.ByName(codecName)
	if err != nil {
		return nil, err
	}
	prefix := cfg.StateChannelPrefix
	if prefix == "" {
		prefix = DefaultSinkConfig().StateChannelPrefix
	}
	return &RedisStatePusher{client: client, prefix: prefix, codec: codec}, nil
}

func (p *RedisStatePusher) Name() string { return "redis_state" }

// Channel 用户的推送频道
func (p *RedisStatePusher) Channel(userID int64) string {
	return p.prefix + strconv.FormatInt(userID, 10)
}

// PushCharacterState 推送状态快照
func (p *RedisStatePusher) PushCharacterState(ctx context.Context, userID int64, snap model.Snapshot) error {
	payload, err := p.codec.Serialize(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = p.client.Publish(ctx, p.Channel(userID), payload)
	return err
}

// LogNotifier 只写日志，未配置 Kafka 时使用
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier 创建日志通知 sink
func NewLogNotifier(l logger.Logger) *LogNotifier {
	return &LogNotifier{logger: l.Named("event.notify")}
}

func (n *LogNotifier) Name() string { return "log_notification" }

// Notify 记录通知
func (n *LogNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.InfoContext(ctx, "notification",
		"user_id", msg.UserID,
		"kind", msg.Kind,
		"title", msg.Title,
		"body", msg.Body,
	)
	return nil
}
