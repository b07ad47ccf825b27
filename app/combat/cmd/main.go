package main

import (
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/job"
	"github.com/lk2023060901/underworld/app/combat/internal/manager"
	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/app/combat/internal/service"
	"github.com/lk2023060901/underworld/pkg/app"
	"github.com/lk2023060901/underworld/pkg/database/postgres"
	"github.com/lk2023060901/underworld/pkg/database/redis"
	"github.com/lk2023060901/underworld/pkg/idgen"
	"github.com/lk2023060901/underworld/pkg/logger"
	"github.com/lk2023060901/underworld/pkg/mq/kafka"
	"github.com/lk2023060901/underworld/pkg/otel"
	"github.com/lk2023060901/underworld/pkg/prometheus"
	"github.com/lk2023060901/underworld/pkg/sentry"
	"github.com/lk2023060901/underworld/pkg/web"
)

// Config 定义 Combat 服务的完整配置结构
type Config struct {
	Log     logger.Config             `mapstructure:"log"`
	Loggers map[string]*logger.Config `mapstructure:"loggers"`

	// 存储：postgres 或 memory
	Storage  repository.Config `mapstructure:"storage"`
	Database postgres.Config   `mapstructure:"database"`
	Redis    redis.Config      `mapstructure:"redis"`
	Kafka    kafka.Config      `mapstructure:"kafka"`

	HTTP       web.Config        `mapstructure:"http"`
	Prometheus prometheus.Config `mapstructure:"prometheus"`
	Sentry     sentry.Config     `mapstructure:"sentry"`
	Tracing    otel.Config       `mapstructure:"tracing"`
	Metrics    metrics.Config    `mapstructure:"metrics"`
	IDGen      idgen.Config      `mapstructure:"idgen"`

	// 业务策略
	Combat      service.CombatPolicy      `mapstructure:"combat"`
	Confinement service.ConfinementPolicy `mapstructure:"confinement"`
	Catalog     service.CatalogConfig     `mapstructure:"catalog"`

	Coordinator manager.Config   `mapstructure:"coordinator"`
	Dispatcher  event.Config     `mapstructure:"dispatcher"`
	Sinks       event.SinkConfig `mapstructure:"sinks"`
	Sweeper     job.Config       `mapstructure:"sweeper"`
}

// DefaultConfig 预置业务策略的默认值，配置文件只覆盖出现的键，显式配置的 0 会保留
func DefaultConfig() *Config {
	return &Config{
		Storage:     *repository.DefaultConfig(),
		Combat:      *service.DefaultCombatPolicy(),
		Confinement: *service.DefaultConfinementPolicy(),
		Coordinator: *manager.DefaultConfig(),
		Dispatcher:  *event.DefaultConfig(),
		Sinks:       *event.DefaultSinkConfig(),
	}
}

func main() {
	cfg := DefaultConfig()

	// 1. 加载配置
	mgr, err := app.LoadConfig(cfg)
	if err != nil {
		panic(err)
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		panic(err)
	}

	// 3. 通过 Wire 初始化应用
	application, cleanup, err := InitApp(cfg, mgr, l)
	if err != nil {
		l.Error("failed to initialize application", "error", err)
		return
	}
	defer cleanup()

	// 4. 运行服务
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
	}
}
