package main

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/underworld/app/combat/internal/dao"
	"github.com/lk2023060901/underworld/app/combat/internal/event"
	"github.com/lk2023060901/underworld/app/combat/internal/handler"
	"github.com/lk2023060901/underworld/app/combat/internal/job"
	"github.com/lk2023060901/underworld/app/combat/internal/manager"
	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/app/combat/internal/service"
	"github.com/lk2023060901/underworld/pkg/app"
	"github.com/lk2023060901/underworld/pkg/config"
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

const (
	catalogConfigKey   = "catalog"
	catalogLoadTimeout = 30 * time.Second
)

// usesPostgres 存储驱动为 postgres（空值按默认处理）
func usesPostgres(cfg *Config) bool {
	return cfg.Storage.Driver == "" || cfg.Storage.Driver == "postgres"
}

// usesRedis 状态推送或分布式角色对锁需要 Redis
func usesRedis(cfg *Config) bool {
	return cfg.Sinks.Redis || cfg.Coordinator.PairLock.Backend == "redis"
}

// providePostgresClient 仅在 postgres 驱动下创建连接池
func providePostgresClient(cfg *Config, l logger.Logger) (*postgres.Client, error) {
	if !usesPostgres(cfg) {
		return nil, nil
	}
	return postgres.New(&cfg.Database, l)
}

// provideRedisClient 未启用时返回 nil
func provideRedisClient(cfg *Config) (*redis.Client, error) {
	if !usesRedis(cfg) {
		return nil, nil
	}
	return redis.NewClient(&cfg.Redis)
}

// provideKafkaClient 未启用时返回 nil
func provideKafkaClient(cfg *Config, l logger.Logger) (*kafka.Client, error) {
	if !cfg.Sinks.Kafka {
		return nil, nil
	}
	return kafka.New(&cfg.Kafka,
		kafka.WithLogger(l),
		kafka.WithProducerMiddleware(kafka.LoggingProducerMiddleware(l), kafka.TracingProducerMiddleware("combat/kafka")),
	)
}

// providePrometheusClient 提供 Prometheus 客户端
func providePrometheusClient(cfg *Config, l logger.Logger) (*prometheus.Client, error) {
	return prometheus.New(&cfg.Prometheus, l)
}

// provideSentryClient DSN 为空时只计数不上报
func provideSentryClient(cfg *Config) (*sentry.Client, error) {
	return sentry.New(&cfg.Sentry)
}

// provideTracing 注册全局 TracerProvider
func provideTracing(cfg *Config, l logger.Logger) (*otel.Provider, error) {
	return otel.New(&cfg.Tracing, l)
}

// provideIDGenerator 提供战斗/犯罪记录 ID 生成器
func provideIDGenerator(cfg *Config) (idgen.Generator, error) {
	return idgen.NewSonyflake(&cfg.IDGen)
}

// provideMetricsConfig 提供指标配置
func provideMetricsConfig(cfg *Config) *metrics.Config {
	return &cfg.Metrics
}

// provideStore 按驱动选择存储
func provideStore(
	cfg *Config,
	db *postgres.Client,
	characterDAO *dao.CharacterDAO,
	confinementDAO *dao.ConfinementDAO,
	fightDAO *dao.FightDAO,
	crimeDAO *dao.CrimeDAO,
	l logger.Logger,
) (repository.Store, error) {
	switch {
	case usesPostgres(cfg):
		return repository.NewPostgresStore(&cfg.Storage, db, characterDAO, confinementDAO, fightDAO, crimeDAO, l)
	case cfg.Storage.Driver == "memory":
		l.Warn("using in-memory store, state is lost on restart")
		return repository.NewMemoryStore(&cfg.Storage, l), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// provideDispatcher 组装事件 sink
func provideDispatcher(
	cfg *Config,
	kafkaClient *kafka.Client,
	redisClient *redis.Client,
	m *metrics.CombatMetrics,
	l logger.Logger,
) (*event.Dispatcher, error) {
	sinkCfg, err := config.MergeConfig(event.DefaultSinkConfig(), &cfg.Sinks)
	if err != nil {
		return nil, fmt.Errorf("failed to merge sink config: %w", err)
	}

	opts := []event.Option{
		event.WithProgressRecorder(event.NewMetricsProgressRecorder(m)),
	}

	if kafkaClient != nil {
		notifications, err := kafkaClient.Producer(sinkCfg.NotificationTopic)
		if err != nil {
			return nil, fmt.Errorf("notification producer: %w", err)
		}
		progress, err := kafkaClient.Producer(sinkCfg.ProgressTopic)
		if err != nil {
			return nil, fmt.Errorf("progress producer: %w", err)
		}
		opts = append(opts,
			event.WithNotifier(event.NewKafkaNotifier(notifications)),
			event.WithProgressRecorder(event.NewKafkaProgressRecorder(progress)),
		)
	} else {
		opts = append(opts, event.WithNotifier(event.NewLogNotifier(l)))
	}

	if sinkCfg.Redis && redisClient != nil {
		pusher, err := event.NewRedisStatePusher(redisClient, sinkCfg)
		if err != nil {
			return nil, fmt.Errorf("state pusher: %w", err)
		}
		opts = append(opts, event.WithStatePusher(pusher))
	}

	return event.NewDispatcher(&cfg.Dispatcher, m, l, opts...)
}

// pairLockConfig TTL 至少覆盖一次 Run 的最坏耗时（所有尝试加退避）
func pairLockConfig(cfg *Config, l logger.Logger) (*manager.PairLockConfig, error) {
	lockCfg, err := config.MergeConfig(manager.DefaultPairLockConfig(), &cfg.Coordinator.PairLock)
	if err != nil {
		return nil, fmt.Errorf("failed to merge pair lock config: %w", err)
	}
	attempt := cfg.Storage.StatementTimeout
	if attempt <= 0 {
		attempt = cfg.Storage.LockTimeout
	}
	if worst := cfg.Coordinator.MaxRunDuration(attempt); lockCfg.TTL < worst {
		l.Warn("pair lock ttl below worst-case run duration, raising it",
			"configured", lockCfg.TTL.String(),
			"effective", worst.String(),
		)
		lockCfg.TTL = worst
	}
	return lockCfg, nil
}

// providePairLocker redis 后端用于多实例部署
func providePairLocker(cfg *Config, redisClient *redis.Client, l logger.Logger) (manager.PairLocker, error) {
	lockCfg, err := pairLockConfig(cfg, l)
	if err != nil {
		return nil, err
	}
	if lockCfg.Backend == "redis" {
		if redisClient == nil {
			return nil, fmt.Errorf("pair lock backend redis requires a redis client")
		}
		return manager.NewRedisPairLocker(redisClient, lockCfg, l), nil
	}
	return manager.NewLocalPairLocker(lockCfg), nil
}

// provideCoordinator 提供事务协调器
func provideCoordinator(
	cfg *Config,
	store repository.Store,
	locker manager.PairLocker,
	dispatcher *event.Dispatcher,
	reporter *sentry.Client,
	m *metrics.CombatMetrics,
	l logger.Logger,
) (*manager.Coordinator, error) {
	lockCfg, err := pairLockConfig(cfg, logger.NewNoop())
	if err != nil {
		return nil, err
	}
	coordCfg := cfg.Coordinator
	coordCfg.PairLock = *lockCfg
	return manager.NewCoordinator(&coordCfg, store, locker, dispatcher, reporter, m, l)
}

// provideCombatPolicy 提供战斗策略
func provideCombatPolicy(cfg *Config) *service.CombatPolicy {
	return &cfg.Combat
}

// provideConfinementPolicy 提供监禁策略
func provideConfinementPolicy(cfg *Config) *service.ConfinementPolicy {
	return &cfg.Confinement
}

// provideServiceOptions 生产环境使用默认时钟与随机源
func provideServiceOptions() []service.Option {
	return nil
}

// provideCrimeCatalog 加载犯罪目录并订阅配置变更
func provideCrimeCatalog(cfg *Config, mgr config.Manager, store repository.Store, l logger.Logger) (*service.CrimeCatalog, error) {
	catalog := service.NewCrimeCatalog(store, l)

	ctx, cancel := context.WithTimeout(context.Background(), catalogLoadTimeout)
	defer cancel()
	if err := catalog.Load(ctx, &cfg.Catalog); err != nil {
		return nil, err
	}
	if mgr != nil {
		if err := catalog.Watch(mgr, catalogConfigKey); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// provideHandler 提供 HTTP 接口
func provideHandler(
	fights *service.CombatService,
	crimes *service.CrimeService,
	confinement *service.ConfinementService,
	catalog *service.CrimeCatalog,
	l logger.Logger,
) *handler.Handler {
	return handler.NewHandler(fights, crimes, confinement, catalog, l)
}

// provideHTTPServer 提供 HTTP 服务，独立指标端口关闭时 /metrics 挂在业务端口
func provideHTTPServer(
	cfg *Config,
	h *handler.Handler,
	promClient *prometheus.Client,
	sentryClient *sentry.Client,
	l logger.Logger,
) (*web.Server, error) {
	metricsHandler := promClient.Handler()
	if cfg.Prometheus.HTTPServer.Enabled {
		metricsHandler = nil
	}
	srv, err := web.NewServer(&cfg.HTTP, l,
		web.WithMetrics(promClient.Registry(), metricsHandler),
		web.WithPanicReporter(sentryClient.RecoverWithContext),
	)
	if err != nil {
		return nil, err
	}
	h.Register(srv.Router())
	return srv, nil
}

// provideSweeperConfig 提供清理任务配置
func provideSweeperConfig(cfg *Config) *job.Config {
	return &cfg.Sweeper
}

// provideReleaser 提供到期释放实现
func provideReleaser(confinement *service.ConfinementService) job.Releaser {
	return confinement
}

// provideAppOptions 提供应用选项
func provideAppOptions(cfg *Config, l logger.Logger) []app.Option {
	return []app.Option{
		app.WithName(app.AppName),
		app.WithLogger(l),
		app.WithNamedLoggers(cfg.Loggers),
	}
}

// provideAppComponents 提供应用组件
func provideAppComponents(
	httpServer *web.Server,
	sweeper *job.ReleaseSweeper,
	promClient *prometheus.Client,
	combatMetrics *metrics.CombatMetrics,
	dispatcher *event.Dispatcher,
	sentryClient *sentry.Client,
	tracing *otel.Provider,
	postgresClient *postgres.Client,
	redisClient *redis.Client,
	kafkaClient *kafka.Client,
	l logger.Logger,
) app.Components {
	// 注册战斗指标到 Prometheus
	if err := combatMetrics.Register(promClient.Registry()); err != nil {
		l.Warn("failed to register combat metrics", "error", err)
	}

	// 关闭顺序：先排空事件，再关闭下游客户端
	closers := []app.Closer{dispatcher}
	if kafkaClient != nil {
		closers = append(closers, kafkaClient)
	}
	if redisClient != nil {
		closers = append(closers, redisClient)
	}
	if postgresClient != nil {
		closers = append(closers, postgresClient)
	}
	closers = append(closers, tracing, sentryClient)

	return app.Components{
		Servers: []app.Server{httpServer, promClient, sweeper},
		Closers: closers,
	}
}
