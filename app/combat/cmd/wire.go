//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/lk2023060901/underworld/app/combat/internal/dao"
	"github.com/lk2023060901/underworld/app/combat/internal/job"
	"github.com/lk2023060901/underworld/app/combat/internal/metrics"
	"github.com/lk2023060901/underworld/app/combat/internal/service"
	"github.com/lk2023060901/underworld/pkg/app"
	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

func InitApp(cfg *Config, mgr config.Manager, l logger.Logger) (app.Application, func(), error) {
	panic(wire.Build(
		// 1. 基础框架 (BaseApp)
		app.ProviderSet,

		// 2. 基础设施客户端
		providePostgresClient,
		provideRedisClient,
		provideKafkaClient,
		providePrometheusClient,
		provideSentryClient,
		provideTracing,
		provideIDGenerator,

		// 3. 指标
		provideMetricsConfig,
		metrics.New,

		// 4. 数据层 (DAO / Repository)
		dao.NewCharacterDAO,
		dao.NewConfinementDAO,
		dao.NewFightDAO,
		dao.NewCrimeDAO,
		provideStore,

		// 5. 事件投递
		provideDispatcher,

		// 6. 管理层 (Manager)
		providePairLocker,
		provideCoordinator,

		// 7. 服务层 (Service)
		provideCombatPolicy,
		provideConfinementPolicy,
		service.NewConfinementService,
		service.NewCombatService,
		provideCrimeCatalog,
		service.NewCrimeService,
		provideServiceOptions,

		// 8. 接口层与后台任务
		provideHandler,
		provideHTTPServer,
		provideSweeperConfig,
		provideReleaser,
		job.NewReleaseSweeper,

		// 9. 组装与应用配置
		provideAppOptions,
		provideAppComponents,
		app.InitApp,
	))
}
