package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/underworld/app/combat/internal/manager"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

func TestProvideStoreSelectsDriver(t *testing.T) {
	l := logger.NewNoop()

	cfg := DefaultConfig()
	cfg.Storage.Driver = "memory"
	store, err := provideStore(cfg, nil, nil, nil, nil, nil, l)
	require.NoError(t, err)
	assert.IsType(t, &repository.MemoryStore{}, store)

	cfg.Storage.Driver = "mysql"
	_, err = provideStore(cfg, nil, nil, nil, nil, nil, l)
	assert.Error(t, err)
}

func TestConditionalClientsStayNil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Driver = "memory"

	db, err := providePostgresClient(cfg, logger.NewNoop())
	require.NoError(t, err)
	assert.Nil(t, db)

	rdb, err := provideRedisClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, rdb)

	kc, err := provideKafkaClient(cfg, logger.NewNoop())
	require.NoError(t, err)
	assert.Nil(t, kc)
}

func TestProvidePairLocker(t *testing.T) {
	cfg := DefaultConfig()
	locker, err := providePairLocker(cfg, nil, logger.NewNoop())
	require.NoError(t, err)
	assert.IsType(t, &manager.LocalPairLocker{}, locker)

	cfg.Coordinator.PairLock.Backend = "redis"
	assert.True(t, usesRedis(cfg))
	_, err = providePairLocker(cfg, nil, logger.NewNoop())
	assert.Error(t, err)
}

func TestExplicitZeroSurvivesLoading(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
combat:
  battle:
    hit_bonus: 0
    fame:
      defense_weight: 0
coordinator:
  retry:
    max_retries: 0
dispatcher:
  max_pending: 0
`), 0o644))

	mgr := config.NewManager()
	require.NoError(t, mgr.LoadFile(path))
	cfg := DefaultConfig()
	require.NoError(t, mgr.Unmarshal(cfg))

	assert.Zero(t, cfg.Combat.Battle.HitBonus)
	assert.Zero(t, cfg.Combat.Battle.Fame.DefenseWeight)
	assert.Zero(t, cfg.Coordinator.Retry.MaxRetries)
	assert.Zero(t, cfg.Dispatcher.MaxPending)

	// 未出现的键保留默认值
	assert.Equal(t, 20, cfg.Combat.Battle.RoundCap)
	assert.Equal(t, 10.0, cfg.Combat.Battle.Fame.LevelWeight)
	assert.Equal(t, 2.0, cfg.Coordinator.Retry.Multiplier)

	assert.Equal(t, 80, cfg.Confinement.NaturalReleaseHPPercent)
}

func TestPairLockTTLCoversWorstCaseRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.StatementTimeout = 10 * time.Second
	cfg.Coordinator.PairLock.TTL = 30 * time.Second

	lockCfg, err := pairLockConfig(cfg, logger.NewNoop())
	require.NoError(t, err)
	// 4 次尝试 × 10s + 退避 1s + 2s + 4s
	assert.Equal(t, 47*time.Second, lockCfg.TTL)

	cfg.Coordinator.PairLock.TTL = time.Minute
	lockCfg, err = pairLockConfig(cfg, logger.NewNoop())
	require.NoError(t, err)
	assert.Equal(t, time.Minute, lockCfg.TTL)
}
