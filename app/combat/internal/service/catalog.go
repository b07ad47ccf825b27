package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lk2023060901/underworld/app/combat/internal/model"
	"github.com/lk2023060901/underworld/app/combat/internal/repository"
	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
)

// CatalogConfig 犯罪目录配置
type CatalogConfig struct {
	Crimes []model.CrimeDefinition `mapstructure:"crimes" validate:"dive"`
}

// CrimeCatalog 进程内的犯罪定义缓存，结算期间只读
type CrimeCatalog struct {
	mu     sync.RWMutex
	crimes map[int64]*model.CrimeDefinition
	store  repository.Store
	logger logger.Logger
}

// NewCrimeCatalog 创建犯罪目录
func NewCrimeCatalog(store repository.Store, l logger.Logger) *CrimeCatalog {
	return &CrimeCatalog{
		crimes: make(map[int64]*model.CrimeDefinition),
		store:  store,
		logger: l.Named("service.catalog"),
	}
}

// Load 校验并写入存储，成功后整体替换缓存
func (c *CrimeCatalog) Load(ctx context.Context, cfg *CatalogConfig) error {
	if cfg == nil {
		return fmt.Errorf("crime catalog: %w", config.ErrNilConfig)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("crime catalog: %w", err)
	}

	next := make(map[int64]*model.CrimeDefinition, len(cfg.Crimes))
	defs := make([]*model.CrimeDefinition, 0, len(cfg.Crimes))
	for i := range cfg.Crimes {
		d := cfg.Crimes[i]
		if _, dup := next[d.ID]; dup {
			return fmt.Errorf("crime catalog: duplicate crime id %d", d.ID)
		}
		next[d.ID] = &d
		defs = append(defs, &d)
	}

	if c.store != nil {
		if err := c.store.SyncCrimes(ctx, defs); err != nil {
			return fmt.Errorf("crime catalog: sync: %w", err)
		}
	}

	c.mu.Lock()
	c.crimes = next
	c.mu.Unlock()

	c.logger.Info("crime catalog loaded", "count", len(next))
	return nil
}

// Watch 配置文件变化时重新加载，失败时保留旧目录
func (c *CrimeCatalog) Watch(mgr config.Manager, key string) error {
	return mgr.Watch(func() {
		var cfg CatalogConfig
		if err := mgr.UnmarshalKey(key, &cfg); err != nil {
			c.logger.Error("failed to decode crime catalog", "key", key, "error", err)
			return
		}
		if err := c.Load(context.Background(), &cfg); err != nil {
			c.logger.Error("failed to reload crime catalog", "error", err)
		}
	})
}

// Get 返回定义副本
func (c *CrimeCatalog) Get(id int64) (*model.CrimeDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.crimes[id]
	if !ok {
		return nil, false
	}
	cp := *d
	return &cp, true
}

// List 按 ID 升序
func (c *CrimeCatalog) List() []*model.CrimeDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.CrimeDefinition, 0, len(c.crimes))
	for _, d := range c.crimes {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
