package postgres

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lk2023060901/underworld/pkg/logger"
)

// Client PostgreSQL 客户端
type Client struct {
	master *pgxpool.Pool   // 写库（单机模式下即唯一的库）
	slaves []*pgxpool.Pool // 只读从库
	cfg    *Config
	logger logger.Logger

	slaveIndex uint64 // round_robin 计数器
}

// New 创建 PostgreSQL 客户端
func New(cfg *Config, l logger.Logger) (*Client, error) {
	newCfg, err := MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}
	if err := validateConfig(newCfg); err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNoop()
	}

	client := &Client{
		cfg:    newCfg,
		logger: l.Named("postgres"),
	}

	primary := newCfg.Standalone
	if newCfg.IsMasterSlaveMode() {
		primary = newCfg.Master
	}

	client.master, err = createPool(newCfg, primary)
	if err != nil {
		return nil, fmt.Errorf("failed to create master pool: %w", err)
	}

	// 从库不可用不阻止启动，读流量回落到主库
	for i := range newCfg.Slaves {
		slavePool, err := createPool(newCfg, &newCfg.Slaves[i])
		if err != nil {
			client.logger.Warn("failed to create slave pool", "index", i, "error", err)
			continue
		}
		client.slaves = append(client.slaves, slavePool)
	}

	return client, nil
}

// Config 返回生效的配置
func (c *Client) Config() *Config {
	return c.cfg
}

func (c *Client) getMaster() *pgxpool.Pool {
	return c.master
}

func (c *Client) getSlave() *pgxpool.Pool {
	if len(c.slaves) == 0 {
		return c.master
	}

	switch c.cfg.SlaveLoadBalance {
	case "round_robin":
		idx := atomic.AddUint64(&c.slaveIndex, 1)
		return c.slaves[idx%uint64(len(c.slaves))]
	default:
		return c.slaves[rand.Intn(len(c.slaves))]
	}
}

// Close 关闭所有连接池
func (c *Client) Close() error {
	if c.master != nil {
		c.master.Close()
	}
	for _, slave := range c.slaves {
		slave.Close()
	}
	return nil
}

// Ping 检查数据库连接，从库失败只记录日志
func (c *Client) Ping(ctx context.Context) error {
	if err := c.master.Ping(ctx); err != nil {
		return fmt.Errorf("master ping failed: %w", err)
	}
	for i, slave := range c.slaves {
		if err := slave.Ping(ctx); err != nil {
			c.logger.Warn("slave ping failed", "index", i, "error", err)
		}
	}
	return nil
}

// Stats 获取主库连接池状态
func (c *Client) Stats() *PoolStats {
	stat := c.master.Stat()
	return &PoolStats{
		AcquireCount:         stat.AcquireCount(),
		AcquireDuration:      stat.AcquireDuration(),
		AcquiredConns:        stat.AcquiredConns(),
		CanceledAcquireCount: stat.CanceledAcquireCount(),
		IdleConns:            stat.IdleConns(),
		MaxConns:             stat.MaxConns(),
		TotalConns:           stat.TotalConns(),
	}
}

func validateConfig(cfg *Config) error {
	if cfg == nil {
		return ErrNilConfig
	}

	if cfg.IsStandaloneMode() && cfg.IsMasterSlaveMode() {
		return fmt.Errorf("%w: standalone and master-slave mode cannot be both configured", ErrInvalidConfig)
	}
	if !cfg.IsStandaloneMode() && !cfg.IsMasterSlaveMode() {
		return fmt.Errorf("%w: must configure either standalone or master-slave mode", ErrInvalidConfig)
	}

	if cfg.IsStandaloneMode() {
		if err := validateDBConfig(cfg.Standalone); err != nil {
			return fmt.Errorf("invalid standalone config: %w", err)
		}
	} else {
		if err := validateDBConfig(cfg.Master); err != nil {
			return fmt.Errorf("invalid master config: %w", err)
		}
	}
	for i := range cfg.Slaves {
		if err := validateDBConfig(&cfg.Slaves[i]); err != nil {
			return fmt.Errorf("invalid slave %d config: %w", i, err)
		}
	}

	switch {
	case cfg.Pool.MaxConns <= 0:
		return fmt.Errorf("%w: max_conns must be positive", ErrInvalidConfig)
	case cfg.Pool.MinConns < 0:
		return fmt.Errorf("%w: min_conns must be non-negative", ErrInvalidConfig)
	case cfg.Pool.MinConns > cfg.Pool.MaxConns:
		return fmt.Errorf("%w: min_conns cannot be greater than max_conns", ErrInvalidConfig)
	}
	return nil
}

func validateDBConfig(cfg *DBConfig) error {
	switch {
	case cfg == nil:
		return fmt.Errorf("%w: db config is nil", ErrInvalidConfig)
	case cfg.Host == "":
		return fmt.Errorf("%w: host is empty", ErrInvalidConfig)
	case cfg.Port <= 0 || cfg.Port > 65535:
		return fmt.Errorf("%w: invalid port %d", ErrInvalidConfig, cfg.Port)
	case cfg.User == "":
		return fmt.Errorf("%w: user is empty", ErrInvalidConfig)
	case cfg.DBName == "":
		return fmt.Errorf("%w: db_name is empty", ErrInvalidConfig)
	}
	return nil
}

func createPool(cfg *Config, dbCfg *DBConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg, dbCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = cfg.Pool.MaxConns
	poolConfig.MinConns = cfg.Pool.MinConns
	poolConfig.MaxConnLifetime = cfg.Pool.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Pool.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = cfg.Pool.HealthCheckPeriod

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func buildConnString(cfg *Config, dbCfg *DBConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		dbCfg.Host,
		dbCfg.Port,
		dbCfg.User,
		dbCfg.Password,
		dbCfg.DBName,
		dbCfg.SSLMode,
		int(cfg.ConnectTimeout.Seconds()),
	)
}
