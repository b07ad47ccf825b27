package prometheus

import "time"

// Config Prometheus 配置
type Config struct {
	// Namespace 指标前缀，如 underworld
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`

	// HTTPServer 独立的指标端口；关闭时通过 Handler 挂到业务 HTTP 服务
	HTTPServer HTTPServerConfig `mapstructure:"http_server"`

	EnableGoCollector      bool `mapstructure:"enable_go_collector"`
	EnableProcessCollector bool `mapstructure:"enable_process_collector"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Addr    string        `mapstructure:"addr"`
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Namespace: "underworld",
		HTTPServer: HTTPServerConfig{
			Addr:    ":9090",
			Path:    "/metrics",
			Timeout: 10 * time.Second,
		},
		EnableGoCollector:      true,
		EnableProcessCollector: true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Namespace == "" {
		return ErrInvalidConfig
	}
	if c.HTTPServer.Enabled && c.HTTPServer.Addr == "" {
		return ErrInvalidConfig
	}
	if c.HTTPServer.Path == "" {
		c.HTTPServer.Path = "/metrics"
	}
	if c.HTTPServer.Timeout == 0 {
		c.HTTPServer.Timeout = 10 * time.Second
	}
	return nil
}
