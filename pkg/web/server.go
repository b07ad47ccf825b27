package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/underworld/pkg/config"
	"github.com/lk2023060901/underworld/pkg/logger"
	"github.com/lk2023060901/underworld/pkg/web/metrics"
	"github.com/lk2023060901/underworld/pkg/web/middleware"
	"github.com/lk2023060901/underworld/pkg/web/validator"
)

// Server Web 服务，实现 app.Server
type Server struct {
	engine *gin.Engine
	config *Config
	logger logger.Logger
	server *http.Server
}

// Option Server 选项
type Option func(*Server)

// WithMetrics 注册 HTTP 指标并挂载 /metrics
func WithMetrics(reg *prometheus.Registry, handler http.Handler) Option {
	return func(s *Server) {
		m := metrics.New(reg)
		s.engine.Use(middleware.Metrics(m))
		if handler != nil {
			s.engine.GET("/metrics", gin.WrapH(handler))
		}
	}
}

// WithPanicReporter panic 时额外上报（如 Sentry）
func WithPanicReporter(fn middleware.PanicReporter) Option {
	return func(s *Server) {
		s.engine.Use(middleware.ReportPanic(fn))
	}
}

// NewServer 创建 Web 服务
func NewServer(cfg *Config, l logger.Logger, opts ...Option) (*Server, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if l == nil {
		l = logger.NewNoop()
	}

	gin.SetMode(newCfg.Mode)
	validator.Init()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(l.Named("web.access")))
	engine.Use(middleware.Recovery(l.Named("web.recovery")))
	engine.Use(middleware.Tracing(newCfg.ServiceName))
	if newCfg.EnableCORS {
		engine.Use(middleware.CORS())
	}

	s := &Server{
		engine: engine,
		config: newCfg,
		logger: l.Named("web.server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	engine.GET("/healthz", func(c *gin.Context) {
		Success(c, gin.H{"status": "ok"})
	})

	return s, nil
}

// Router 返回 Gin 引擎，用于注册路由
func (s *Server) Router() *gin.Engine {
	return s.engine
}

// Handler 返回 http.Handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start 非阻塞启动监听
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.server = &http.Server{
		Addr:           addr,
		Handler:        s.engine,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		s.logger.Info("starting http server", "addr", addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	return nil
}

// Stop 立即关闭
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}

// GracefulStop 等待进行中的请求完成
func (s *Server) GracefulStop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	s.logger.Info("http server exited")
	return nil
}
