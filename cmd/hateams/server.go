package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/api/handlers"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/config"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/cache"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/database"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/history"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/metrics"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/migration"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/server"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/internal/telemetry"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/llm"
	"github.com/Devgum/Hierarchical-Agent-Teams-Demo/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// metricsNamespace Prometheus 指标前缀
const metricsNamespace = "hateams"

// skipAuthPaths 不需要认证的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 持有服务的全部组件
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	provider llm.Provider

	registry  *prometheus.Registry
	collector *metrics.Collector
	otel      *telemetry.Providers

	// 可选组件, 未启用时为 nil
	cache *cache.Manager
	db    *database.PoolManager
	runs  *history.Repository

	store    *session.Store
	pipeline *session.Pipeline

	handler        http.Handler
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger}
}

// =============================================================================
// 🚀 初始化
// =============================================================================

// Init 按依赖顺序初始化组件. 缓存与数据库不可用时降级运行.
func (s *Server) Init(ctx context.Context) error {
	var err error

	// 1. 遥测与指标
	s.otel, err = telemetry.Init(ctx, s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector(metricsNamespace, s.registry, s.logger)

	// 2. 可选存储
	s.initCache(ctx)
	s.initHistory(ctx)

	// 3. 会话与流水线
	deps := sharedDeps{cfg: s.cfg, cache: s.cache, collector: s.collector, logger: s.logger}
	if p, err := deps.newProvider(); err != nil {
		s.logger.Warn("llm provider not configured, sessions will have no orchestrator", zap.Error(err))
	} else {
		s.provider, deps.provider = p, p
	}
	s.store = session.NewStore(session.StoreConfig{
		BaseDir:      s.cfg.Session.BaseDir,
		DirPrefix:    s.cfg.Session.DirPrefix,
		MaxAge:       s.cfg.Session.MaxAge,
		ReapInterval: s.cfg.Session.ReapInterval,
	}, deps.SharedFunc(), s.logger, session.WithStoreMetrics(s.collector))

	pipelineOpts := []session.PipelineOption{session.WithPipelineMetrics(s.collector)}
	if s.runs != nil {
		pipelineOpts = append(pipelineOpts, session.WithRecorder(s.runs))
	}
	s.pipeline = session.NewPipeline(s.logger, pipelineOpts...)

	// 4. 路由与服务器
	s.handler = s.routes(ctx)
	s.httpManager = server.NewManager("api", s.handler, s.apiServerConfig(), s.logger)
	if s.cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
		s.metricsManager = server.NewManager("metrics", mux, s.metricsServerConfig(), s.logger)
	}

	s.logger.Info("server initialized",
		zap.Bool("llm", s.provider != nil),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("history", s.runs != nil),
		zap.Bool("auth", s.cfg.Auth.Enabled),
		zap.Bool("telemetry", s.otel.Enabled()),
	)
	return nil
}

func (s *Server) initCache(ctx context.Context) {
	c := s.cfg.Cache
	if !c.Enabled {
		return
	}
	cfg := cache.DefaultConfig()
	cfg.Addr = c.Addr
	cfg.Password = c.Password
	cfg.DB = c.DB
	cfg.KeyPrefix = c.KeyPrefix
	if c.PoolSize > 0 {
		cfg.PoolSize = c.PoolSize
	}
	cfg.MinIdleConns = c.MinIdleConns
	cfg.DefaultTTL = s.cfg.Search.CacheTTL

	m, err := cache.NewManager(ctx, cfg, s.logger, cache.WithObserver(s.collector))
	if err != nil {
		s.logger.Warn("cache not available, search results will not be cached", zap.Error(err))
		return
	}
	s.cache = m
}

func (s *Server) initHistory(ctx context.Context) {
	d := s.cfg.Database
	if !d.Enabled {
		return
	}
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = d.MaxOpenConns
	pool.MaxIdleConns = d.MaxIdleConns
	pool.ConnMaxLifetime = d.ConnMaxLifetime
	if err := pool.Validate(); err != nil {
		s.logger.Warn("invalid database pool settings, using defaults", zap.Error(err))
		pool = database.DefaultPoolConfig()
	}

	if err := migration.Run(ctx, d.Driver, d.DSN(), s.logger); err != nil {
		s.logger.Error("run history migration failed, run history disabled", zap.Error(err))
		return
	}
	pm, err := database.Open(d.Driver, d.DSN(), pool, s.logger, database.WithStatsObserver(s.collector))
	if err != nil {
		s.logger.Warn("database not available, run history disabled", zap.Error(err))
		return
	}
	s.db, s.runs = pm, history.NewRepository(pm, s.logger)
}

// =============================================================================
// 🌐 路由
// =============================================================================

func (s *Server) routes(ctx context.Context) http.Handler {
	limit := s.cfg.Session.RecursionLimit

	health := handlers.NewHealthHandler(s.logger,
		handlers.WithVersion(handlers.VersionInfo{Version: Version, BuildTime: BuildTime, GitCommit: GitCommit}),
		handlers.WithSessionCount(s.store.Len),
	)
	if s.cache != nil {
		health.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}
	if s.db != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.db.Ping))
	}
	if s.provider != nil {
		health.RegisterCheck(providerCheck(s.provider))
	}

	sessions := handlers.NewSessionHandler(s.store, s.logger)
	query := handlers.NewQueryHandler(s.store, s.pipeline, limit, s.logger)
	ws := handlers.NewWSQueryHandler(query, originHosts(s.cfg.Server.CORSAllowedOrigins))
	files := handlers.NewFileHandler(s.store, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion)

	mux.HandleFunc("/session", sessions.HandleSession)
	mux.HandleFunc("/query", query.HandleQuery)
	mux.HandleFunc("GET /ws/query", ws.HandleWS)
	mux.HandleFunc("GET /files", files.HandleList)
	mux.HandleFunc("GET /download", files.HandleDownload)
	if s.runs != nil {
		mux.HandleFunc("GET /runs", handlers.NewRunHandler(s.runs, s.logger).HandleList)
	}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Auth.Enabled {
		chain = append(chain, JWTAuth(s.cfg.Auth, skipAuthPaths, s.logger))
	}
	return Chain(mux, chain...)
}

// originHosts 把 CORS 来源转换为 websocket 的 host 匹配模式.
func originHosts(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (s *Server) apiServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = s.cfg.Server.Addr()
	cfg.ReadTimeout = s.cfg.Server.ReadTimeout
	cfg.WriteTimeout = s.cfg.Server.WriteTimeout
	cfg.ShutdownTimeout = s.cfg.Server.ShutdownTimeout
	return cfg
}

func (s *Server) metricsServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.MetricsPort))
	cfg.WriteTimeout = 30 * time.Second
	cfg.ShutdownTimeout = s.cfg.Server.ShutdownTimeout
	return cfg
}

// =============================================================================
// 🛑 运行与关闭
// =============================================================================

// Run 运行 API 服务器、指标服务器和后台任务, 直到 ctx 取消或任一组件失败.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.httpManager.Run(gctx) })
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Run(gctx) })
	}
	g.Go(func() error { return s.store.RunReaper(gctx) })
	if s.runs != nil {
		g.Go(func() error { return s.purgeHistory(gctx) })
	}

	s.logger.Info("all servers started",
		zap.String("addr", s.cfg.Server.Addr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return g.Wait()
}

// purgeHistory 与会话同周期清理过期的运行记录.
func (s *Server) purgeHistory(ctx context.Context) error {
	interval := s.cfg.Session.ReapInterval
	if interval <= 0 {
		interval = session.DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		n, err := s.runs.PurgeBefore(ctx, time.Now().Add(-s.cfg.Session.MaxAge))
		if err != nil {
			s.logger.Warn("run history purge failed", zap.Error(err))
			continue
		}
		if n > 0 {
			s.logger.Info("run history purged", zap.Int64("count", n))
		}
	}
}

// Close 释放会话目录与外部连接. 在 Run 返回后调用.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("starting graceful shutdown")
	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("session store: %w", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}
	err := errors.Join(errs...)
	if err == nil {
		s.logger.Info("graceful shutdown completed")
	}
	return err
}
