package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BaSui01/streamform/agent/conversation"
	"github.com/BaSui01/streamform/agent/streaming"
	"github.com/BaSui01/streamform/api/handlers"
	"github.com/BaSui01/streamform/config"
	"github.com/BaSui01/streamform/internal/cache"
	"github.com/BaSui01/streamform/internal/database"
	"github.com/BaSui01/streamform/internal/metrics"
	"github.com/BaSui01/streamform/internal/server"
	"github.com/BaSui01/streamform/internal/telemetry"
	"github.com/BaSui01/streamform/llm"
	"github.com/BaSui01/streamform/llm/providers"
	"github.com/BaSui01/streamform/llm/providers/openaicompat"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/streamform"

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Streamform 的主服务器
type Server struct {
	cfg      *config.Config
	logger   *zap.Logger
	level    zap.AtomicLevel
	reloader *config.Reloader

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler *handlers.HealthHandler
	chatHandler   *handlers.ChatHandler

	// 指标与遥测
	metricsCollector *metrics.Collector
	telemetry        *telemetry.Providers

	// 存储
	pool  *database.PoolManager
	cache *cache.Manager
	store *conversation.Store

	// 后台 goroutine 生命周期
	bgCancel context.CancelFunc
}

// NewServer 创建新的服务器实例，reloader 可为 nil
func NewServer(cfg *config.Config, logger *zap.Logger, level zap.AtomicLevel, reloader *config.Reloader) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		level:    level,
		reloader: reloader,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	bgCtx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// 1. 指标与遥测
	if err := s.initObservability(); err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}

	// 2. 存储层
	if err := s.initStorage(bgCtx); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}

	// 3. Handlers
	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	// 4. 配置热加载
	if err := s.initReloader(bgCtx); err != nil {
		return fmt.Errorf("failed to init config reloader: %w", err)
	}

	// 5. HTTP 服务器
	if err := s.startHTTPServer(bgCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.reloader != nil),
		zap.Bool("auth_enabled", s.cfg.JWT.Secret != ""),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initObservability() error {
	s.metricsCollector = metrics.NewCollector("streamform", s.logger)

	tp, err := telemetry.Init(s.cfg.Telemetry, s.logger)
	if err != nil {
		return err
	}
	s.telemetry = tp
	return nil
}

// initStorage 按配置组装 Redis 与 SQL 对话仓库，Redis 在前作为读缓存
func (s *Server) initStorage(ctx context.Context) error {
	var layers []conversation.Repository

	if s.cfg.Redis.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = s.cfg.Redis.Addr
		cacheCfg.Password = s.cfg.Redis.Password
		cacheCfg.DB = s.cfg.Redis.DB
		cacheCfg.PoolSize = s.cfg.Redis.PoolSize
		cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
		if s.cfg.Redis.KeyPrefix != "" {
			cacheCfg.KeyPrefix = s.cfg.Redis.KeyPrefix
		}
		if s.cfg.Redis.ChatTTL > 0 {
			cacheCfg.DefaultTTL = s.cfg.Redis.ChatTTL
		}

		m, err := cache.NewManager(cacheCfg, s.logger)
		if err != nil {
			return err
		}
		m.SetRecorder(s.metricsCollector)
		s.cache = m
		layers = append(layers, cache.NewConversationRepository(m, cacheCfg.DefaultTTL, s.logger))
	}

	if s.cfg.Database.Enabled {
		db, err := database.Open(s.cfg.Database.Driver, s.cfg.Database.DSN(), s.logger)
		if err != nil {
			return err
		}

		poolCfg := database.DefaultPoolConfig()
		if s.cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
		}
		if s.cfg.Database.MaxIdleConns > 0 {
			poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
		}
		if s.cfg.Database.ConnMaxLifetime > 0 {
			poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
		}

		pool, err := database.NewPoolManager(db, poolCfg, s.logger)
		if err != nil {
			return err
		}
		pool.SetObserver(s.metricsCollector)
		s.pool = pool

		repo := database.NewChatRepository(pool, s.logger)
		if s.cfg.Database.AutoMigrate {
			if err := repo.Migrate(ctx); err != nil {
				return err
			}
		}
		layers = append(layers, repo)
	}

	opts := []conversation.StoreOption{
		conversation.WithDefaultSystemPrompt(s.cfg.Chat.SystemPrompt),
	}
	if len(layers) > 0 {
		opts = append(opts, conversation.WithRepository(conversation.NewMultiRepository(s.logger, layers...)))
	}
	s.store = conversation.NewStore(s.logger, opts...)

	s.logger.Info("Conversation store initialized",
		zap.Bool("redis", s.cache != nil),
		zap.Bool("database", s.pool != nil),
	)
	return nil
}

// newOpener 组装模型调用链：兼容 OpenAI 的流式 Provider → 重试 → 指标
func (s *Server) newOpener() llm.Opener {
	if s.cfg.LLM.APIKey == "" {
		s.logger.Warn("LLM API key not configured, upstream calls will be unauthenticated",
			zap.String("provider", s.cfg.LLM.Provider))
	}

	var provider llm.Provider = openaicompat.New(openaicompat.Config{
		ProviderName: s.cfg.LLM.Provider,
		APIKey:       s.cfg.LLM.APIKey,
		BaseURL:      s.cfg.LLM.BaseURL,
		DefaultModel: s.cfg.Chat.Model,
		Timeout:      s.cfg.LLM.Timeout,
	}, s.logger)

	retry := providers.DefaultRetryConfig()
	retry.MaxRetries = s.cfg.LLM.MaxRetries
	if s.cfg.LLM.RetryInitialDelay > 0 {
		retry.InitialDelay = s.cfg.LLM.RetryInitialDelay
	}
	if s.cfg.LLM.RetryMaxDelay > 0 {
		retry.MaxDelay = s.cfg.LLM.RetryMaxDelay
	}
	provider = providers.NewRetryableProvider(provider, retry, s.logger)
	provider = metrics.InstrumentProvider(provider, s.metricsCollector)

	return llm.NewProviderOpener(provider)
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", s.pool.Ping))
	}
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("redis", s.cache.Ping))
	}

	turnMetrics, err := telemetry.NewTurnMetrics(s.telemetry.Meter(instrumentationName))
	if err != nil {
		return err
	}

	controller := streaming.NewController(s.newOpener(),
		streaming.WithConfig(streaming.Config{
			Model:            s.cfg.Chat.Model,
			MaxTokens:        s.cfg.Chat.MaxTokens,
			Temperature:      float32(s.cfg.Chat.Temperature),
			MaxHistoryTokens: s.cfg.Chat.MaxHistoryTokens,
		}),
		streaming.WithStore(s.store),
		streaming.WithMetrics(telemetry.Combine(s.metricsCollector, turnMetrics)),
		streaming.WithTracer(s.telemetry.Tracer(instrumentationName)),
		streaming.WithLogger(s.logger),
	)

	s.chatHandler = handlers.NewChatHandler(s.store, controller, s.logger,
		handlers.WithDefaultMode(s.cfg.Chat.DefaultMode),
		handlers.WithMaxInputChars(s.cfg.Chat.MaxInputChars),
		handlers.WithOriginPatterns(s.cfg.Server.CORSAllowedOrigins...),
		handlers.WithConnMetrics(s.metricsCollector),
	)

	s.logger.Info("Handlers initialized",
		zap.String("provider", s.cfg.LLM.Provider),
		zap.String("model", s.cfg.Chat.Model),
		zap.String("default_mode", s.cfg.Chat.DefaultMode),
	)
	return nil
}

// initReloader 注册热加载回调，只有日志级别可在运行时生效
func (s *Server) initReloader(ctx context.Context) error {
	if s.reloader == nil {
		return nil
	}

	s.reloader.OnReload(func(old, updated *config.Config) {
		if old.Log.Level != updated.Log.Level {
			s.level.SetLevel(parseLevel(updated.Log.Level))
			s.logger.Info("Log level changed",
				zap.String("from", old.Log.Level),
				zap.String("to", updated.Log.Level))
		}
		if old.Server.HTTPPort != updated.Server.HTTPPort || old.Server.MetricsPort != updated.Server.MetricsPort {
			s.logger.Warn("Server ports changed, restart required to apply")
		}
	})

	return s.reloader.Start(ctx)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 对话 API
	mux.HandleFunc("POST /api/v1/chats/{chatID}/messages", s.chatHandler.HandleSendMessage)
	mux.HandleFunc("GET /api/v1/chats/{chatID}", s.chatHandler.HandleGetChat)
	mux.HandleFunc("GET /api/v1/chats/{chatID}/ws", s.chatHandler.HandleWebSocket)

	// 构建中间件链
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.telemetry.Tracer(instrumentationName)),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
	}
	if s.cfg.JWT.Secret != "" {
		middlewares = append(middlewares, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	}
	middlewares = append(middlewares,
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
	handler := Chain(mux, middlewares...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown(context.Background())
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务，可重复调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 1. 停止配置监听
	if s.reloader != nil {
		if err := s.reloader.Stop(); err != nil {
			s.logger.Error("Config reloader shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭 HTTP 服务器，进行中的轮次在超时后被取消
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 停止限流清理等后台 goroutine
	if s.bgCancel != nil {
		s.bgCancel()
	}

	// 5. 关闭存储
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database pool shutdown error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Cache shutdown error", zap.Error(err))
		}
	}

	// 6. 刷新遥测数据
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
