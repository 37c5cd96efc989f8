package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/collector"
	"github.com/debugbar-collector/pkg/config"
	"github.com/debugbar-collector/pkg/debugbar"
	"github.com/debugbar-collector/pkg/httpdriver"
	"github.com/debugbar-collector/pkg/metrics"
	"github.com/debugbar-collector/pkg/middleware"
	"github.com/debugbar-collector/pkg/openhandler"
	"github.com/debugbar-collector/pkg/renderer"
	"github.com/debugbar-collector/pkg/storage"
)

const (
	defaultShutdownTimeout = 5 * time.Second
	sessionTTL             = 30 * time.Minute
)

// Server HTTP服务实例，封装核心依赖和配置
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	server    *http.Server
	registers metrics.Registers
	mux       *customMux

	storage    storage.Storage
	barMetrics *metrics.BarMetrics
	demo       *demo
	listener   net.Listener
}

// Deps 服务运行依赖，由命令层创建并负责关闭
type Deps struct {
	Storage   storage.Storage
	Registers metrics.Registers
	DB        *sql.DB
	Tracer    trace.Tracer
}

// statusWriter 包装ResponseWriter，捕获状态码
type statusWriter struct {
	http.ResponseWriter
	status int
}

// customMux 自定义Mux，兼容原生用法并记录路由
type customMux struct {
	http.ServeMux
	routes []string
	mu     sync.Mutex
}

// Handle 重写Handle，注册路由时记录路径
func (m *customMux) Handle(pattern string, handler http.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, pattern)
	m.ServeMux.Handle(pattern, handler)
}

// HandleFunc 重写HandleFunc
func (m *customMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	m.Handle(pattern, http.HandlerFunc(handler))
}

// Routes 已注册的路由
func (m *customMux) Routes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.routes...)
}

// NewHTTPServer 创建HTTP服务实例
func NewHTTPServer(cfg *config.Config, logger *zap.Logger, deps Deps) (*Server, error) {
	if deps.Registers == nil {
		deps.Registers = metrics.NewPromRegistry(nil)
	}
	factory := metrics.NewMetricFactory(deps.Registers)
	srv := &Server{
		cfg:        cfg,
		logger:     logger,
		registers:  deps.Registers,
		mux:        &customMux{},
		storage:    deps.Storage,
		barMetrics: metrics.NewBarMetrics(factory),
		demo:       &demo{db: deps.DB, tracer: deps.Tracer},
	}

	var opener http.Handler
	if deps.Storage != nil {
		h, err := openhandler.New(deps.Storage,
			openhandler.WithLogger(logger.Named("openhandler")),
			openhandler.WithRequestsCounter(factory.NewOpenHandlerRequestsTotal()))
		if err != nil {
			return nil, err
		}
		opener = h
	}

	// 注册核心端点
	srv.registerEndpoints(opener)

	mw := middleware.New(srv.newBar,
		middleware.WithSessions(httpdriver.NewMemorySessionStore(sessionTTL, nil)),
		middleware.WithOpenHandlerHeaders(cfg.Bar.UseOpenHandler && deps.Storage != nil),
		middleware.WithHeadAssets(true),
		middleware.WithRendererOptions(
			renderer.WithVariableName(cfg.Bar.VariableName),
			renderer.WithOpenHandlerURL(srv.openHandlerURL()),
			renderer.WithAjaxHandler(true, true, true, true),
			renderer.WithLogger(logger.Named("renderer")),
		),
		middleware.WithSkipper(middleware.SkipPrefixes(cfg.Bar.OpenHandlerURL, "/metrics", "/health")),
		middleware.WithLogger(logger.Named("middleware")),
	)

	srv.server = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.logMiddleware(mw.Handler(srv.mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return srv, nil
}

// Handler 完整的处理链（日志 → debugbar 中间件 → 路由）
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) openHandlerURL() string {
	if s.storage == nil {
		return ""
	}
	return s.cfg.Bar.OpenHandlerURL
}

// newBar 每个请求一个 Bar，注册全部内置采集器
func (s *Server) newBar(r *http.Request) (*debugbar.Bar, error) {
	bar := debugbar.New(
		debugbar.WithConfig(s.cfg.Bar),
		debugbar.WithStorage(s.storage),
		debugbar.WithRequest(r),
		debugbar.WithLogger(s.logger.Named("debugbar")),
		debugbar.WithMetrics(s.barMetrics),
	)
	opts := bar.CollectorOptions()

	timeCollector := collector.NewTimeDataCollector(time.Now(), opts...)
	messages := collector.NewMessagesCollector("messages", opts...)
	exceptions := collector.NewExceptionsCollector(opts...)
	exceptions.SetChainExceptions(true)
	statements := collector.NewStatementCollector(timeCollector, opts...)

	for _, c := range []collector.Collector{
		collector.NewRuntimeCollector(opts...),
		messages,
		collector.NewRequestDataCollector(r, collector.DefaultHiddenHeaders, opts...),
		// sql 在 time 之前收集，语句耗时才能出现在同一个时间线里
		statements,
		timeCollector,
		collector.NewMemoryCollector(nil, opts...),
		exceptions,
		collector.NewConfigCollector(s.configView(), "config", opts...),
	} {
		if err := bar.AddCollector(c); err != nil {
			return nil, err
		}
	}
	return bar, nil
}

// configView 对外展示的配置，不包含连接串
func (s *Server) configView() map[string]any {
	return map[string]any{
		"server.addr":        s.cfg.Server.Addr,
		"bar.header_name":    s.cfg.Bar.HeaderName,
		"bar.persist_policy": s.cfg.Bar.PersistPolicy,
		"bar.open_handler":   s.cfg.Bar.UseOpenHandler,
		"storage.driver":     s.cfg.Storage.Driver,
		"log.level":          s.cfg.Log.Level,
	}
}

// logMiddleware 统一日志记录
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		s.logger.Info(
			"HTTP request",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// registerEndpoints 注册核心路由
func (s *Server) registerEndpoints(opener http.Handler) {
	s.mux.HandleFunc("GET /{$}", s.index)
	s.demo.register(s.mux)

	if opener != nil {
		s.mux.Handle(s.cfg.Bar.OpenHandlerURL, opener)
	}

	// /metrics 端点
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registers.Gatherer(), promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(s.logger),
	}))

	// /health 端点
	s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
}

// WriteHeader 捕获状态码
func (w *statusWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Start 启动HTTP服务（非阻塞）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Server.Addr, err)
	}
	s.listener = ln
	s.logger.Info("HTTP server started", zap.String("addr", ln.Addr().String()), zap.Strings("routes", s.mux.Routes()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped unexpectedly", zap.Error(err))
		}
	}()
	return nil
}

// Addr 实际监听地址，Start 之前为空
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown 优雅关闭，ctx 无截止时间时使用默认超时
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown HTTP server: %w", err)
	}
	s.logger.Info("HTTP server shutdown successfully")
	return nil
}
