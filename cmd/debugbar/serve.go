package debugbar

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/debugbar-collector/cmd/server"
	"github.com/debugbar-collector/pkg/bridge"
	"github.com/debugbar-collector/pkg/logger"
	"github.com/debugbar-collector/pkg/metrics"
	"github.com/debugbar-collector/pkg/signal"
	"github.com/debugbar-collector/pkg/storage"
	"github.com/debugbar-collector/pkg/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo server with the toolbar, open handler, /metrics and /health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// 初始化日志
	log, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	util.PrintBanner(os.Stdout, util.BannerInfo{
		Name:    "debugbar",
		Version: Version,
		Addr:    cfg.Server.Addr,
		Storage: cfg.Storage.Driver,
	}, "ColorBlue")
	log.Info("configuration loaded", zap.String("path", cfgFile),
		zap.String("storage", cfg.Storage.Driver), zap.String("persist_policy", cfg.Bar.PersistPolicy))

	ctx := cmd.Context()

	// 初始化 Prometheus 注册器
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registers := metrics.NewPromRegistry(promRegistry)

	store, storeCloser, err := storage.Open(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("open storage failed: %w", err)
	}

	// 演示数据库：进程内 sqlite，单连接保证 :memory: 库在连接间共享
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		_ = storeCloser.Close()
		return fmt.Errorf("open demo database failed: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := server.SeedDemo(ctx, db); err != nil {
		_ = db.Close()
		_ = storeCloser.Close()
		return err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(bridge.NewResolvingSpanProcessor(server.TimeCollector)))
	otel.SetTracerProvider(tp)

	httpServer, err := server.NewHTTPServer(cfg, log, server.Deps{
		Storage:   store,
		Registers: registers,
		DB:        db,
		Tracer:    otel.Tracer("github.com/debugbar-collector/demo"),
	})
	if err != nil {
		_ = db.Close()
		_ = storeCloser.Close()
		return fmt.Errorf("create HTTP server failed: %w", err)
	}
	if err := httpServer.Start(); err != nil {
		_ = db.Close()
		_ = storeCloser.Close()
		return fmt.Errorf("start HTTP server failed: %w", err)
	}

	// 关闭顺序：HTTP服务 → tracer → 演示库 → 存储
	return signal.WaitForShutdown(ctx, log, signal.DefaultTimeout,
		httpServer.Shutdown,
		tp.Shutdown,
		func(context.Context) error { return db.Close() },
		func(context.Context) error { return storeCloser.Close() },
	)
}
