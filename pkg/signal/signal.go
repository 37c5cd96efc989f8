package signal

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 5 * time.Second

// ShutdownFunc 单个关闭步骤
type ShutdownFunc func(ctx context.Context) error

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或 ctx 结束，然后在 timeout 内按顺序执行关闭步骤
// 某一步失败不会中断后续步骤，所有错误合并返回
func WaitForShutdown(ctx context.Context, logger *zap.Logger, timeout time.Duration, fns ...ShutdownFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()
	if ctx.Err() != nil {
		logger.Info("context done, shutting down", zap.Error(ctx.Err()))
	} else {
		logger.Info("received shutdown signal")
	}

	// 关闭阶段使用独立的超时 context
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	for i, fn := range fns {
		if err := fn(shutdownCtx); err != nil {
			logger.Error("shutdown step failed", zap.Int("step", i), zap.Error(err))
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	logger.Info("shutdown completed")
	return nil
}
