package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWaitForShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	core, logs := observer.New(zapcore.InfoLevel)
	var order []int
	boom := errors.New("boom")
	err := WaitForShutdown(ctx, zap.New(core), time.Second,
		func(ctx context.Context) error {
			order = append(order, 1)
			// 外层 ctx 已取消，关闭阶段仍有可用的 context
			return ctx.Err()
		},
		func(context.Context) error {
			order = append(order, 2)
			return boom
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 1, logs.FilterMessage("shutdown step failed").Len())
	assert.Zero(t, logs.FilterMessage("shutdown completed").Len())
}

func TestWaitForShutdownTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForShutdown(ctx, nil, 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
