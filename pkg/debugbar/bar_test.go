package debugbar

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/debugbar-collector/pkg/collector"
	"github.com/debugbar-collector/pkg/config"
	"github.com/debugbar-collector/pkg/metrics"
	"github.com/debugbar-collector/pkg/requestid"
	"github.com/debugbar-collector/pkg/storage"
)

var t0 = time.Date(2024, 3, 1, 10, 30, 0, 500_000_000, time.UTC)

// staticCollector 返回固定值并记录调用次数
type staticCollector struct {
	name  string
	value any
	calls int
}

func (c *staticCollector) Name() string { return c.name }
func (c *staticCollector) Collect() any {
	c.calls++
	return c.value
}

// failingStorage Save 总是失败，其余操作委托给内存存储
type failingStorage struct {
	*storage.MemoryStorage
	err error
}

func (s *failingStorage) Save(context.Context, string, storage.Dataset) error { return s.err }

func fixedIDs(ids ...string) requestid.Generator {
	i := 0
	return requestid.GeneratorFunc(func() string {
		id := ids[i%len(ids)]
		i++
		return id
	})
}

func newTestBar(opts ...Option) *Bar {
	base := []Option{
		WithClock(clockwork.NewFakeClockAt(t0)),
		WithIDGenerator(fixedIDs("req1", "req2")),
	}
	return New(append(base, opts...)...)
}

func TestAddCollector(t *testing.T) {
	b := newTestBar()
	require.NoError(t, b.AddCollector(&staticCollector{name: "a"}))
	require.NoError(t, b.AddCollector(&staticCollector{name: "b"}))

	err := b.AddCollector(&staticCollector{name: "a"})
	assert.ErrorIs(t, err, ErrDuplicateName)
	assert.ErrorIs(t, err, ErrConfiguration)

	err = b.AddCollector(&staticCollector{name: "__meta"})
	assert.ErrorIs(t, err, ErrDuplicateName)

	assert.ErrorIs(t, b.AddCollector(&staticCollector{name: ""}), ErrConfiguration)
	assert.ErrorIs(t, b.AddCollector(nil), ErrConfiguration)
	assert.Panics(t, func() { b.MustAddCollector(&staticCollector{name: "b"}) })

	assert.True(t, b.HasCollector("a"))
	assert.False(t, b.HasCollector("zzz"))
	c, err := b.Collector("b")
	require.NoError(t, err)
	assert.Equal(t, "b", c.Name())
	_, err = b.Collector("zzz")
	assert.ErrorIs(t, err, ErrNotRegistered)

	names := []string{}
	for _, c := range b.Collectors() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"a", "b"}, names)

	// 返回的是副本
	list := b.Collectors()
	list[0] = nil
	assert.NotNil(t, b.Collectors()[0])
}

func TestAddManyDistinctCollectors(t *testing.T) {
	b := newTestBar()
	for i := 0; i < 50; i++ {
		require.NoError(t, b.AddCollector(&staticCollector{name: fmt.Sprintf("c%02d", i), value: i}))
	}
	data, err := b.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, data, 51)
	for i := 0; i < 50; i++ {
		assert.Equal(t, float64(i), data[fmt.Sprintf("c%02d", i)])
	}
}

func TestCollectDataset(t *testing.T) {
	b := newTestBar(WithRequest(httptest.NewRequest("POST", "/users?page=2", nil)))
	b.MustAddCollector(&staticCollector{name: "a", value: map[string]any{"x": 1}})
	b.MustAddCollector(&staticCollector{name: "b", value: map[string]any{"y": 2}})

	data, err := b.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": float64(1)}, data["a"])
	assert.Equal(t, map[string]any{"y": float64(2)}, data["b"])

	meta := storage.MetaOf(data)
	assert.Equal(t, "req1", meta["id"])
	assert.Equal(t, "2024-03-01 10:30:00", meta["datetime"])
	assert.InDelta(t, float64(t0.Unix())+0.5, meta["utime"], 1e-6)
	assert.Equal(t, "POST", meta["method"])
	assert.Equal(t, "/users?page=2", meta["uri"])
	assert.Equal(t, "192.0.2.1", meta["ip"])
}

func TestCollectCLIMeta(t *testing.T) {
	b := newTestBar()
	data, err := b.Collect(context.Background())
	require.NoError(t, err)
	meta := storage.MetaOf(data)
	assert.Equal(t, "CLI", meta["method"])
	assert.NotEmpty(t, meta["ip"])
	assert.NotNil(t, meta["uri"])
}

func TestDataIsMemoized(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(t0)
	a := &staticCollector{name: "a", value: "v"}
	b := New(WithClock(clock), WithIDGenerator(fixedIDs("req1", "req2")))
	b.MustAddCollector(a)

	first, err := b.Data(ctx)
	require.NoError(t, err)
	assert.True(t, b.HasData())
	clock.Advance(time.Minute)
	second, err := b.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, a.calls)

	// 显式 Collect 重新收集，请求ID保持不变
	third, err := b.Collect(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, a.calls)
	assert.Equal(t, "req1", storage.MetaOf(third)["id"])
	assert.NotEqual(t, storage.MetaOf(first)["utime"], storage.MetaOf(third)["utime"])
	assert.Equal(t, "req1", b.CurrentRequestID())
}

func TestCurrentRequestIDIsStable(t *testing.T) {
	b := newTestBar()
	id := b.CurrentRequestID()
	assert.Equal(t, "req1", id)
	assert.Equal(t, id, b.CurrentRequestID())
	data, err := b.Data(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, storage.MetaOf(data)["id"])
}

func TestCollectSanitizesStrings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	b := newTestBar(WithLogger(zap.New(core)))
	b.MustAddCollector(&staticCollector{name: "bin", value: map[string]any{"raw": "ok\xffend", "list": []string{"\xc3"}}})

	data, err := b.Collect(context.Background())
	require.NoError(t, err)
	section := data["bin"].(map[string]any)
	assert.Equal(t, "ok\uFFFDend", section["raw"])
	assert.Equal(t, []any{"\uFFFD"}, section["list"])
	assert.Equal(t, 1, logs.FilterMessage("invalid utf-8 replaced in dataset").Len())
}

func TestCollectPersists(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryStorage()
	b := newTestBar(WithStorage(s))
	b.MustAddCollector(&staticCollector{name: "a", value: "v"})

	data, err := b.Collect(ctx)
	require.NoError(t, err)
	assert.True(t, b.IsDataPersisted())
	stored, err := s.Get(ctx, "req1")
	require.NoError(t, err)
	assert.Equal(t, data, stored)
	assert.Same(t, s, b.Storage())
}

func TestStorageAndDriverAccessors(t *testing.T) {
	b := newTestBar()
	assert.Nil(t, b.Storage())

	d := newFakeDriver(false)
	b.SetHTTPDriver(d)
	assert.Same(t, d, b.HTTPDriver())
}

func TestPersistPolicy(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")

	t.Run("best effort", func(t *testing.T) {
		reg := metrics.NewPromRegistry(nil)
		m := metrics.NewBarMetrics(metrics.NewMetricFactory(reg))
		core, logs := observer.New(zapcore.WarnLevel)
		b := newTestBar(
			WithStorage(&failingStorage{MemoryStorage: storage.NewMemoryStorage(), err: boom}),
			WithLogger(zap.New(core)),
			WithMetrics(m),
		)
		b.MustAddCollector(&staticCollector{name: "a", value: "v"})
		data, err := b.Collect(ctx)
		require.NoError(t, err)
		assert.Equal(t, "v", data["a"])
		assert.False(t, b.IsDataPersisted())
		assert.Equal(t, 1, logs.FilterMessage("persist dataset failed").Len())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrors.WithLabelValues("save")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Datasets))
	})

	t.Run("strict", func(t *testing.T) {
		cfg := config.NewDefaultBarConfig()
		cfg.PersistPolicy = config.PersistStrict
		b := newTestBar(WithConfig(cfg), WithStorage(&failingStorage{MemoryStorage: storage.NewMemoryStorage(), err: boom}))
		b.MustAddCollector(&staticCollector{name: "a", value: "v"})
		data, err := b.Collect(ctx)
		assert.ErrorIs(t, err, storage.ErrStorage)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, "v", data["a"])

		// 数据集仍被保留
		again, err := b.Data(ctx)
		require.NoError(t, err)
		assert.Equal(t, data, again)
	})
}

func TestCollectorOptionsShareFormatterAndClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	b := New(WithClock(clock))
	tc := collector.NewTimeDataCollector(time.Time{}, b.CollectorOptions()...)
	assert.Equal(t, collector.Seconds(t0), tc.RequestStartTime())
	assert.Same(t, b.Formatter(), tc.Formatter())
}
