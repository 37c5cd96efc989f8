package debugbar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debugbar-collector/pkg/config"
	"github.com/debugbar-collector/pkg/storage"
)

func TestStackDataRequiresSession(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, newTestBar().StackData(ctx), ErrNoHTTPDriver)

	b := newTestBar(WithHTTPDriver(newFakeDriver(false)))
	err := b.StackData(ctx)
	assert.ErrorIs(t, err, ErrNoSession)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.False(t, b.HasStackedData())
	_, err = b.StackedData(ctx, true)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStackDataWithoutStorage(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver(true)

	first := newTestBar(WithHTTPDriver(d))
	first.MustAddCollector(&staticCollector{name: "a", value: "redirect"})
	require.NoError(t, first.StackData(ctx))
	require.NoError(t, first.StackData(ctx))
	assert.True(t, first.HasStackedData())

	next := New(WithHTTPDriver(d), WithIDGenerator(fixedIDs("req9")))
	stacked, err := next.StackedData(ctx, true)
	require.NoError(t, err)
	require.Len(t, stacked, 1)
	assert.Equal(t, "req1", stacked[0].ID)
	assert.Equal(t, "redirect", stacked[0].Data["a"])

	// 读取一次后清空
	assert.False(t, next.HasStackedData())
	stacked, err = next.StackedData(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, stacked)
}

func TestStackDataKeepsOrderAndCanPeek(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver(true)
	for _, id := range []string{"r1", "r2", "r3"} {
		b := New(WithHTTPDriver(d), WithIDGenerator(fixedIDs(id)))
		require.NoError(t, b.StackData(ctx))
	}
	reader := New(WithHTTPDriver(d))
	stacked, err := reader.StackedData(ctx, false)
	require.NoError(t, err)
	ids := []string{}
	for _, e := range stacked {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)
	assert.True(t, reader.HasStackedData())
}

func TestStackDataWithStorageStoresReference(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver(true)
	s := storage.NewMemoryStorage()

	b := newTestBar(WithHTTPDriver(d), WithStorage(s))
	b.MustAddCollector(&staticCollector{name: "a", value: "persisted"})
	require.NoError(t, b.StackData(ctx))

	raw := d.session[config.NewDefaultBarConfig().StackNamespace].([]StackEntry)
	require.Len(t, raw, 1)
	assert.Nil(t, raw[0].Data)

	next := New(WithHTTPDriver(d), WithStorage(s))
	stacked, err := next.StackedData(ctx, true)
	require.NoError(t, err)
	require.Len(t, stacked, 1)
	assert.Equal(t, "persisted", stacked[0].Data["a"])
}

func TestStackDataAlwaysUseSession(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver(true)
	cfg := config.NewDefaultBarConfig()
	cfg.StackAlwaysUseSession = true
	cfg.StackNamespace = "custom"

	b := newTestBar(WithConfig(cfg), WithHTTPDriver(d), WithStorage(storage.NewMemoryStorage()))
	require.NoError(t, b.StackData(ctx))
	raw := d.session["custom"].([]StackEntry)
	require.Len(t, raw, 1)
	assert.NotNil(t, raw[0].Data)
}

func TestStackedDataSkipsMissingFromStorage(t *testing.T) {
	ctx := context.Background()
	d := newFakeDriver(true)
	d.session["PHPDEBUGBAR_STACK_DATA"] = []StackEntry{{ID: "gone"}, {ID: "inline", Data: storage.Dataset{"a": "x"}}}

	b := New(WithHTTPDriver(d), WithStorage(storage.NewMemoryStorage()))
	stacked, err := b.StackedData(ctx, true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	require.Len(t, stacked, 1)
	assert.Equal(t, "inline", stacked[0].ID)
	assert.NotContains(t, d.session, "PHPDEBUGBAR_STACK_DATA")
}
