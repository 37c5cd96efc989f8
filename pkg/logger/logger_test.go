package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/debugbar-collector/pkg/config"
)

// mockFatalHook 捕获 fatal 日志（不退出进程）
type mockFatalHook struct {
	called bool
}

func (h *mockFatalHook) Hook(e zapcore.Entry) error {
	if e.Level == zapcore.FatalLevel {
		h.called = true
	}
	return nil
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DBG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("bogus"))
}

func TestBuildWritesJSONFile(t *testing.T) {
	var console, file bytes.Buffer
	cfg := config.ZapLogConfig{Level: "info", Format: "json"}
	l := build(cfg, &console, &file)

	l.Debug("hidden")
	l.Info("dataset saved", zap.String("id", "abc"))
	require.NoError(t, l.Sync())

	lines := strings.Split(strings.TrimSpace(file.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "dataset saved", entry["msg"])
	assert.Equal(t, "abc", entry["id"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, console.String(), "dataset saved")
}

func TestNewCreatesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(config.ZapLogConfig{Level: "debug", Format: "json", Path: dir, MaxSize: 1, MaxAge: 1})
	require.NoError(t, err)
	l.Info("hello")
	_ = l.Sync()
}

func TestGlobalLogger(t *testing.T) {
	assert.NotNil(t, L())

	var file bytes.Buffer
	hook := &mockFatalHook{}
	SetLogger(build(config.ZapLogConfig{Level: "debug"}, &bytes.Buffer{}, &file).
		WithOptions(zap.Hooks(hook.Hook), zap.WithFatalHook(zapcore.WriteThenPanic)))
	defer SetLogger(nil)

	Named("storage").Info("opened")
	assert.Contains(t, file.String(), `"component":"storage"`)

	// WriteThenPanic 代替 os.Exit
	assert.Panics(t, func() { L().Fatal("fatal msg") })
	assert.True(t, hook.called)
}
