package bridge

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"

	"github.com/debugbar-collector/pkg/collector"
)

func TestZapCore(t *testing.T) {
	msgs := collector.NewMessagesCollector("")
	base, logs := observer.New(zapcore.DebugLevel)
	l := Tee(zap.New(base), msgs, zapcore.InfoLevel)

	l.Debug("dropped")
	l.Info("user {user} logged in", zap.String("user", "alice"), zap.Int("attempt", 2))
	l.Named("db").With(zap.String("table", "users")).Warn("slow query")

	assert.Equal(t, 3, logs.Len())
	got := msgs.Messages()
	require.Len(t, got, 2)
	assert.Equal(t, `user alice logged in {"attempt":2}`, got[0].Message)
	assert.Equal(t, collector.LevelInfo, got[0].Label)
	assert.Equal(t, `[db] slow query {"table":"users"}`, got[1].Message)
	assert.Equal(t, collector.LevelWarning, got[1].Label)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, collector.LevelDebug, Label(zapcore.DebugLevel))
	assert.Equal(t, collector.LevelError, Label(zapcore.ErrorLevel))
	assert.Equal(t, collector.LevelCritical, Label(zapcore.PanicLevel))
	assert.Equal(t, collector.LevelEmergency, Label(zapcore.FatalLevel))
}

func TestSpanProcessor(t *testing.T) {
	tc := collector.NewTimeDataCollector(time.Time{})
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewSpanProcessor(tc)))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := tp.Tracer("test").Start(context.Background(), "load users")
	span.SetAttributes(attribute.String("db.system", "sqlite"), attribute.Int("rows", 3))
	span.SetStatus(codes.Error, "boom")
	span.End()

	measures := tc.Measures()
	require.Len(t, measures, 1)
	m := measures[0]
	assert.Equal(t, "load users", m.Label)
	assert.Equal(t, "otel", m.Collector)
	assert.Equal(t, "sqlite", m.Params["db.system"])
	assert.Equal(t, "3", m.Params["rows"])
	assert.Equal(t, "boom", m.Params["error"])
	assert.NotEmpty(t, m.Params["trace_id"])
	assert.GreaterOrEqual(t, m.Duration(), 0.0)
}

type ctxKey struct{}

func TestResolvingSpanProcessor(t *testing.T) {
	a := collector.NewTimeDataCollector(time.Time{})
	b := collector.NewTimeDataCollector(time.Time{})
	resolve := func(ctx context.Context) MeasureCollector {
		if c, ok := ctx.Value(ctxKey{}).(*collector.TimeDataCollector); ok {
			return c
		}
		return nil
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(NewResolvingSpanProcessor(resolve)))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tr := tp.Tracer("test")

	_, s1 := tr.Start(context.WithValue(context.Background(), ctxKey{}, a), "a")
	_, s2 := tr.Start(context.WithValue(context.Background(), ctxKey{}, b), "b")
	_, s3 := tr.Start(context.Background(), "orphan")
	s2.End()
	s1.End()
	s3.End()

	require.Len(t, a.Measures(), 1)
	assert.Equal(t, "a", a.Measures()[0].Label)
	require.Len(t, b.Measures(), 1)
	assert.Equal(t, "b", b.Measures()[0].Label)
}

func TestTraceableDB(t *testing.T) {
	ctx := context.Background()
	raw, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	defer raw.Close()
	db := NewTraceableDB(raw)

	_, err = db.ExecContext(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO users (name) VALUES (?), (?)", "alice", "bob")
	require.NoError(t, err)

	stmt, err := db.PrepareContext(ctx, "UPDATE users SET name = ? WHERE id = ?")
	require.NoError(t, err)
	defer stmt.Close()
	_, err = stmt.ExecContext(ctx, "carol", 1)
	require.NoError(t, err)

	var name string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT name FROM users WHERE id = ?", 1).Scan(&name))
	assert.Equal(t, "carol", name)

	_, err = db.ExecContext(ctx, "INSERT INTO missing VALUES (1)")
	require.Error(t, err)

	stmts := db.ExecutedStatements()
	require.Len(t, stmts, 5)
	assert.Equal(t, int64(2), stmts[1].RowCount())
	assert.Equal(t, "INSERT INTO users (name) VALUES ('alice'), ('bob')", stmts[1].SQLWithParams("'"))
	assert.Equal(t, stmt.ID(), stmts[2].PreparedID)
	assert.Equal(t, "stmt-1", stmts[2].PreparedID)
	assert.Equal(t, int64(1), stmts[2].RowCount())
	assert.False(t, stmts[4].IsSuccess())
	assert.True(t, errors.Is(stmts[4].Err(), err))

	sc := collector.NewStatementCollector(nil)
	sc.AddConnection(db, "default")
	data := sc.Collect().(map[string]any)
	assert.EqualValues(t, 5, data["nb_statements"])
	assert.EqualValues(t, 1, data["nb_failed_statements"])
}
