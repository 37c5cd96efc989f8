package bridge

import (
	"context"
	"database/sql"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/debugbar-collector/pkg/collector"
)

// TraceableDB 包装 *sql.DB，记录每条执行过的语句，实现 collector.StatementSource
type TraceableDB struct {
	collector.StatementLog

	db  *sql.DB
	seq atomic.Uint64
}

// NewTraceableDB 创建被追踪的连接
func NewTraceableDB(db *sql.DB) *TraceableDB {
	return &TraceableDB{db: db}
}

// DB 底层连接
func (t *TraceableDB) DB() *sql.DB { return t.db }

func (t *TraceableDB) begin(query string, args []any, preparedID string) *collector.TracedStatement {
	s := collector.NewTracedStatement(query, args, preparedID)
	s.Start(time.Time{}, 0)
	return s
}

func (t *TraceableDB) finish(s *collector.TracedStatement, err error, rows int64) {
	s.End(err, rows, time.Time{}, 0)
	t.AddStatement(s)
}

// ExecContext 执行语句并记录影响行数
func (t *TraceableDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.exec(ctx, t.db.ExecContext, query, "", args)
}

// QueryContext 查询不统计行数，rows 由调用方消费
func (t *TraceableDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	s := t.begin(query, args, "")
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.finish(s, err, 0)
	return rows, err
}

// QueryRowContext 错误延迟到 Scan，这里只记录执行耗时
func (t *TraceableDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	s := t.begin(query, args, "")
	row := t.db.QueryRowContext(ctx, query, args...)
	t.finish(s, row.Err(), 0)
	return row
}

// PrepareContext 预编译语句，之后每次执行都带上同一个 prepared ID
func (t *TraceableDB) PrepareContext(ctx context.Context, query string) (*TracedStmt, error) {
	stmt, err := t.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	id := "stmt-" + strconv.FormatUint(t.seq.Add(1), 10)
	return &TracedStmt{stmt: stmt, query: query, id: id, db: t}, nil
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (t *TraceableDB) exec(ctx context.Context, fn execFunc, query, preparedID string, args []any) (sql.Result, error) {
	s := t.begin(query, args, preparedID)
	res, err := fn(ctx, query, args...)
	var rows int64
	if err == nil {
		rows, _ = res.RowsAffected()
	}
	t.finish(s, err, rows)
	return res, err
}

// TracedStmt 被追踪的预编译语句
type TracedStmt struct {
	stmt  *sql.Stmt
	query string
	id    string
	db    *TraceableDB
}

// ID 预编译语句标识
func (s *TracedStmt) ID() string { return s.id }

func (s *TracedStmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	exec := func(ctx context.Context, _ string, args ...any) (sql.Result, error) {
		return s.stmt.ExecContext(ctx, args...)
	}
	return s.db.exec(ctx, exec, s.query, s.id, args)
}

func (s *TracedStmt) QueryContext(ctx context.Context, args ...any) (*sql.Rows, error) {
	ts := s.db.begin(s.query, args, s.id)
	rows, err := s.stmt.QueryContext(ctx, args...)
	s.db.finish(ts, err, 0)
	return rows, err
}

func (s *TracedStmt) Close() error { return s.stmt.Close() }
