package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/debugbar-collector/pkg/bridge"
	"github.com/debugbar-collector/pkg/collector"
	"github.com/debugbar-collector/pkg/middleware"
)

// demo 演示页面：每个请求产生日志、SQL、span 与错误，供调试栏展示
type demo struct {
	db     *sql.DB
	tracer trace.Tracer
}

func (d *demo) register(mux *customMux) {
	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer("demo")
	}
	mux.HandleFunc("GET /demo", d.page)
	mux.HandleFunc("GET /demo/api", d.api)
	mux.HandleFunc("GET /demo/redirect", d.redirect)
	mux.HandleFunc("GET /demo/error", d.fail)
}

// SeedDemo 创建演示数据表
func SeedDemo(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, email TEXT)",
		"DELETE FROM users",
		"INSERT INTO users (name, email) VALUES ('alice', 'alice@example.com'), ('bob', 'bob@example.com'), ('carol', NULL)",
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("seed demo: %w", err)
		}
	}
	return nil
}

// TimeCollector 从请求 context 中找到当前 Bar 的计时采集器，供 span 处理器使用
func TimeCollector(ctx context.Context) bridge.MeasureCollector {
	bar := middleware.FromContext(ctx)
	if bar == nil {
		return nil
	}
	c, err := bar.Collector("time")
	if err != nil {
		return nil
	}
	tc, ok := c.(*collector.TimeDataCollector)
	if !ok || tc == nil {
		return nil
	}
	return tc
}

// tools 当前请求可用的埋点工具
type tools struct {
	log        *zap.Logger
	db         *bridge.TraceableDB
	exceptions *collector.ExceptionsCollector
}

func (d *demo) tools(r *http.Request) tools {
	t := tools{log: zap.NewNop()}
	bar := middleware.FromContext(r.Context())
	if bar == nil {
		if d.db != nil {
			t.db = bridge.NewTraceableDB(d.db)
		}
		return t
	}
	if c, err := bar.Collector("messages"); err == nil {
		if sink, ok := c.(collector.MessageSink); ok {
			t.log = bridge.Tee(t.log, sink, zapcore.DebugLevel)
		}
	}
	if d.db != nil {
		t.db = bridge.NewTraceableDB(d.db)
		if c, err := bar.Collector("sql"); err == nil {
			if sc, ok := c.(*collector.StatementCollector); ok {
				sc.AddConnection(t.db, "default")
			}
		}
	}
	if c, err := bar.Collector("exceptions"); err == nil {
		t.exceptions, _ = c.(*collector.ExceptionsCollector)
	}
	return t
}

type user struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func (d *demo) users(ctx context.Context, t tools) ([]user, error) {
	ctx, span := d.tracer.Start(ctx, "load users")
	defer span.End()

	if t.db == nil {
		return nil, nil
	}
	rows, err := t.db.QueryContext(ctx, "SELECT id, name, email FROM users WHERE id > ? ORDER BY id", 0)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []user
	for rows.Next() {
		var u user
		var email sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &email); err != nil {
			return nil, err
		}
		u.Email = email.String
		out = append(out, u)
	}
	span.SetAttributes(attribute.Int("users", len(out)))
	t.log.Info("loaded {count} users", zap.Int("count", len(out)))
	return out, rows.Err()
}

func (d *demo) page(w http.ResponseWriter, r *http.Request) {
	t := d.tools(r)
	t.log.Debug("rendering demo page", zap.String("path", r.URL.Path))
	users, err := d.users(r.Context(), t)
	if err != nil {
		t.log.Error("load users failed", zap.Error(err))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="zh-CN">
<head><meta charset="UTF-8"><title>Debugbar Demo</title></head>
<body>
<h1>Users</h1>
<ul>`)
	for _, u := range users {
		_, _ = fmt.Fprintf(w, "<li>%s</li>", html.EscapeString(u.Name))
	}
	_, _ = fmt.Fprint(w, `</ul>
<button onclick="fetch('/demo/api')">AJAX</button>
<a href="/demo/redirect">redirect</a>
</body>
</html>`)
}

func (d *demo) api(w http.ResponseWriter, r *http.Request) {
	t := d.tools(r)
	users, err := d.users(r.Context(), t)
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(users)
}

func (d *demo) redirect(w http.ResponseWriter, r *http.Request) {
	d.tools(r).log.Warn("redirecting to {target}", zap.String("target", "/demo"))
	http.Redirect(w, r, "/demo", http.StatusFound)
}

func (d *demo) fail(w http.ResponseWriter, r *http.Request) {
	t := d.tools(r)
	if t.db != nil {
		if _, err := t.db.ExecContext(r.Context(), "SELECT * FROM missing_table"); err != nil {
			err = pkgerrors.Wrap(err, "demo query")
			if t.exceptions != nil {
				t.exceptions.AddError(err)
			}
			t.log.Error("demo failure", zap.Error(err))
		}
	}
	http.Error(w, "demo failure", http.StatusInternalServerError)
}

// index 根路径 / 显示 HTML 页面，包含可点击的链接
func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	open := ""
	if s.storage != nil {
		open = fmt.Sprintf(`<a href="%[1]s?op=find">%[1]s - 历史数据集</a>`, html.EscapeString(s.cfg.Bar.OpenHandlerURL))
	}
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="zh-CN">
<head>
	<meta charset="UTF-8">
	<title>Debugbar Collector</title>
	<style>
		body { font-family: Arial, sans-serif; margin: 40px; }
		a { display: block; margin: 8px 0; font-size: 18px; }
		code { background-color: #f0f0f0; padding: 2px 4px; }
	</style>
</head>
<body>
	<h1>Debugbar Collector Service</h1>
	<p>Storage: <code>%s</code></p>
	<h2>Available Endpoints:</h2>
	<a href="/demo">/demo - 演示页面</a>
	<a href="/demo/api">/demo/api - AJAX 数据</a>
	<a href="/demo/error">/demo/error - 错误示例</a>
	%s
	<a href="/health">/health - 健康检查</a>
	<a href="/metrics">/metrics - Prometheus 指标暴露</a>
</body>
</html>
`, html.EscapeString(s.cfg.Storage.Driver), open)
}
