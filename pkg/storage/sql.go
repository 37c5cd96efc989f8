package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqlColumns 元信息字段到数据表列的映射（仅文本列可在 SQL 中直接过滤）
var sqlColumns = map[string]string{
	"datetime": "meta_datetime",
	"uri":      "meta_uri",
	"ip":       "meta_ip",
	"method":   "meta_method",
}

// SQLStorage 基于 database/sql 的关系型存储，占位符使用 ?
type SQLStorage struct {
	db    *sql.DB
	table string
}

// NewSQLStorage 创建关系型存储并确保数据表存在
func NewSQLStorage(ctx context.Context, db *sql.DB, table string) (*SQLStorage, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("sql storage: invalid table name %q", table)
	}
	s := &SQLStorage{db: db, table: table}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStorage) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	meta_utime REAL,
	meta_datetime TEXT,
	meta_uri TEXT,
	meta_ip TEXT,
	meta_method TEXT
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_utime ON %[1]s (meta_utime)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return storageErr("migrate "+s.table, err)
		}
	}
	return nil
}

// DB 底层连接，供语句采集器等复用
func (s *SQLStorage) DB() *sql.DB {
	return s.db
}

func (s *SQLStorage) Save(ctx context.Context, id string, data Dataset) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", id, err)
	}
	meta := MetaOf(data)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id); err != nil {
		return storageErr("save "+id, err)
	}
	_, err = tx.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, data, meta_utime, meta_datetime, meta_uri, meta_ip, meta_method) VALUES (?, ?, ?, ?, ?, ?, ?)", s.table),
		id, string(raw), MetaTime(meta), metaText(meta, "datetime"), metaText(meta, "uri"), metaText(meta, "ip"), metaText(meta, "method"),
	)
	if err != nil {
		return storageErr("save "+id, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit "+id, err)
	}
	return nil
}

func metaText(meta Meta, key string) any {
	v, ok := meta[key]
	if !ok || v == nil {
		return nil
	}
	return MetaString(v)
}

func (s *SQLStorage) Get(ctx context.Context, id string) (Dataset, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", s.table), id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get "+id, err)
	}
	var data Dataset
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, storageErr("decode "+id, err)
	}
	return data, nil
}

// Find 精确匹配的文本字段下推到 SQL；glob 模式与 utime 在内存中匹配，此时分页也在内存中完成
func (s *SQLStorage) Find(ctx context.Context, filters map[string]string, max, offset int) ([]Meta, error) {
	var (
		where    []string
		args     []any
		residual = map[string]string{}
	)
	for k, v := range filters {
		col, ok := sqlColumns[k]
		if ok && !strings.ContainsAny(v, `*?[\`) {
			where = append(where, col+" = ?")
			args = append(args, v)
			continue
		}
		residual[k] = v
	}

	query := fmt.Sprintf("SELECT data FROM %s", s.table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY meta_utime DESC"
	pushdown := len(residual) == 0
	if pushdown && max >= 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, max, max0(offset))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("find", err)
	}
	defer rows.Close()

	metas := []Meta{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, storageErr("scan", err)
		}
		var data Dataset
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return nil, storageErr("decode", err)
		}
		if m := MetaOf(data); m != nil {
			metas = append(metas, m)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("find", err)
	}
	if pushdown {
		if max < 0 {
			return Paginate(metas, max, offset), nil
		}
		return metas, nil
	}
	return FilterSortPaginate(metas, residual, max, offset), nil
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (s *SQLStorage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", s.table)); err != nil {
		return storageErr("clear", err)
	}
	return nil
}
