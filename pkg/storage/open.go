package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open 按配置创建存储后端，driver=none 时返回 nil 存储
// 返回的 io.Closer 负责释放数据库等资源
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (Storage, io.Closer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case "", "none":
		return nil, nopCloser{}, nil
	case "memory":
		return NewMemoryStorage(), nopCloser{}, nil
	case "file":
		s, err := NewFileStorage(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case "badger":
		s, err := OpenBadger(BadgerConfig{Path: cfg.Path, InMemory: cfg.InMemory, SyncWrites: !cfg.InMemory, Logger: logger})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case "sql":
		db, err := sql.Open(cfg.SQLDriver, cfg.DSN)
		if err != nil {
			return nil, nil, storageErr("open "+cfg.SQLDriver, err)
		}
		s, err := NewSQLStorage(ctx, db, cfg.Table)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
