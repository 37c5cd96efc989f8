package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

var (
	dataPrefix = []byte("data/")
	metaPrefix = []byte("meta/")
)

// BadgerConfig BadgerDB 存储配置
type BadgerConfig struct {
	// Path 数据目录，InMemory 时忽略
	Path string
	// InMemory 纯内存模式，测试使用
	InMemory bool
	// SyncWrites 每次写入同步落盘
	SyncWrites bool
	// Logger 为 nil 时关闭 badger 内部日志
	Logger *zap.Logger
}

// badgerLogger 将 badger 日志转接到 zap
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.sugar.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.sugar.Infof(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.sugar.Debugf(format, args...) }

// BadgerStorage 基于 BadgerDB 的键值存储
// 元信息单独存放在 meta/ 前缀下，Find 只需解码元信息
type BadgerStorage struct {
	db    *badger.DB
	owned bool
}

// OpenBadger 按配置打开 BadgerDB，返回的存储负责关闭数据库
func OpenBadger(cfg BadgerConfig) (*BadgerStorage, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger storage: path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, storageErr("create database directory "+cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{sugar: cfg.Logger.Named("badger").Sugar()})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storageErr("open badger database", err)
	}
	return &BadgerStorage{db: db, owned: true}, nil
}

// NewBadgerStorage 包装调用方已打开的数据库，Close 不会关闭它
func NewBadgerStorage(db *badger.DB) *BadgerStorage {
	return &BadgerStorage{db: db}
}

// Close 关闭自己打开的数据库
func (s *BadgerStorage) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func key(prefix []byte, id string) []byte {
	return append(append([]byte{}, prefix...), id...)
}

func (s *BadgerStorage) Save(_ context.Context, id string, data Dataset) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	raw, err := marshalCBOR(data)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", id, err)
	}
	meta, err := marshalCBOR(MetaOf(data))
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", id, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key(dataPrefix, id), raw); err != nil {
			return err
		}
		return txn.Set(key(metaPrefix, id), meta)
	})
	if err != nil {
		return storageErr("save "+id, err)
	}
	return nil
}

func (s *BadgerStorage) Get(_ context.Context, id string) (Dataset, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(dataPrefix, id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get "+id, err)
	}
	var data Dataset
	if err := unmarshalCBOR(raw, &data); err != nil {
		return nil, storageErr("decode "+id, err)
	}
	return data, nil
}

func (s *BadgerStorage) Find(_ context.Context, filters map[string]string, max, offset int) ([]Meta, error) {
	var metas []Meta
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: metaPrefix})
		defer it.Close()
		for it.Seek(metaPrefix); it.ValidForPrefix(metaPrefix); it.Next() {
			var m Meta
			if err := it.Item().Value(func(v []byte) error {
				return unmarshalCBOR(v, &m)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if m != nil {
				metas = append(metas, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("find", err)
	}
	return FilterSortPaginate(metas, filters, max, offset), nil
}

func (s *BadgerStorage) Clear(_ context.Context) error {
	if err := s.db.DropPrefix(dataPrefix, metaPrefix); err != nil {
		return storageErr("clear", err)
	}
	return nil
}
