package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	jsonExt = ".json"
	zstExt  = ".json.zst"
)

// zstd 编解码器可并发复用
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

// FileStorage 每个数据集一个 JSON 文件（可选 zstd 压缩）
type FileStorage struct {
	dir      string
	compress bool
}

// NewFileStorage 创建文件存储，目录不存在时自动创建
func NewFileStorage(dir string, compress bool) (*FileStorage, error) {
	if dir == "" {
		return nil, errors.New("file storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storageErr("create directory "+dir, err)
	}
	return &FileStorage{dir: dir, compress: compress}, nil
}

func (s *FileStorage) filename(id string, compressed bool) string {
	if compressed {
		return filepath.Join(s.dir, id+zstExt)
	}
	return filepath.Join(s.dir, id+jsonExt)
}

func (s *FileStorage) Save(_ context.Context, id string, data Dataset) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode dataset %s: %w", id, err)
	}
	if s.compress {
		raw = zstdEncoder.EncodeAll(raw, nil)
	}
	// 同一 id 只保留一种格式
	_ = os.Remove(s.filename(id, !s.compress))
	if err := os.WriteFile(s.filename(id, s.compress), raw, 0o644); err != nil {
		return storageErr("write "+id, err)
	}
	return nil
}

func (s *FileStorage) Get(_ context.Context, id string) (Dataset, error) {
	if err := ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	data, err := s.read(s.filename(id, s.compress))
	if errors.Is(err, fs.ErrNotExist) {
		data, err = s.read(s.filename(id, !s.compress))
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *FileStorage) read(name string) (Dataset, error) {
	raw, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, storageErr("read "+name, err)
	}
	if strings.HasSuffix(name, zstExt) {
		raw, err = zstdDecoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, storageErr("zstd decompress "+name, err)
		}
	}
	var data Dataset
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, storageErr("decode "+name, err)
	}
	return data, nil
}

func (s *FileStorage) Find(_ context.Context, filters map[string]string, max, offset int) ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, storageErr("list "+s.dir, err)
	}
	metas := make([]Meta, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, jsonExt) || strings.HasSuffix(name, zstExt)) {
			continue
		}
		data, err := s.read(filepath.Join(s.dir, name))
		if err != nil {
			// 并发 Clear 删除的文件直接跳过
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if m := MetaOf(data); m != nil {
			metas = append(metas, m)
		}
	}
	return FilterSortPaginate(metas, filters, max, offset), nil
}

func (s *FileStorage) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return storageErr("list "+s.dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, jsonExt) || strings.HasSuffix(name, zstExt)) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return storageErr("remove "+name, err)
		}
	}
	return nil
}
