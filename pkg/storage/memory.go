package storage

import (
	"context"
	"sync"
)

// MemoryStorage 进程内存储，测试与单进程演示使用
// 保存与读取时都做深拷贝，调用方持有的数据与已存记录互不影响
type MemoryStorage struct {
	mu    sync.RWMutex
	order []string
	data  map[string]Dataset
}

// NewMemoryStorage 创建内存存储
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]Dataset)}
}

func (s *MemoryStorage) Save(_ context.Context, id string, data Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[id]; !ok {
		s.order = append(s.order, id)
	}
	s.data[id] = cloneValue(data).(map[string]any)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, id string) (Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneValue(data).(map[string]any), nil
}

func (s *MemoryStorage) Find(_ context.Context, filters map[string]string, max, offset int) ([]Meta, error) {
	s.mu.RLock()
	metas := make([]Meta, 0, len(s.order))
	for _, id := range s.order {
		if m := MetaOf(s.data[id]); m != nil {
			metas = append(metas, cloneValue(m).(map[string]any))
		}
	}
	s.mu.RUnlock()
	return FilterSortPaginate(metas, filters, max, offset), nil
}

func (s *MemoryStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.data = make(map[string]Dataset)
	return nil
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any(nil)
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		if val == nil {
			return []any(nil)
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}
