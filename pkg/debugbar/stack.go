package debugbar

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/httpdriver"
	"github.com/debugbar-collector/pkg/storage"
)

// StackEntry 会话中堆叠的一个数据集；Data 为 nil 表示需要从存储按 ID 读取
type StackEntry struct {
	ID   string
	Data storage.Dataset
}

func (b *Bar) sessionDriver() (httpdriver.Driver, error) {
	d := b.HTTPDriver()
	if d == nil {
		return nil, ErrNoHTTPDriver
	}
	if !d.IsSessionStarted() {
		return nil, ErrNoSession
	}
	return d, nil
}

func (b *Bar) readStack(d httpdriver.Driver) []StackEntry {
	stack, _ := d.GetSessionValue(b.cfg.StackNamespace).([]StackEntry)
	return stack
}

// StackData 把当前数据集放入会话，供下一个请求（如重定向后的页面）展示
// 配置了存储且未要求总是放入会话时只记录ID；同一个ID重复堆叠时覆盖
func (b *Bar) StackData(ctx context.Context) error {
	d, err := b.sessionDriver()
	if err != nil {
		return err
	}

	b.mu.Lock()
	data, err := b.dataLocked(ctx)
	entry := StackEntry{ID: b.requestIDLocked()}
	if b.storage == nil || b.cfg.StackAlwaysUseSession || !b.persisted {
		entry.Data = data
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}

	stack := b.readStack(d)
	out := make([]StackEntry, 0, len(stack)+1)
	for _, e := range stack {
		if e.ID != entry.ID {
			out = append(out, e)
		}
	}
	out = append(out, entry)
	d.SetSessionValue(b.cfg.StackNamespace, out)
	return nil
}

// HasStackedData 会话中是否有堆叠的数据集；没有会话时返回 false
func (b *Bar) HasStackedData() bool {
	d, err := b.sessionDriver()
	if err != nil {
		return false
	}
	return len(b.readStack(d)) > 0
}

// StackedData 读取堆叠的数据集（先堆叠的在前），只有ID的条目从存储读取
// 读取失败的条目被跳过，错误合并后返回；del 为 true 时读取后清空会话中的列表
func (b *Bar) StackedData(ctx context.Context, del bool) ([]StackEntry, error) {
	d, err := b.sessionDriver()
	if err != nil {
		return nil, err
	}
	stack := b.readStack(d)
	if del {
		d.DeleteSessionValue(b.cfg.StackNamespace)
	}

	s := b.Storage()
	out := make([]StackEntry, 0, len(stack))
	var errs []error
	for _, e := range stack {
		if e.Data != nil {
			out = append(out, e)
			continue
		}
		if s == nil {
			errs = append(errs, fmt.Errorf("stacked dataset %s: %w", e.ID, ErrConfiguration))
			continue
		}
		data, err := s.Get(ctx, e.ID)
		if err != nil {
			b.metrics.StorageError("get")
			b.logger.Warn("resolve stacked dataset failed", zap.String("request_id", e.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("stacked dataset %s: %w", e.ID, err))
			continue
		}
		out = append(out, StackEntry{ID: e.ID, Data: data})
	}
	return out, errors.Join(errs...)
}
