package collector

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// ErrNotRegistered 按名称查找的采集器不存在
var ErrNotRegistered = errors.New("collector not registered")

// AggregatedCollector 合并多个采集器的列表结果
// mergeProperty 非空时取各结果中该键下的列表；sortKey 非空时按该字段排序
type AggregatedCollector struct {
	name          string
	mergeProperty string
	sortKey       string

	mu         sync.RWMutex
	order      []string
	collectors map[string]Collector
}

func NewAggregatedCollector(name, mergeProperty, sortKey string) *AggregatedCollector {
	return &AggregatedCollector{
		name:          name,
		mergeProperty: mergeProperty,
		sortKey:       sortKey,
		collectors:    make(map[string]Collector),
	}
}

func (c *AggregatedCollector) Name() string { return c.name }

// AddCollector 添加子采集器，同名覆盖
func (c *AggregatedCollector) AddCollector(col Collector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collectors[col.Name()]; !ok {
		c.order = append(c.order, col.Name())
	}
	c.collectors[col.Name()] = col
}

// Collector 按名称只读查找
func (c *AggregatedCollector) Collector(name string) (Collector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	col, ok := c.collectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return col, nil
}

// Collectors 子采集器副本（添加顺序）
func (c *AggregatedCollector) Collectors() []Collector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Collector, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.collectors[name])
	}
	return out
}

func (c *AggregatedCollector) Collect() any {
	merged := []any{}
	for _, col := range c.Collectors() {
		data := col.Collect()
		if c.mergeProperty != "" {
			m, ok := data.(map[string]any)
			if !ok {
				continue
			}
			data = m[c.mergeProperty]
		}
		merged = append(merged, toList(data)...)
	}
	if c.sortKey != "" {
		sort.SliceStable(merged, func(i, j int) bool {
			return less(field(merged[i], c.sortKey), field(merged[j], c.sortKey))
		})
	}
	return merged
}

func toList(v any) []any {
	if v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func field(v any, key string) any {
	if m, ok := v.(map[string]any); ok {
		return m[key]
	}
	return nil
}

func less(a, b any) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
