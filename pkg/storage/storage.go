package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path"
	"regexp"
	"sort"
	"strconv"
)

// MetaKey 数据集中保留的元信息键
const MetaKey = "__meta"

// FilterKeys 可用于 Find 过滤的元信息字段
var FilterKeys = []string{"utime", "datetime", "ip", "uri", "method"}

var (
	// ErrNotFound 数据集不存在
	ErrNotFound = errors.New("dataset not found")
	// ErrStorage 存储后端 I/O 失败
	ErrStorage = errors.New("storage backend failure")
	// ErrInvalidID 请求ID包含路径分隔符等非法字符
	ErrInvalidID = errors.New("invalid dataset id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// Dataset 单个请求的完整数据集：__meta 加上各采集器的结果
type Dataset = map[string]any

// Meta 数据集元信息（id/datetime/utime/method/uri/ip）
type Meta = map[string]any

// Storage 数据集存储接口
//
//	Save  按 id 幂等写入
//	Get   按 id 读取，不存在时返回 ErrNotFound
//	Find  按元信息过滤，按时间倒序，先过滤后分页
//	Clear 删除全部记录
type Storage interface {
	Save(ctx context.Context, id string, data Dataset) error
	Get(ctx context.Context, id string) (Dataset, error)
	Find(ctx context.Context, filters map[string]string, max, offset int) ([]Meta, error)
	Clear(ctx context.Context) error
}

// MetaOf 取出数据集的 __meta，不存在时返回 nil
func MetaOf(data Dataset) Meta {
	switch m := data[MetaKey].(type) {
	case map[string]any:
		return m
	case map[string]string:
		out := make(Meta, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	return nil
}

// MatchFilters 判断元信息是否满足全部过滤条件
// 过滤值按 glob 匹配（区分大小写）；字段缺失或模式非法都视为不匹配
func MatchFilters(meta Meta, filters map[string]string) bool {
	for key, pattern := range filters {
		v, ok := meta[key]
		if !ok || v == nil {
			return false
		}
		matched, err := path.Match(pattern, MetaString(v))
		if err != nil || !matched {
			return false
		}
	}
	return true
}

// MetaString 元信息字段转字符串，用于 glob 匹配
func MetaString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	}
	return fmt.Sprint(v)
}

// MetaTime 取 utime 排序键，兼容 JSON/CBOR/SQL 解码出的数值类型
func MetaTime(meta Meta) float64 {
	switch v := meta["utime"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return math.Inf(-1)
}

// SortNewestFirst 按 utime 倒序（稳定排序，时间相同保持原顺序）
func SortNewestFirst(metas []Meta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return MetaTime(metas[i]) > MetaTime(metas[j])
	})
}

// Paginate 先跳过 offset 条再取至多 max 条；max<0 表示不限制
func Paginate(metas []Meta, max, offset int) []Meta {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(metas) {
		return []Meta{}
	}
	metas = metas[offset:]
	if max >= 0 && max < len(metas) {
		metas = metas[:max]
	}
	return metas
}

// FilterSortPaginate 内存型后端共用的 find 流程
func FilterSortPaginate(metas []Meta, filters map[string]string, max, offset int) []Meta {
	matched := make([]Meta, 0, len(metas))
	for _, m := range metas {
		if MatchFilters(m, filters) {
			matched = append(matched, m)
		}
	}
	SortNewestFirst(matched)
	return Paginate(matched, max, offset)
}

// ValidateID 校验请求ID可以安全地作为文件名或键
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
