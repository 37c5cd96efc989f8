package debugbar

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

// InvalidUTF8Replacement 非法 UTF-8 字节序列的替换字符
const InvalidUTF8Replacement = "\uFFFD"

// Sanitize 返回 v 的清洗副本：所有字符串叶子转为合法 UTF-8，原值不被修改
// 结果只包含 JSON 值形态：map[string]any、[]any、string、float64、bool 与 nil，
// 因此经任一存储后端往返后与保存前相等。[]byte 视为字符串，
// 结构体与其它类型按其 JSON 编码展开，无法编码时退化为 fmt 文本
func Sanitize(v any) any {
	var n int
	return sanitize(v, &n)
}

var jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()

func sanitize(v any, replaced *int) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return sanitizeString(val, replaced)
	case []byte:
		return sanitizeString(string(val), replaced)
	case bool, float64:
		return val
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return sanitizeString(val.String(), replaced)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[sanitizeString(k, replaced)] = sanitize(item, replaced)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitize(item, replaced)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Type().Implements(jsonMarshalerType) {
		return sanitizeJSON(v, replaced)
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return sanitizeString(rv.String(), replaced)
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return sanitize(rv.Elem().Interface(), replaced)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return sanitizeJSON(v, replaced)
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[sanitizeString(iter.Key().String(), replaced)] = sanitize(iter.Value().Interface(), replaced)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = sanitize(rv.Index(i).Interface(), replaced)
		}
		return out
	}
	return sanitizeJSON(v, replaced)
}

// sanitizeJSON 经 JSON 编码展开任意值，编码失败时使用 %v 文本
func sanitizeJSON(v any, replaced *int) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return sanitizeString(fmt.Sprintf("%v", v), replaced)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return sanitizeString(string(raw), replaced)
	}
	return sanitize(decoded, replaced)
}

func sanitizeString(s string, replaced *int) string {
	if utf8.ValidString(s) {
		return s
	}
	*replaced++
	return strings.ToValidUTF8(s, InvalidUTF8Replacement)
}
