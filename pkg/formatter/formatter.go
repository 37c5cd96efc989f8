package formatter

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/dustin/go-humanize"
)

// DataFormatter 数据格式化接口（采集器只依赖该接口，便于替换实现）
type DataFormatter interface {
	FormatVar(v any) string
	FormatDuration(seconds float64) string
	FormatBytes(size float64) string
}

var byteSuffixes = []string{"B", "KB", "MB", "GB", "TB"}

// Formatter 默认格式化实现，无可变状态，可在多个 Bar 之间共享
type Formatter struct {
	// BytesPrecision 字节数保留的小数位
	BytesPrecision int
	// MaxDepth 变量打印的最大嵌套深度，0 表示不限制
	MaxDepth int

	dumper *spew.ConfigState
}

// Default 进程级默认格式化实例，未注入时由 Bar 和各采集器使用
var Default = New()

// New 创建格式化实例
func New() *Formatter {
	return NewWithDepth(0)
}

// NewWithDepth 创建限制打印深度的格式化实例
func NewWithDepth(maxDepth int) *Formatter {
	return &Formatter{
		BytesPrecision: 2,
		MaxDepth:       maxDepth,
		dumper: &spew.ConfigState{
			Indent:                  "  ",
			MaxDepth:                maxDepth,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
			SortKeys:                true,
		},
	}
}

// FormatVar 将任意值渲染为可读字符串，标量直接输出，复合类型使用 spew 打印
func (f *Formatter) FormatVar(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case error:
		return val.Error()
	case fmt.Stringer:
		return val.String()
	}
	return strings.TrimRight(f.dumper.Sdump(v), "\n")
}

// FormatDuration 秒数转可读耗时（μs/ms/s）
func (f *Formatter) FormatDuration(seconds float64) string {
	switch {
	case seconds < 0.001:
		return humanize.FtoaWithDigits(roundTo(seconds*1000000, 0), 0) + "μs"
	case seconds < 0.1:
		return humanize.FtoaWithDigits(roundTo(seconds*1000, 2), 2) + "ms"
	case seconds < 1:
		return humanize.FtoaWithDigits(roundTo(seconds*1000, 0), 0) + "ms"
	}
	return humanize.FtoaWithDigits(roundTo(seconds, 2), 2) + "s"
}

// FormatBytes 字节数转可读大小（1024 进制）
func (f *Formatter) FormatBytes(size float64) string {
	if size == 0 || math.IsNaN(size) {
		return "0B"
	}
	sign := ""
	if size < 0 {
		sign = "-"
		size = -size
	}
	i := 0
	for size >= 1024 && i < len(byteSuffixes)-1 {
		size /= 1024
		i++
	}
	return sign + humanize.FtoaWithDigits(roundTo(size, f.BytesPrecision), f.BytesPrecision) + byteSuffixes[i]
}

func roundTo(v float64, precision int) float64 {
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}
