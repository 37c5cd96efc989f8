package collector

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/debugbar-collector/pkg/formatter"
)

// Collector 采集器核心接口（所有采集器必须实现）
type Collector interface {
	Name() string // 采集器名称（同一 Bar 内唯一）
	Collect() any // 采集数据，无数据时返回空结构而不是报错
}

// Widget 前端控件描述，字段对应 JS 端的 tab/indicator 选项
type Widget struct {
	Icon      string `json:"icon,omitempty"`
	Tooltip   string `json:"tooltip,omitempty"`
	Title     string `json:"title,omitempty"`
	Widget    string `json:"widget,omitempty"`
	Tab       string `json:"tab,omitempty"`
	Indicator string `json:"indicator,omitempty"`
	Position  string `json:"position,omitempty"`
	Map       string `json:"map,omitempty"`
	Default   string `json:"default,omitempty"`
}

// Assets 控件依赖的静态资源（相对资源目录的路径）
type Assets struct {
	CSS []string `json:"css,omitempty"`
	JS  []string `json:"js,omitempty"`
}

// Renderable 可选能力：声明前端控件
type Renderable interface {
	Widgets() map[string]Widget
}

// AssetProvider 可选能力：声明额外静态资源
type AssetProvider interface {
	Assets() Assets
}

// MessagesAggregate 可选能力：向消息采集器提供可合并的消息
type MessagesAggregate interface {
	Messages() []Message
}

// Option 采集器公共选项
type Option func(*Base)

// WithFormatter 注入格式化实现
func WithFormatter(f formatter.DataFormatter) Option {
	return func(b *Base) { b.formatter = f }
}

// WithClock 注入时钟（测试使用 clockwork.NewFakeClock）
func WithClock(c clockwork.Clock) Option {
	return func(b *Base) { b.clock = c }
}

// Base 采集器公共依赖：格式化器与时钟，未注入时使用进程默认值
type Base struct {
	formatter formatter.DataFormatter
	clock     clockwork.Clock
}

func newBase(opts []Option) Base {
	b := Base{}
	for _, opt := range opts {
		opt(&b)
	}
	if b.formatter == nil {
		b.formatter = formatter.Default
	}
	if b.clock == nil {
		b.clock = clockwork.NewRealClock()
	}
	return b
}

// Formatter 当前使用的格式化器
func (b *Base) Formatter() formatter.DataFormatter {
	return b.formatter
}

// Clock 当前使用的时钟
func (b *Base) Clock() clockwork.Clock {
	return b.clock
}

func (b *Base) now() float64 {
	return Seconds(b.clock.Now())
}

// Seconds 时间点转为带小数的 Unix 秒
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func defaultDump(v any) string {
	return formatter.Default.FormatVar(v)
}
