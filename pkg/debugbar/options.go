package debugbar

import (
	"net/http"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/config"
	"github.com/debugbar-collector/pkg/formatter"
	"github.com/debugbar-collector/pkg/httpdriver"
	"github.com/debugbar-collector/pkg/metrics"
	"github.com/debugbar-collector/pkg/requestid"
	"github.com/debugbar-collector/pkg/storage"
)

// Option Bar 构造选项
type Option func(*Bar)

// WithConfig 覆盖默认的 BarConfig
func WithConfig(cfg config.BarConfig) Option {
	return func(b *Bar) { b.cfg = cfg }
}

// WithStorage 设置数据集存储，nil 表示不持久化
func WithStorage(s storage.Storage) Option {
	return func(b *Bar) { b.storage = s }
}

// WithHTTPDriver 设置响应头与会话驱动
func WithHTTPDriver(d httpdriver.Driver) Option {
	return func(b *Bar) { b.driver = d }
}

// WithRequest 当前请求，用于生成 __meta；不设置时按命令行模式生成
func WithRequest(r *http.Request) Option {
	return func(b *Bar) { b.request = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Bar) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(b *Bar) { b.clock = c }
}

// WithIDGenerator 请求ID生成器
func WithIDGenerator(g requestid.Generator) Option {
	return func(b *Bar) { b.ids = g }
}

// WithFormatter 注入格式化实现，未设置时使用 formatter.Default
func WithFormatter(f formatter.DataFormatter) Option {
	return func(b *Bar) { b.formatter = f }
}

// WithMetrics 自监控指标，nil 表示不记录
func WithMetrics(m *metrics.BarMetrics) Option {
	return func(b *Bar) { b.metrics = m }
}
