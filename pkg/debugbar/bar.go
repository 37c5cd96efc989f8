package debugbar

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/collector"
	"github.com/debugbar-collector/pkg/config"
	"github.com/debugbar-collector/pkg/formatter"
	"github.com/debugbar-collector/pkg/httpdriver"
	"github.com/debugbar-collector/pkg/metrics"
	"github.com/debugbar-collector/pkg/requestid"
	"github.com/debugbar-collector/pkg/storage"
)

const datetimeLayout = "2006-01-02 15:04:05"

// Bar 单个请求的聚合器：持有采集器注册表，负责一次收集、持久化与传输
// 一个 Bar 只服务一个请求，不在请求之间共享
type Bar struct {
	cfg       config.BarConfig
	logger    *zap.Logger
	clock     clockwork.Clock
	ids       requestid.Generator
	formatter formatter.DataFormatter
	storage   storage.Storage
	driver    httpdriver.Driver
	request   *http.Request
	metrics   *metrics.BarMetrics

	mu         sync.Mutex
	order      []string
	collectors map[string]collector.Collector
	requestID  string
	data       storage.Dataset
	persisted  bool
}

// New 创建聚合器
func New(opts ...Option) *Bar {
	b := &Bar{
		cfg:        config.NewDefaultBarConfig(),
		logger:     zap.NewNop(),
		clock:      clockwork.NewRealClock(),
		ids:        requestid.Default,
		formatter:  formatter.Default,
		collectors: make(map[string]collector.Collector),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config 当前配置
func (b *Bar) Config() config.BarConfig { return b.cfg }

// Formatter Bar 使用的格式化器
func (b *Bar) Formatter() formatter.DataFormatter { return b.formatter }

// CollectorOptions 与 Bar 共享格式化器和时钟的采集器选项
func (b *Bar) CollectorOptions() []collector.Option {
	return []collector.Option{collector.WithFormatter(b.formatter), collector.WithClock(b.clock)}
}

// AddCollector 注册采集器，名称为空、重复或为 __meta 时返回配置错误
func (b *Bar) AddCollector(c collector.Collector) error {
	if c == nil {
		return fmt.Errorf("%w: nil collector", ErrConfiguration)
	}
	name := c.Name()
	if name == "" {
		return fmt.Errorf("%w: empty collector name", ErrConfiguration)
	}
	if name == storage.MetaKey {
		return fmt.Errorf("%w: %q is reserved", ErrDuplicateName, name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collectors[name]; ok {
		return fmt.Errorf("%w: %q is already registered", ErrDuplicateName, name)
	}
	b.collectors[name] = c
	b.order = append(b.order, name)
	return nil
}

// MustAddCollector 装配阶段使用，注册失败直接 panic
func (b *Bar) MustAddCollector(c collector.Collector) *Bar {
	if err := b.AddCollector(c); err != nil {
		panic(err)
	}
	return b
}

// HasCollector 是否已注册同名采集器
func (b *Bar) HasCollector(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.collectors[name]
	return ok
}

// Collector 按名称只读查找
func (b *Bar) Collector(name string) (collector.Collector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.collectors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return c, nil
}

// Collectors 按注册顺序返回采集器副本
func (b *Bar) Collectors() []collector.Collector {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]collector.Collector, 0, len(b.order))
	for _, name := range b.order {
		out = append(out, b.collectors[name])
	}
	return out
}

// SetStorage 替换存储后端
func (b *Bar) SetStorage(s storage.Storage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.storage = s
}

// Storage 当前存储后端，未配置时为 nil
func (b *Bar) Storage() storage.Storage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.storage
}

// IsDataPersisted 最近一次收集的数据集是否已写入存储
func (b *Bar) IsDataPersisted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.persisted
}

// SetHTTPDriver 替换 HTTP 驱动
func (b *Bar) SetHTTPDriver(d httpdriver.Driver) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.driver = d
}

// HTTPDriver 当前 HTTP 驱动
func (b *Bar) HTTPDriver() httpdriver.Driver {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.driver
}

// CurrentRequestID 当前数据集的请求ID，首次访问时生成并固定
func (b *Bar) CurrentRequestID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requestIDLocked()
}

func (b *Bar) requestIDLocked() string {
	if b.requestID == "" {
		b.requestID = b.ids.Generate()
	}
	return b.requestID
}

// Collect 执行一次完整收集：生成 __meta，按注册顺序调用每个采集器，清洗字符串并持久化
// 持久化失败时按 PersistPolicy 处理：best_effort 只记录日志，strict 返回包装后的 storage.ErrStorage；
// 两种策略下数据集都会被保留
func (b *Bar) Collect(ctx context.Context) (storage.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.collectLocked(ctx)
}

func (b *Bar) collectLocked(ctx context.Context) (storage.Dataset, error) {
	id := b.requestIDLocked()
	raw := make(map[string]any, len(b.order)+1)
	raw[storage.MetaKey] = b.buildMeta(id)
	for _, name := range b.order {
		start := b.clock.Now()
		raw[name] = b.collectors[name].Collect()
		b.metrics.ObserveCollect(name, b.clock.Since(start).Seconds())
	}

	var replaced int
	data := sanitize(raw, &replaced).(map[string]any)
	if replaced > 0 {
		b.logger.Warn("invalid utf-8 replaced in dataset",
			zap.String("request_id", id), zap.Int("strings", replaced))
	}
	b.data = data
	b.persisted = false
	b.metrics.DatasetCollected()

	if b.storage == nil {
		return data, nil
	}
	if err := b.storage.Save(ctx, id, data); err != nil {
		b.metrics.StorageError("save")
		b.logger.Warn("persist dataset failed", zap.String("request_id", id), zap.Error(err))
		if b.cfg.PersistPolicy != config.PersistStrict {
			return data, nil
		}
		if !errors.Is(err, storage.ErrStorage) {
			err = fmt.Errorf("%w: %w", storage.ErrStorage, err)
		}
		return data, fmt.Errorf("persist dataset %s: %w", id, err)
	}
	b.persisted = true
	return data, nil
}

// Data 返回已收集的数据集，首次访问时执行收集；之后多次调用返回同一份数据
func (b *Bar) Data(ctx context.Context) (storage.Dataset, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dataLocked(ctx)
}

func (b *Bar) dataLocked(ctx context.Context) (storage.Dataset, error) {
	if b.data != nil {
		return b.data, nil
	}
	return b.collectLocked(ctx)
}

// HasData 是否已完成收集
func (b *Bar) HasData() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data != nil
}

func (b *Bar) buildMeta(id string) map[string]any {
	now := b.clock.Now()
	meta := map[string]any{
		"id":       id,
		"datetime": now.Format(datetimeLayout),
		"utime":    collector.Seconds(now),
	}
	if r := b.request; r != nil {
		uri := r.RequestURI
		if uri == "" {
			uri = r.URL.RequestURI()
		}
		meta["method"] = r.Method
		meta["uri"] = uri
		meta["ip"] = remoteIP(r.RemoteAddr)
		return meta
	}
	meta["method"] = "CLI"
	meta["uri"] = cliScript()
	meta["ip"] = cliAddress()
	return meta
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func cliScript() string {
	if len(os.Args) == 0 {
		return ""
	}
	return os.Args[0]
}

// cliAddress 命令行模式下以主机名解析出的地址作为 ip
func cliAddress() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "127.0.0.1"
	}
	addrs, err := net.LookupHost(host)
	if err != nil || len(addrs) == 0 {
		return "127.0.0.1"
	}
	return addrs[0]
}
