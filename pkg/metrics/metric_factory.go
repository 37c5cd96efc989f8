package metrics

import "github.com/prometheus/client_golang/prometheus"

// MetricFactory 指标工厂，用于统一创建指标（counter/gauge/histogram）。
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// NewCollectDurationSeconds 创建「单个采集器收集耗时分布」指标
// 指标类型：Histogram
// 标签说明：
//
//	collector: 采集器名称（如 "time"、"sql"）
//
// 分桶说明：采集通常在亚毫秒级完成，使用 100μs 起的指数分桶
func (m *MetricFactory) NewCollectDurationSeconds() *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "debugbar_collect_duration_seconds",
		Help:    "Collection duration per collector",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"collector"})
	m.reg.MustRegister(h)
	return h
}

// NewStorageErrorsTotal 创建「存储操作错误总数」指标
// 标签说明：
//
//	op: 存储操作（save/get/find/clear）
func (m *MetricFactory) NewStorageErrorsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "debugbar_storage_errors_total",
		Help: "Total storage operation errors",
	}, []string{"op"})
	m.reg.MustRegister(c)
	return c
}

// NewDatasetsTotal 创建「已收集数据集总数」指标
func (m *MetricFactory) NewDatasetsTotal() prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "debugbar_datasets_total",
		Help: "Total datasets collected",
	})
	m.reg.MustRegister(c)
	return c
}

// NewHeaderPayloadBytes 创建「响应头载荷大小分布」指标（编码后、分片前）
func (m *MetricFactory) NewHeaderPayloadBytes() prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "debugbar_header_payload_bytes",
		Help:    "Encoded header payload size before chunking",
		Buckets: prometheus.ExponentialBuckets(256, 4, 8),
	})
	m.reg.MustRegister(h)
	return h
}

// NewOpenHandlerRequestsTotal 创建「open handler 请求总数」指标
// 标签说明：
//
//	op: find/get/clear/invalid
//	status: HTTP 状态码
func (m *MetricFactory) NewOpenHandlerRequestsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "debugbar_open_handler_requests_total",
		Help: "Open handler requests by operation and status",
	}, []string{"op", "status"})
	m.reg.MustRegister(c)
	return c
}
