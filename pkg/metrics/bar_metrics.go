package metrics

import "github.com/prometheus/client_golang/prometheus"

// BarMetrics 聚合器使用的指标集合
type BarMetrics struct {
	CollectDuration *prometheus.HistogramVec
	StorageErrors   *prometheus.CounterVec
	Datasets        prometheus.Counter
	HeaderPayload   prometheus.Histogram
}

// NewBarMetrics 创建并注册聚合器指标，同一注册器只能调用一次
func NewBarMetrics(f *MetricFactory) *BarMetrics {
	return &BarMetrics{
		CollectDuration: f.NewCollectDurationSeconds(),
		StorageErrors:   f.NewStorageErrorsTotal(),
		Datasets:        f.NewDatasetsTotal(),
		HeaderPayload:   f.NewHeaderPayloadBytes(),
	}
}

// ObserveCollect 记录一次采集耗时，m 为 nil 时忽略
func (m *BarMetrics) ObserveCollect(collector string, seconds float64) {
	if m == nil {
		return
	}
	m.CollectDuration.WithLabelValues(collector).Observe(seconds)
}

// StorageError 记录一次存储错误
func (m *BarMetrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}

// DatasetCollected 记录一次完整收集
func (m *BarMetrics) DatasetCollected() {
	if m == nil {
		return
	}
	m.Datasets.Inc()
}

// ObserveHeaderPayload 记录响应头载荷大小
func (m *BarMetrics) ObserveHeaderPayload(size int) {
	if m == nil {
		return
	}
	m.HeaderPayload.Observe(float64(size))
}
