package bridge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/debugbar-collector/pkg/collector"
)

// MeasureCollector 接收计时区间的一方
type MeasureCollector interface {
	AddMeasure(label string, start, end time.Time, params map[string]any, collector string)
}

var _ MeasureCollector = (*collector.TimeDataCollector)(nil)

// Resolver 根据 span 的父 context 找到当前请求的计时采集器，找不到返回 nil
type Resolver func(ctx context.Context) MeasureCollector

// SpanProcessor 把结束的 span 记录为计时区间
// 固定采集器模式适合单个 Bar（命令行）；Resolver 模式适合全局 TracerProvider 下的多请求
type SpanProcessor struct {
	fixed   MeasureCollector
	resolve Resolver

	mu      sync.Mutex
	pending map[trace.SpanID]MeasureCollector
}

// NewSpanProcessor 所有 span 写入同一个采集器
func NewSpanProcessor(c MeasureCollector) *SpanProcessor {
	return &SpanProcessor{fixed: c, pending: make(map[trace.SpanID]MeasureCollector)}
}

// NewResolvingSpanProcessor 按 span 开始时的 context 决定写入哪个采集器
func NewResolvingSpanProcessor(resolve Resolver) *SpanProcessor {
	return &SpanProcessor{resolve: resolve, pending: make(map[trace.SpanID]MeasureCollector)}
}

func (p *SpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	if p.resolve == nil {
		return
	}
	c := p.resolve(parent)
	if c == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[s.SpanContext().SpanID()] = c
}

func (p *SpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	c := p.fixed
	if p.resolve != nil {
		id := s.SpanContext().SpanID()
		p.mu.Lock()
		c = p.pending[id]
		delete(p.pending, id)
		p.mu.Unlock()
	}
	if c == nil {
		return
	}

	params := map[string]any{
		"trace_id": s.SpanContext().TraceID().String(),
		"span_id":  s.SpanContext().SpanID().String(),
		"kind":     s.SpanKind().String(),
	}
	for _, kv := range s.Attributes() {
		params[string(kv.Key)] = kv.Value.Emit()
	}
	if st := s.Status(); st.Code == codes.Error {
		params["error"] = st.Description
	}
	c.AddMeasure(s.Name(), s.StartTime(), s.EndTime(), params, "otel")
}

func (p *SpanProcessor) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = make(map[trace.SpanID]MeasureCollector)
	return nil
}

func (p *SpanProcessor) ForceFlush(context.Context) error { return nil }
