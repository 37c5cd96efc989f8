package collector

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrMeasureNotStarted 停止一个未开始的计时
var ErrMeasureNotStarted = errors.New("measure not started")

// Measure 一段已完成的计时，时间为 Unix 秒
type Measure struct {
	Label     string
	Start     float64
	End       float64
	Params    map[string]any
	Collector string
}

// Duration 耗时（秒）
func (m Measure) Duration() float64 { return m.End - m.Start }

type startedMeasure struct {
	label     string
	start     float64
	collector string
}

// TimeDataCollector 请求耗时与命名计时区间
type TimeDataCollector struct {
	Base

	mu           sync.Mutex
	requestStart float64
	requestEnd   float64
	started      map[string]startedMeasure
	measures     []Measure
	seq          atomic.Uint64
}

// NewTimeDataCollector 创建计时采集器，requestStart 为零值时取当前时间
func NewTimeDataCollector(requestStart time.Time, opts ...Option) *TimeDataCollector {
	c := &TimeDataCollector{Base: newBase(opts), started: make(map[string]startedMeasure)}
	if requestStart.IsZero() {
		requestStart = c.clock.Now()
	}
	c.requestStart = Seconds(requestStart)
	return c
}

func (c *TimeDataCollector) Name() string { return "time" }

// StartMeasure 开始一个命名计时，label 为空时使用 name
func (c *TimeDataCollector) StartMeasure(name, label, collector string) {
	if label == "" {
		label = name
	}
	start := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[name] = startedMeasure{label: label, start: start, collector: collector}
}

// HasStartedMeasure 命名计时是否进行中
func (c *TimeDataCollector) HasStartedMeasure(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.started[name]
	return ok
}

// StopMeasure 结束命名计时
func (c *TimeDataCollector) StopMeasure(name string, params map[string]any) error {
	end := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(name, end, params)
}

func (c *TimeDataCollector) stopLocked(name string, end float64, params map[string]any) error {
	s, ok := c.started[name]
	if !ok {
		return fmt.Errorf("stop measure %q: %w", name, ErrMeasureNotStarted)
	}
	delete(c.started, name)
	c.measures = append(c.measures, Measure{Label: s.label, Start: s.start, End: end, Params: params, Collector: s.collector})
	return nil
}

// AddMeasure 直接添加一段已知起止时间的计时
func (c *TimeDataCollector) AddMeasure(label string, start, end time.Time, params map[string]any, collector string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.measures = append(c.measures, Measure{Label: label, Start: Seconds(start), End: Seconds(end), Params: params, Collector: collector})
}

// Measure 计时执行 fn，fn 返回错误时记录在 params.error 中并原样返回
func (c *TimeDataCollector) Measure(label string, fn func() error) error {
	name := "measure#" + strconv.FormatUint(c.seq.Add(1), 10)
	c.StartMeasure(name, label, "")
	err := fn()
	var params map[string]any
	if err != nil {
		params = map[string]any{"error": err.Error()}
	}
	if stopErr := c.StopMeasure(name, params); stopErr != nil {
		return stopErr
	}
	return err
}

// Measures 已完成计时的副本
func (c *TimeDataCollector) Measures() []Measure {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Measure(nil), c.measures...)
}

// RequestStartTime 请求开始时间（Unix 秒）
func (c *TimeDataCollector) RequestStartTime() float64 { return c.requestStart }

// RequestEndTime 请求结束时间，Collect 之前为 0
func (c *TimeDataCollector) RequestEndTime() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestEnd
}

// RequestDuration 请求耗时，未结束时计算到当前时刻
func (c *TimeDataCollector) RequestDuration() float64 {
	c.mu.Lock()
	end := c.requestEnd
	c.mu.Unlock()
	if end == 0 {
		end = c.now()
	}
	return end - c.requestStart
}

func (c *TimeDataCollector) Collect() any {
	end := c.now()

	c.mu.Lock()
	c.requestEnd = end
	names := make([]string, 0, len(c.started))
	for name := range c.started {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_ = c.stopLocked(name, end, nil)
	}
	sort.SliceStable(c.measures, func(i, j int) bool { return c.measures[i].Start < c.measures[j].Start })
	measures := append([]Measure(nil), c.measures...)
	c.mu.Unlock()

	out := make([]any, 0, len(measures))
	for _, m := range measures {
		params := m.Params
		if params == nil {
			params = map[string]any{}
		}
		out = append(out, map[string]any{
			"label":          m.Label,
			"start":          m.Start,
			"relative_start": m.Start - c.requestStart,
			"end":            m.End,
			"relative_end":   m.End - c.requestStart,
			"duration":       m.Duration(),
			"duration_str":   c.formatter.FormatDuration(m.Duration()),
			"params":         params,
			"collector":      m.Collector,
		})
	}
	duration := end - c.requestStart
	return map[string]any{
		"start":        c.requestStart,
		"end":          end,
		"duration":     duration,
		"duration_str": c.formatter.FormatDuration(duration),
		"measures":     out,
	}
}

func (c *TimeDataCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		"time": {
			Icon:    "clock-o",
			Tooltip: "Request Duration",
			Map:     "time.duration_str",
			Default: "'0ms'",
		},
		"timeline": {
			Icon:    "tasks",
			Widget:  "PhpDebugBar.Widgets.TimelineWidget",
			Map:     "time",
			Default: "{}",
		},
	}
}
