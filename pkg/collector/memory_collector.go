package collector

import (
	"os"
	"runtime"
	"runtime/metrics"
	"sync"

	"github.com/shirou/gopsutil/v3/process"
)

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// HeapInUse 当前堆对象占用字节数（runtime/metrics 读取，无 STW）
func HeapInUse() uint64 {
	sample := []metrics.Sample{{Name: heapObjectsMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return sample[0].Value.Uint64()
}

// ProcessMemory 进程内存来源：常驻内存与峰值常驻内存（字节）
type ProcessMemory func() (rss, peakRSS uint64, err error)

// GopsutilProcessMemory 通过 gopsutil 读取当前进程的 RSS 与 VmHWM
func GopsutilProcessMemory() (uint64, uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, 0, err
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	return info.RSS, info.HWM, nil
}

// MemoryCollector 进程内存占用：峰值、常驻与堆分配
type MemoryCollector struct {
	Base

	mu       sync.Mutex
	source   ProcessMemory
	peakHeap uint64
}

// NewMemoryCollector 创建内存采集器，source 为 nil 时使用 gopsutil
func NewMemoryCollector(source ProcessMemory, opts ...Option) *MemoryCollector {
	if source == nil {
		source = GopsutilProcessMemory
	}
	return &MemoryCollector{Base: newBase(opts), source: source}
}

func (c *MemoryCollector) Name() string { return "memory" }

// UpdatePeakUsage 采样一次堆占用，请求处理中可多次调用
func (c *MemoryCollector) UpdatePeakUsage() uint64 {
	heap := HeapInUse()
	c.mu.Lock()
	defer c.mu.Unlock()
	if heap > c.peakHeap {
		c.peakHeap = heap
	}
	return c.peakHeap
}

// PeakUsage 峰值：优先取进程 VmHWM，拿不到时退回采样到的堆峰值
func (c *MemoryCollector) PeakUsage() (peak, rss uint64) {
	heapPeak := c.UpdatePeakUsage()
	rss, hwm, err := c.source()
	if err != nil {
		return heapPeak, 0
	}
	peak = hwm
	if rss > peak {
		peak = rss
	}
	if peak == 0 {
		peak = heapPeak
	}
	return peak, rss
}

func (c *MemoryCollector) Collect() any {
	peak, rss := c.PeakUsage()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return map[string]any{
		"peak_usage":     peak,
		"peak_usage_str": c.formatter.FormatBytes(float64(peak)),
		"rss":            rss,
		"rss_str":        c.formatter.FormatBytes(float64(rss)),
		"heap_alloc":     ms.HeapAlloc,
		"heap_alloc_str": c.formatter.FormatBytes(float64(ms.HeapAlloc)),
		"num_gc":         ms.NumGC,
	}
}

func (c *MemoryCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		"memory": {
			Icon:    "cogs",
			Tooltip: "Memory Usage",
			Map:     "memory.peak_usage_str",
			Default: "'0B'",
		},
	}
}
