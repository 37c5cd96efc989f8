package collector

import "runtime"

// RuntimeCollector Go 运行时信息
type RuntimeCollector struct {
	Base
}

func NewRuntimeCollector(opts ...Option) *RuntimeCollector {
	return &RuntimeCollector{Base: newBase(opts)}
}

func (c *RuntimeCollector) Name() string { return "runtime" }

func (c *RuntimeCollector) Collect() any {
	return map[string]any{
		"version":    runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"num_cpu":    runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"gomaxprocs": runtime.GOMAXPROCS(0),
	}
}

func (c *RuntimeCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		"go_version": {
			Icon:    "code",
			Tooltip: "Go Version",
			Map:     "runtime.version",
			Default: "''",
		},
	}
}
