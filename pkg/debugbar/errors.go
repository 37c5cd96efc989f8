package debugbar

import (
	"errors"
	"fmt"

	"github.com/debugbar-collector/pkg/collector"
)

// 配置类错误在应用装配阶段立即返回，不重试
var (
	ErrConfiguration = errors.New("debugbar configuration error")
	// ErrDuplicateName 采集器重名或使用了保留名 __meta
	ErrDuplicateName = fmt.Errorf("%w: duplicate collector name", ErrConfiguration)
	// ErrNoSession 堆叠数据需要已开启的会话
	ErrNoSession = fmt.Errorf("%w: session not started", ErrConfiguration)
	// ErrNoHTTPDriver 发送响应头或堆叠数据前未设置 HTTP 驱动
	ErrNoHTTPDriver = fmt.Errorf("%w: http driver not set", ErrConfiguration)
	// ErrNotRegistered 按名称查找的采集器不存在
	ErrNotRegistered = collector.ErrNotRegistered
)
