package collector

import "sort"

// ConfigCollector 键值快照采集器，非字符串值通过格式化器转为字符串
type ConfigCollector struct {
	Base
	name string
	data map[string]any
}

// NewConfigCollector 创建键值采集器，name 为空时使用 config
func NewConfigCollector(data map[string]any, name string, opts ...Option) *ConfigCollector {
	if name == "" {
		name = "config"
	}
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return &ConfigCollector{Base: newBase(opts), name: name, data: cp}
}

func (c *ConfigCollector) Name() string { return c.name }

// Set 更新单个键
func (c *ConfigCollector) Set(key string, value any) {
	c.data[key] = value
}

// Keys 已配置的键（有序）
func (c *ConfigCollector) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *ConfigCollector) Collect() any {
	out := make(map[string]any, len(c.data))
	for k, v := range c.data {
		if s, ok := v.(string); ok {
			out[k] = s
			continue
		}
		out[k] = c.formatter.FormatVar(v)
	}
	return out
}

func (c *ConfigCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		c.name: {
			Icon:    "gear",
			Widget:  "PhpDebugBar.Widgets.VariableListWidget",
			Map:     c.name,
			Default: "{}",
		},
	}
}
