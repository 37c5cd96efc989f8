package collector

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// 日志级别（与 PSR-3 一致，便于前端按 label 着色）
const (
	LevelDebug     = "debug"
	LevelInfo      = "info"
	LevelNotice    = "notice"
	LevelWarning   = "warning"
	LevelError     = "error"
	LevelCritical  = "critical"
	LevelAlert     = "alert"
	LevelEmergency = "emergency"
)

// Message 单条消息
type Message struct {
	Message   string
	IsString  bool
	Label     string
	Time      float64
	Collector string
}

func (m Message) toMap() map[string]any {
	out := map[string]any{
		"message":   m.Message,
		"is_string": m.IsString,
		"label":     m.Label,
		"time":      m.Time,
	}
	if m.Collector != "" {
		out["collector"] = m.Collector
	}
	return out
}

// MessageSink 追加消息的一方（日志桥接等）只依赖该接口
type MessageSink interface {
	AddMessage(message any, label string)
}

// MessagesCollector 按时间记录消息，可合并其它 MessagesAggregate 的消息
type MessagesCollector struct {
	Base
	name string

	mu         sync.Mutex
	messages   []Message
	aggregates []MessagesAggregate
}

// NewMessagesCollector 创建消息采集器，name 为空时使用 messages
func NewMessagesCollector(name string, opts ...Option) *MessagesCollector {
	if name == "" {
		name = "messages"
	}
	return &MessagesCollector{Base: newBase(opts), name: name}
}

func (c *MessagesCollector) Name() string { return c.name }

// AddMessage 记录一条消息，非字符串值通过格式化器转为文本
func (c *MessagesCollector) AddMessage(message any, label string) {
	if label == "" {
		label = LevelInfo
	}
	text, isString := message.(string)
	if !isString {
		text = c.formatter.FormatVar(message)
	}
	m := Message{Message: text, IsString: isString, Label: label, Time: c.now()}

	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

// Log 以指定级别记录消息，{key} 占位符由 context 中的标量值替换
func (c *MessagesCollector) Log(level, message string, context map[string]any) {
	c.AddMessage(Interpolate(message, context), level)
}

func (c *MessagesCollector) Debug(message string, context map[string]any) {
	c.Log(LevelDebug, message, context)
}

func (c *MessagesCollector) Info(message string, context map[string]any) {
	c.Log(LevelInfo, message, context)
}

func (c *MessagesCollector) Warning(message string, context map[string]any) {
	c.Log(LevelWarning, message, context)
}

func (c *MessagesCollector) Error(message string, context map[string]any) {
	c.Log(LevelError, message, context)
}

// Aggregate 合并另一个消息来源，收集时按时间排序
func (c *MessagesCollector) Aggregate(src MessagesAggregate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggregates = append(c.aggregates, src)
}

// Messages 自身消息与合并来源的消息，按时间升序
func (c *MessagesCollector) Messages() []Message {
	c.mu.Lock()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	aggregates := append([]MessagesAggregate(nil), c.aggregates...)
	c.mu.Unlock()

	for _, src := range aggregates {
		name := ""
		if named, ok := src.(Collector); ok {
			name = named.Name()
		}
		for _, m := range src.Messages() {
			if m.Collector == "" {
				m.Collector = name
			}
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Time < msgs[j].Time })
	return msgs
}

// Clear 清空自身消息
func (c *MessagesCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *MessagesCollector) Collect() any {
	msgs := c.Messages()
	out := make([]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.toMap())
	}
	return map[string]any{
		"count":    len(msgs),
		"messages": out,
	}
}

func (c *MessagesCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		c.name: {
			Icon:    "list-alt",
			Widget:  "PhpDebugBar.Widgets.MessagesWidget",
			Map:     c.name + ".messages",
			Default: "[]",
		},
		c.name + ":badge": {
			Map:     c.name + ".count",
			Default: "null",
		},
	}
}

// Interpolate 用 context 的标量值替换 {key} 占位符，复合值保持原样
func Interpolate(message string, context map[string]any) string {
	if len(context) == 0 || !strings.Contains(message, "{") {
		return message
	}
	pairs := make([]string, 0, len(context)*2)
	for k, v := range context {
		s, ok := scalarString(v)
		if !ok {
			continue
		}
		pairs = append(pairs, "{"+k+"}", s)
	}
	return strings.NewReplacer(pairs...).Replace(message)
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case string:
		return val, true
	case bool:
		return strconv.FormatBool(val), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case error:
		return val.Error(), true
	case fmt.Stringer:
		return val.String(), true
	}
	return "", false
}
