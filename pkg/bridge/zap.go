package bridge

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/debugbar-collector/pkg/collector"
)

// ZapCore 把 zap 日志写入消息采集器；日志处理与数据采集分离，sink 只负责追加消息
type ZapCore struct {
	zapcore.LevelEnabler
	sink   collector.MessageSink
	fields []zapcore.Field
}

// NewZapCore 创建 core，低于 level 的日志被丢弃
func NewZapCore(sink collector.MessageSink, level zapcore.LevelEnabler) *ZapCore {
	return &ZapCore{LevelEnabler: level, sink: sink}
}

// Tee 返回同时写入原 logger 与 sink 的 logger
func Tee(l *zap.Logger, sink collector.MessageSink, level zapcore.LevelEnabler) *zap.Logger {
	return l.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, NewZapCore(sink, level))
	}))
}

func (c *ZapCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &ZapCore{LevelEnabler: c.LevelEnabler, sink: c.sink, fields: merged}
}

func (c *ZapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

// Write {key} 占位符由字段值替换，其余字段以 JSON 附在消息后
func (c *ZapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	msg := ent.Message
	if ent.LoggerName != "" {
		msg = "[" + ent.LoggerName + "] " + msg
	}
	if len(enc.Fields) > 0 {
		rest := make(map[string]any, len(enc.Fields))
		for k, v := range enc.Fields {
			if strings.Contains(msg, "{"+k+"}") {
				continue
			}
			rest[k] = v
		}
		msg = collector.Interpolate(msg, enc.Fields)
		if len(rest) > 0 {
			if raw, err := json.Marshal(rest); err == nil {
				msg += " " + string(raw)
			}
		}
	}
	c.sink.AddMessage(msg, Label(ent.Level))
	return nil
}

func (c *ZapCore) Sync() error { return nil }

// Label zap 级别对应的消息标签
func Label(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel:
		return collector.LevelDebug
	case zapcore.InfoLevel:
		return collector.LevelInfo
	case zapcore.WarnLevel:
		return collector.LevelWarning
	case zapcore.ErrorLevel:
		return collector.LevelError
	case zapcore.DPanicLevel, zapcore.PanicLevel:
		return collector.LevelCritical
	case zapcore.FatalLevel:
		return collector.LevelEmergency
	}
	return collector.LevelInfo
}
