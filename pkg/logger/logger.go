package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/debugbar-collector/pkg/config"
)

type Logger = zap.Logger

var (
	mu         sync.RWMutex
	baseLogger = zap.NewNop()
)

// ParseLevel 解析日志级别，兼容三字母缩写，未知值返回 info
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "dbg", "debug":
		return zapcore.DebugLevel
	case "war", "warn":
		return zapcore.WarnLevel
	case "err", "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "pan", "panic":
		return zapcore.PanicLevel
	case "fat", "fatal":
		return zapcore.FatalLevel
	}
	return zapcore.InfoLevel
}

// New 按配置创建 logger：控制台彩色输出 + 按天滚动的 JSON 文件
func New(cfg config.ZapLogConfig) (*zap.Logger, error) {
	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, err
	}
	opts := []rotatelogs.Option{
		rotatelogs.WithRotationTime(24 * time.Hour),
		rotatelogs.WithRotationSize(int64(cfg.MaxSize) * 1024 * 1024),
	}
	// rotatelogs 不允许同时设置 MaxAge 与 RotationCount
	if cfg.MaxBackup > 0 {
		opts = append(opts, rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	} else {
		opts = append(opts, rotatelogs.WithMaxAge(time.Duration(cfg.MaxAge)*24*time.Hour))
	}
	writer, err := rotatelogs.New(filepath.Join(cfg.Path, "debugbar-%Y%m%d.log"), opts...)
	if err != nil {
		return nil, err
	}
	return build(cfg, os.Stdout, writer), nil
}

func build(cfg config.ZapLogConfig, console, file io.Writer) *zap.Logger {
	level := ParseLevel(cfg.Level)

	// 控制台彩色时间
	consoleTime := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format("2006-01-02 15:04:05.000 -07:00")))
	}
	// 文件日志纯文本时间
	plainTime := func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("2006-01-02 15:04:05.000 -07:00"))
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.ConsoleSeparator = " "
	consoleCfg.EncodeLevel = coloredLevelEncoder
	consoleCfg.EncodeTime = consoleTime
	// Caller 两级路径
	consoleCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}

	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.TimeKey = "timestamp"
	fileCfg.EncodeTime = plainTime
	fileCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	fileEncoder := zapcore.NewJSONEncoder(fileCfg)
	if cfg.Format == "console" {
		fileCfg.EncodeCaller = consoleCfg.EncodeCaller
		fileEncoder = zapcore.NewConsoleEncoder(fileCfg)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), level),
		zapcore.NewCore(fileEncoder, zapcore.AddSync(file), level),
	)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var s string
	switch level {
	case zapcore.DebugLevel:
		s = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		s = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		s = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		s = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		s = "\033[35m" + level.CapitalString() + "\033[0m"
	default:
		s = "UNK  "
	}
	enc.AppendString(s)
}

// Init 创建并设置进程级 logger
func Init(cfg config.ZapLogConfig) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	SetLogger(l)
	return l, nil
}

// SetLogger 替换进程级 logger
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	baseLogger = l
}

// L 进程级 logger，未初始化时为 Nop
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return baseLogger
}

// Named 带组件字段的子 logger
func Named(component string) *zap.Logger {
	return L().With(zap.String("component", component))
}

// Sync 刷新缓冲
func Sync() error {
	return L().Sync()
}
