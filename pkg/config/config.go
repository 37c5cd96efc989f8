package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var valid = validator.New()

// 持久化策略：collect 阶段写存储失败时的处理方式
const (
	PersistBestEffort = "best_effort" // 记录日志与指标，数据集照常返回
	PersistStrict     = "strict"      // 将存储错误返回给调用方
)

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server" comment:"HTTP服务配置"`
	Bar     BarConfig     `yaml:"bar" mapstructure:"bar" comment:"调试栏聚合器配置"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage" comment:"数据集存储配置"`
	Log     ZapLogConfig  `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"HTTP_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"HTTP_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// BarConfig 聚合器配置（请求头传输、会话堆叠、持久化策略）
type BarConfig struct {
	HeaderName            string `yaml:"header_name" mapstructure:"header_name" env:"BAR_HEADER_NAME" validate:"required,excludesall= :" comment:"数据头名称前缀" default:"phpdebugbar"`
	MaxHeaderLength       int    `yaml:"max_header_length" mapstructure:"max_header_length" env:"BAR_MAX_HEADER_LENGTH" validate:"required,gt=0" comment:"单个响应头最大长度（字节）" default:"4096"`
	MaxTotalHeaderLength  int    `yaml:"max_total_header_length" mapstructure:"max_total_header_length" env:"BAR_MAX_TOTAL_HEADER_LENGTH" validate:"required,gtefield=MaxHeaderLength" comment:"所有数据头总长度上限（字节）" default:"250000"`
	StackNamespace        string `yaml:"stack_namespace" mapstructure:"stack_namespace" env:"BAR_STACK_NAMESPACE" validate:"required" comment:"会话堆叠数据的命名空间" default:"PHPDEBUGBAR_STACK_DATA"`
	StackAlwaysUseSession bool   `yaml:"stack_always_use_session" mapstructure:"stack_always_use_session" env:"BAR_STACK_ALWAYS_USE_SESSION" comment:"即使配置了存储也把完整数据集放入会话" default:"false"`
	UseOpenHandler        bool   `yaml:"use_open_handler" mapstructure:"use_open_handler" env:"BAR_USE_OPEN_HANDLER" comment:"AJAX 响应只发送请求ID，由 open handler 拉取数据" default:"false"`
	PersistPolicy         string `yaml:"persist_policy" mapstructure:"persist_policy" env:"BAR_PERSIST_POLICY" validate:"required,oneof=best_effort strict" comment:"存储写入失败策略" default:"best_effort"`
	OpenHandlerURL        string `yaml:"open_handler_url" mapstructure:"open_handler_url" env:"BAR_OPEN_HANDLER_URL" comment:"open handler 路由" default:"/_debugbar/open"`
	VariableName          string `yaml:"variable_name" mapstructure:"variable_name" env:"BAR_VARIABLE_NAME" validate:"required,alphanum" comment:"前端脚本中的变量名" default:"phpdebugbar"`
}

// StorageConfig 数据集存储配置
type StorageConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver" env:"STORAGE_DRIVER" validate:"required,oneof=none memory file badger sql" comment:"存储驱动（none/memory/file/badger/sql）" default:"memory"`
	Path      string `yaml:"path" mapstructure:"path" env:"STORAGE_PATH" comment:"file/badger 数据目录" default:"./data"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" env:"STORAGE_COMPRESS" comment:"file 驱动是否使用 zstd 压缩" default:"false"`
	InMemory  bool   `yaml:"in_memory" mapstructure:"in_memory" env:"STORAGE_IN_MEMORY" comment:"badger 纯内存模式" default:"false"`
	SQLDriver string `yaml:"sql_driver" mapstructure:"sql_driver" env:"STORAGE_SQL_DRIVER" comment:"database/sql 驱动名" default:"sqlite"`
	DSN       string `yaml:"dsn" mapstructure:"dsn" env:"STORAGE_DSN" comment:"sql 驱动连接串"`
	Table     string `yaml:"table" mapstructure:"table" env:"STORAGE_TABLE" comment:"sql 驱动数据表名" default:"phpdebugbar"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"required,gte=0" comment:"日志文件最大保存天数" default:"7"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" env:"LOG_COMPRESS" comment:"是否压缩过期日志" default:"true"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Bar: NewDefaultBarConfig(),
		Storage: StorageConfig{
			Driver:    "memory",
			Path:      "./data",
			SQLDriver: "sqlite",
			Table:     "phpdebugbar",
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// NewDefaultBarConfig 聚合器默认配置，库方式使用时无需加载完整配置
func NewDefaultBarConfig() BarConfig {
	return BarConfig{
		HeaderName:           "phpdebugbar",
		MaxHeaderLength:      4096,
		MaxTotalHeaderLength: 250000,
		StackNamespace:       "PHPDEBUGBAR_STACK_DATA",
		PersistPolicy:        PersistBestEffort,
		OpenHandlerURL:       "/_debugbar/open",
		VariableName:         "phpdebugbar",
	}
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	cfg := NewDefaultConfig()
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper（flag 名与 yaml 键一致，如 bar.max_header_length）
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 ENV -> Viper （BAR_HEADER_NAME -> bar.header_name）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. 解码反序列化到结构体（支持 time.Duration）
	if err := decode(v.AllSettings(), cfg); err != nil {
		return nil, err
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func decode(settings map[string]any, cfg *Config) error {
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验聚合器配置
	if err := c.Bar.Validate(); err != nil {
		return err
	}
	// 	3，校验存储配置
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	// 	4，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
