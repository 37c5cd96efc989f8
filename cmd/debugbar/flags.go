package debugbar

import (
	"github.com/spf13/cobra"
)

// flag 名与 yaml 键一致，便于 viper 按同一个 key 合并 flag / 配置文件 / 环境变量

func initServerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("server.addr", defaultCfg.Server.Addr, "-> HTTP listening address (HTTP监听地址)")
	f.Duration("server.read_timeout", defaultCfg.Server.ReadTimeout, "-> Read timeout duration (读取超时时间)")
	f.Duration("server.write_timeout", defaultCfg.Server.WriteTimeout, "-> Write timeout duration (写入超时时间)")
	f.Duration("server.idle_timeout", defaultCfg.Server.IdleTimeout, "-> Idle connection timeout duration (空闲连接超时时间)")
}

func initBarFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	p := "bar."

	f.String(p+"header_name", defaultCfg.Bar.HeaderName, "-> Response header name prefix | 数据头名称前缀")
	f.Int(p+"max_header_length", defaultCfg.Bar.MaxHeaderLength, "-> Max length of a single header | 单个响应头最大长度")
	f.Int(p+"max_total_header_length", defaultCfg.Bar.MaxTotalHeaderLength, "-> Max length of all headers | 数据头总长度上限")
	f.String(p+"stack_namespace", defaultCfg.Bar.StackNamespace, "-> Session key for stacked datasets | 会话堆叠命名空间")
	f.Bool(p+"stack_always_use_session", defaultCfg.Bar.StackAlwaysUseSession, "-> Always keep full datasets in session | 总是把完整数据集放入会话")
	f.Bool(p+"use_open_handler", defaultCfg.Bar.UseOpenHandler, "-> Send only request id in AJAX headers | AJAX 只发送请求ID")
	f.String(p+"persist_policy", defaultCfg.Bar.PersistPolicy, "-> Storage failure policy [best_effort,strict] | 存储失败策略")
	f.String(p+"open_handler_url", defaultCfg.Bar.OpenHandlerURL, "-> Open handler route | open handler 路由")
	f.String(p+"variable_name", defaultCfg.Bar.VariableName, "-> JavaScript variable name | 前端变量名")
}

func initStorageFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	p := "storage."

	f.String(p+"driver", defaultCfg.Storage.Driver, "-> Storage driver [none,memory,file,badger,sql] | 存储驱动")
	f.String(p+"path", defaultCfg.Storage.Path, "-> Data directory for file/badger | 数据目录")
	f.Bool(p+"compress", defaultCfg.Storage.Compress, "-> zstd compression for file driver | file 驱动压缩")
	f.Bool(p+"in_memory", defaultCfg.Storage.InMemory, "-> Badger in-memory mode | badger 纯内存模式")
	f.String(p+"sql_driver", defaultCfg.Storage.SQLDriver, "-> database/sql driver name | sql 驱动名")
	f.String(p+"dsn", defaultCfg.Storage.DSN, "-> SQL data source name | sql 连接串")
	f.String(p+"table", defaultCfg.Storage.Table, "-> SQL table name | sql 数据表名")
}

func initLogFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	p := "log."

	f.String(p+"level", defaultCfg.Log.Level, "-> Log level [debug,info,warn,error] | 日志级别")
	f.String(p+"format", defaultCfg.Log.Format, "-> Log format [console,json] | 日志格式")
	f.String(p+"path", defaultCfg.Log.Path, "-> Log file storage path | 日志路径")
	f.Int(p+"max_size", defaultCfg.Log.MaxSize, "-> Max size of single log file (MB) | 单文件最大MB")
	f.Int(p+"max_backup", defaultCfg.Log.MaxBackup, "-> Number of log backup files | 备份数量")
	f.Int(p+"max_age", defaultCfg.Log.MaxAge, "-> Maximum retention days of log files | 保存天数")
	f.Bool(p+"compress", defaultCfg.Log.Compress, "-> Whether to compress expired log files | 是否压缩")
}
