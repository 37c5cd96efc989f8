package debugbar

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/debugbar-collector/pkg/config"
)

// Version 构建时通过 -ldflags 注入
var Version = "dev"

var (
	cfgFile    string
	defaultCfg = config.NewDefaultConfig()
)

var rootCmd = &cobra.Command{
	Use:           "debugbar",
	Short:         "Request diagnostics collector with a browser toolbar, open handler and Prometheus metrics",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Execute 命令入口
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径（yaml）")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initBarFlags(rootCmd)
	initStorageFlags(rootCmd)
	initLogFlags(rootCmd)

	rootCmd.AddCommand(serveCmd, configCmd, findCmd, getCmd, clearCmd)
}

// loadConfig 读取配置并初始化全局日志
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfigWithCli(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return cfg, nil
}
