package util

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

// 定义颜色常量
const (
	ColorReset  = "\x1b[0m"
	ColorRed    = "\x1b[1;31m"
	ColorGreen  = "\x1b[1;32m"
	ColorYellow = "\x1b[1;33m"
	ColorBlue   = "\x1b[1;34m"
	ColorCyan   = "\x1b[1;36m"
)

// 字符串转 ANSI 颜色码，未知名称不着色
func colorCode(name string) string {
	switch name {
	case "ColorRed":
		return ColorRed
	case "ColorGreen":
		return ColorGreen
	case "ColorYellow":
		return ColorYellow
	case "ColorBlue":
		return ColorBlue
	case "ColorCyan":
		return ColorCyan
	default:
		return ""
	}
}

// BannerInfo 启动信息
type BannerInfo struct {
	Name    string
	Version string
	Addr    string
	Storage string
}

// PrintBanner 打印 ASCII banner 与一行启动信息，color 为空时输出纯文本
func PrintBanner(w io.Writer, info BannerInfo, color string) {
	ansi := colorCode(color)
	reset := ""
	if ansi != "" {
		reset = ColorReset
	}
	fig := figure.NewFigure(info.Name, "", true)
	for _, line := range fig.Slicify() {
		_, _ = fmt.Fprintln(w, ansi+line+reset)
	}
	_, _ = fmt.Fprintf(w, "%s %s  listen=%s  storage=%s\n", info.Name, info.Version, info.Addr, info.Storage)
}
