package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/collector"
	"github.com/debugbar-collector/pkg/debugbar"
	"github.com/debugbar-collector/pkg/storage"
)

// 前端脚本中使用的类名
const (
	DebugBarClass    = "PhpDebugBar.DebugBar"
	TabClass         = "PhpDebugBar.DebugBar.Tab"
	IndicatorClass   = "PhpDebugBar.DebugBar.Indicator"
	AjaxHandlerClass = "PhpDebugBar.AjaxHandler"
	OpenHandlerClass = "PhpDebugBar.OpenHandler"

	StackedSuffix = "(stacked)"
	AjaxSuffix    = "(ajax)"
)

// 基础资源，采集器通过 AssetProvider 追加自己的资源
var (
	baseCSS = []string{"debugbar.css", "widgets.css", "openhandler.css"}
	baseJS  = []string{"debugbar.js", "widgets.js", "openhandler.js"}
)

// Renderer 把 Bar 的数据集渲染为前端初始化脚本
type Renderer struct {
	bar            *debugbar.Bar
	variableName   string
	openHandlerURL string
	baseURL        string
	ajaxHandler    bool
	ajaxAutoShow   bool
	bindToFetch    bool
	bindToXHR      bool
	logger         *zap.Logger
}

type Option func(*Renderer)

// WithVariableName 前端变量名
func WithVariableName(name string) Option {
	return func(r *Renderer) { r.variableName = name }
}

// WithOpenHandlerURL open handler 地址，空字符串表示不启用
func WithOpenHandlerURL(u string) Option {
	return func(r *Renderer) { r.openHandlerURL = u }
}

// WithBaseURL 静态资源地址前缀
func WithBaseURL(u string) Option {
	return func(r *Renderer) { r.baseURL = strings.TrimRight(u, "/") }
}

// WithAjaxHandler 是否生成 ajaxHandler，以及是否自动展示 AJAX 数据集、拦截 fetch/XHR
func WithAjaxHandler(enabled, autoShow, bindToFetch, bindToXHR bool) Option {
	return func(r *Renderer) {
		r.ajaxHandler = enabled
		r.ajaxAutoShow = autoShow
		r.bindToFetch = bindToFetch
		r.bindToXHR = bindToXHR
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New 创建渲染器，变量名与 open handler 地址默认取自 Bar 配置
func New(bar *debugbar.Bar, opts ...Option) *Renderer {
	cfg := bar.Config()
	r := &Renderer{
		bar:            bar,
		variableName:   cfg.VariableName,
		openHandlerURL: cfg.OpenHandlerURL,
		ajaxHandler:    true,
		ajaxAutoShow:   true,
		bindToXHR:      true,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Controls 所有可渲染采集器声明的控件，键为控件名
func (r *Renderer) Controls() (map[string]collector.Widget, []string) {
	controls := make(map[string]collector.Widget)
	var order []string
	for _, c := range r.bar.Collectors() {
		rc, ok := c.(collector.Renderable)
		if !ok {
			continue
		}
		widgets := rc.Widgets()
		names := make([]string, 0, len(widgets))
		for name := range widgets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, seen := controls[name]; !seen {
				order = append(order, name)
			}
			controls[name] = widgets[name]
		}
	}
	return controls, order
}

// AssetFiles 去重后的 css/js 相对路径
func (r *Renderer) AssetFiles() (css, js []string) {
	css = append(css, baseCSS...)
	js = append(js, baseJS...)
	for _, c := range r.bar.Collectors() {
		if ap, ok := c.(collector.AssetProvider); ok {
			a := ap.Assets()
			css = append(css, a.CSS...)
			js = append(js, a.JS...)
		}
	}
	return dedupe(css), dedupe(js)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// RenderHead 静态资源的 link/script 标签
func (r *Renderer) RenderHead() string {
	css, js := r.AssetFiles()
	var b strings.Builder
	for _, f := range css {
		fmt.Fprintf(&b, "<link rel=\"stylesheet\" type=\"text/css\" href=\"%s\">\n", html.EscapeString(r.assetURL(f)))
	}
	for _, f := range js {
		fmt.Fprintf(&b, "<script type=\"text/javascript\" src=\"%s\"></script>\n", html.EscapeString(r.assetURL(f)))
	}
	return b.String()
}

func (r *Renderer) assetURL(file string) string {
	if r.baseURL == "" {
		return file
	}
	return r.baseURL + "/" + file
}

// InitializationCode 构造 DebugBar、注册控件、设置 ajax/open handler 的脚本
func (r *Renderer) InitializationCode() string {
	v := r.variableName
	var b strings.Builder
	fmt.Fprintf(&b, "var %s = new %s();\n", v, DebugBarClass)
	b.WriteString(r.controlsCode())
	if r.ajaxHandler {
		fmt.Fprintf(&b, "%s.ajaxHandler = new %s(%s, undefined, %t);\n", v, AjaxHandlerClass, v, r.ajaxAutoShow)
		if r.bindToFetch {
			fmt.Fprintf(&b, "%s.ajaxHandler.bindToFetch();\n", v)
		}
		if r.bindToXHR {
			fmt.Fprintf(&b, "%s.ajaxHandler.bindToXHR();\n", v)
		}
	}
	if r.openHandlerURL != "" {
		opts, _ := json.Marshal(map[string]string{"url": r.openHandlerURL})
		fmt.Fprintf(&b, "%s.setOpenHandler(new %s(%s));\n", v, OpenHandlerClass, opts)
	}
	return b.String()
}

type widgetOptions struct {
	Icon    string `json:"icon,omitempty"`
	Tooltip string `json:"tooltip,omitempty"`
	Title   string `json:"title,omitempty"`
}

func (r *Renderer) controlsCode() string {
	v := r.variableName
	controls, order := r.Controls()
	var b strings.Builder
	var dataMap []string
	for _, name := range order {
		w := controls[name]
		opts := widgetOptions{Icon: w.Icon, Tooltip: w.Tooltip, Title: w.Title}
		switch {
		case w.Tab != "" || w.Widget != "":
			if opts.Title == "" {
				opts.Title = title(name)
			}
			raw, _ := json.Marshal(opts)
			body := strings.TrimSuffix(strings.TrimPrefix(string(raw), "{"), "}")
			tab := w.Tab
			if tab == "" {
				tab = TabClass
			}
			if w.Widget != "" {
				if body != "" {
					body += ", "
				}
				body += fmt.Sprintf("\"widget\": new %s()", w.Widget)
			}
			fmt.Fprintf(&b, "%s.addTab(%q, new %s({%s}));\n", v, name, tab, body)
		case w.Indicator != "" || w.Icon != "":
			raw, _ := json.Marshal(opts)
			indicator := w.Indicator
			if indicator == "" {
				indicator = IndicatorClass
			}
			position := w.Position
			if position == "" {
				position = "right"
			}
			fmt.Fprintf(&b, "%s.addIndicator(%q, new %s(%s), %q);\n", v, name, indicator, raw, position)
		}
		if w.Map != "" && w.Default != "" {
			dataMap = append(dataMap, fmt.Sprintf("%q: [%q, %s]", name, w.Map, w.Default))
		}
	}
	fmt.Fprintf(&b, "%s.setDataMap({\n%s\n});\n", v, strings.Join(dataMap, ",\n"))
	fmt.Fprintf(&b, "%s.restoreState();\n", v)
	return b.String()
}

func title(name string) string {
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// AddDatasetCode 单个数据集的 addDataSet 调用
func (r *Renderer) AddDatasetCode(id string, data storage.Dataset, suffix string) (string, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode dataset %s: %w", id, err)
	}
	idJSON, _ := json.Marshal(id)
	if suffix == "" {
		return fmt.Sprintf("%s.addDataSet(%s, %s);\n", r.variableName, raw, idJSON), nil
	}
	suffixJSON, _ := json.Marshal(suffix)
	return fmt.Sprintf("%s.addDataSet(%s, %s, %s);\n", r.variableName, raw, idJSON, suffixJSON), nil
}

// Render 生成完整 <script> 片段
// initialize 为 false 时只输出数据集（AJAX 响应场景，后缀为 (ajax)）；
// renderStacked 为 true 时先输出会话中堆叠的数据集并将其清空
func (r *Renderer) Render(ctx context.Context, initialize, renderStacked bool) (string, error) {
	var b strings.Builder
	var errs []error
	if initialize {
		b.WriteString(r.InitializationCode())
	}

	if renderStacked && r.bar.HasStackedData() {
		stacked, err := r.bar.StackedData(ctx, true)
		if err != nil {
			r.logger.Warn("read stacked datasets failed", zap.Error(err))
			errs = append(errs, err)
		}
		for _, e := range stacked {
			code, err := r.AddDatasetCode(e.ID, e.Data, StackedSuffix)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			b.WriteString(code)
		}
	}

	data, err := r.bar.Data(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	suffix := ""
	if !initialize {
		suffix = AjaxSuffix
	}
	code, err := r.AddDatasetCode(r.bar.CurrentRequestID(), data, suffix)
	if err != nil {
		errs = append(errs, err)
	}
	b.WriteString(code)

	return "<script type=\"text/javascript\">\n" + b.String() + "\n</script>\n", errors.Join(errs...)
}
