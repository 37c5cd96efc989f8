package collector

import (
	"net/http"
	"strings"
)

// DefaultHiddenHeaders 展示时打码的请求头
var DefaultHiddenHeaders = []string{"Authorization", "Cookie", "Proxy-Authorization"}

// RequestDataCollector 当前 HTTP 请求的查询参数、表单、cookie 与请求头
type RequestDataCollector struct {
	Base
	request *http.Request
	hidden  map[string]struct{}
}

// NewRequestDataCollector 创建请求采集器，hiddenHeaders 为 nil 时使用默认打码列表
func NewRequestDataCollector(r *http.Request, hiddenHeaders []string, opts ...Option) *RequestDataCollector {
	if hiddenHeaders == nil {
		hiddenHeaders = DefaultHiddenHeaders
	}
	hidden := make(map[string]struct{}, len(hiddenHeaders))
	for _, h := range hiddenHeaders {
		hidden[http.CanonicalHeaderKey(h)] = struct{}{}
	}
	return &RequestDataCollector{Base: newBase(opts), request: r, hidden: hidden}
}

func (c *RequestDataCollector) Name() string { return "request" }

func (c *RequestDataCollector) Collect() any {
	r := c.request
	if r == nil {
		return map[string]any{}
	}
	out := map[string]any{}

	if query := r.URL.Query(); len(query) > 0 {
		out["query"] = c.formatter.FormatVar(flatten(query))
	}
	// 只读取已解析的表单，避免在这里消费请求体
	if len(r.PostForm) > 0 {
		out["post"] = c.formatter.FormatVar(flatten(r.PostForm))
	}
	if cookies := r.Cookies(); len(cookies) > 0 {
		m := make(map[string]string, len(cookies))
		for _, ck := range cookies {
			m[ck.Name] = ck.Value
		}
		out["cookies"] = c.formatter.FormatVar(m)
	}
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if _, ok := c.hidden[http.CanonicalHeaderKey(name)]; ok {
			headers[name] = "***"
			continue
		}
		headers[name] = strings.Join(values, ", ")
	}
	out["headers"] = c.formatter.FormatVar(headers)
	out["server"] = c.formatter.FormatVar(map[string]string{
		"method":      r.Method,
		"uri":         r.RequestURI,
		"proto":       r.Proto,
		"host":        r.Host,
		"remote_addr": r.RemoteAddr,
	})
	return out
}

func flatten(values map[string][]string) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = v
	}
	return out
}

func (c *RequestDataCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		"request": {
			Icon:    "tags",
			Widget:  "PhpDebugBar.Widgets.VariableListWidget",
			Map:     "request",
			Default: "{}",
		},
	}
}
