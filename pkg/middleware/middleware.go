package middleware

import (
	"bytes"
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/debugbar"
	"github.com/debugbar-collector/pkg/httpdriver"
	"github.com/debugbar-collector/pkg/renderer"
)

// Factory 为每个请求创建一个 Bar（注册采集器、设置存储等），HTTP 驱动由中间件设置
type Factory func(r *http.Request) (*debugbar.Bar, error)

type ctxKey struct{}

// FromContext 取出当前请求的 Bar，不在中间件内时返回 nil
func FromContext(ctx context.Context) *debugbar.Bar {
	b, _ := ctx.Value(ctxKey{}).(*debugbar.Bar)
	return b
}

// NewContext 把 Bar 放入 context
func NewContext(ctx context.Context, b *debugbar.Bar) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// Middleware 每个请求一个 Bar：AJAX 响应写数据头，重定向堆叠到会话，HTML 页面注入脚本
type Middleware struct {
	factory        Factory
	sessions       *httpdriver.MemorySessionStore
	useOpenHandler bool
	injectHead     bool
	renderOpts     []renderer.Option
	skip           func(*http.Request) bool
	logger         *zap.Logger
}

type Option func(*Middleware)

// WithSessions 会话存储，未设置时重定向不会堆叠数据
func WithSessions(s *httpdriver.MemorySessionStore) Option {
	return func(m *Middleware) { m.sessions = s }
}

// WithOpenHandlerHeaders AJAX 响应只发送请求ID
func WithOpenHandlerHeaders(enabled bool) Option {
	return func(m *Middleware) { m.useOpenHandler = enabled }
}

// WithHeadAssets 在 </head> 前注入静态资源标签
func WithHeadAssets(enabled bool) Option {
	return func(m *Middleware) { m.injectHead = enabled }
}

func WithRendererOptions(opts ...renderer.Option) Option {
	return func(m *Middleware) { m.renderOpts = append(m.renderOpts, opts...) }
}

// WithSkipper 返回 true 的请求不经过 Bar（如 open handler 自身、静态资源）
func WithSkipper(skip func(*http.Request) bool) Option {
	return func(m *Middleware) { m.skip = skip }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Middleware) {
		if l != nil {
			m.logger = l
		}
	}
}

// SkipPrefixes 按路径前缀跳过
func SkipPrefixes(prefixes ...string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}

func New(factory Factory, opts ...Option) *Middleware {
	m := &Middleware{
		factory: factory,
		skip:    func(*http.Request) bool { return false },
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// begin 创建 Bar 与驱动；返回 nil 表示该请求不处理
func (m *Middleware) begin(w http.ResponseWriter, r *http.Request) *debugbar.Bar {
	if m.skip(r) {
		return nil
	}
	bar, err := m.factory(r)
	if err != nil {
		m.logger.Error("create debugbar failed", zap.String("uri", r.RequestURI), zap.Error(err))
		return nil
	}
	var session *httpdriver.Session
	if m.sessions != nil {
		session = m.sessions.Start(w, r)
	}
	bar.SetHTTPDriver(httpdriver.NewResponseDriver(w, session))
	return bar
}

// finish 根据响应类型处理数据集，返回（可能被改写的）响应体
func (m *Middleware) finish(ctx context.Context, bar *debugbar.Bar, r *http.Request, header http.Header, status int, body []byte) []byte {
	id := bar.CurrentRequestID()
	switch {
	case status >= 300 && status < 400:
		if err := bar.StackData(ctx); err != nil {
			if errors.Is(err, debugbar.ErrNoSession) {
				m.logger.Debug("redirect without session, dataset not stacked", zap.String("request_id", id))
			} else {
				m.logger.Warn("stack dataset failed", zap.String("request_id", id), zap.Error(err))
			}
		}
	case IsAjax(r):
		if err := bar.SendDataInHeaders(ctx, m.useOpenHandler); err != nil {
			m.logger.Warn("send dataset headers failed", zap.String("request_id", id), zap.Error(err))
		}
	case IsHTML(header):
		rd := renderer.New(bar, append([]renderer.Option{renderer.WithLogger(m.logger)}, m.renderOpts...)...)
		script, err := rd.Render(ctx, true, true)
		if err != nil {
			m.logger.Warn("render debugbar failed", zap.String("request_id", id), zap.Error(err))
		}
		if m.injectHead {
			body = injectBefore(body, "</head>", rd.RenderHead())
		}
		body = injectBefore(body, "</body>", script)
		header.Del("Content-Length")
	default:
		if bar.Storage() == nil {
			return body
		}
		if _, err := bar.Collect(ctx); err != nil {
			m.logger.Warn("collect dataset failed", zap.String("request_id", id), zap.Error(err))
		}
	}
	return body
}

// IsAjax X-Requested-With 为 XMLHttpRequest 的请求
func IsAjax(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
}

// IsHTML 响应是否为 HTML；未设置 Content-Type 时不视为 HTML
func IsHTML(header http.Header) bool {
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// injectBefore 在最后一个 tag（不区分大小写）之前插入 s，找不到 tag 时追加到末尾
func injectBefore(body []byte, tag, s string) []byte {
	i := bytes.LastIndex(bytes.ToLower(body), []byte(tag))
	if i < 0 {
		if tag == "</head>" {
			return body
		}
		return append(body, s...)
	}
	out := make([]byte, 0, len(body)+len(s))
	out = append(out, body[:i]...)
	out = append(out, s...)
	return append(out, body[i:]...)
}

// bufferedWriter 缓存状态码与响应体，头部直接写入底层 ResponseWriter
type bufferedWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *bufferedWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *bufferedWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.buf.Write(p)
}

func (w *bufferedWriter) statusCode() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Handler net/http 中间件
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bar := m.begin(w, r)
		if bar == nil {
			next.ServeHTTP(w, r)
			return
		}
		bw := &bufferedWriter{ResponseWriter: w}
		ctx := NewContext(r.Context(), bar)
		next.ServeHTTP(bw, r.WithContext(ctx))

		status := bw.statusCode()
		body := m.finish(ctx, bar, r, w.Header(), status, bw.buf.Bytes())
		w.WriteHeader(status)
		if _, err := w.Write(body); err != nil {
			m.logger.Debug("write response failed", zap.Error(err))
		}
	})
}
