package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/debugbar"
)

// GinKey gin.Context 中保存 Bar 的键
const GinKey = "debugbar"

// ginWriter 缓存 gin 的响应，Header 仍指向底层 writer
type ginWriter struct {
	gin.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (w *ginWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *ginWriter) WriteHeaderNow() {
	if w.status == 0 {
		w.status = http.StatusOK
	}
}

func (w *ginWriter) Write(p []byte) (int, error) {
	w.WriteHeaderNow()
	return w.buf.Write(p)
}

func (w *ginWriter) WriteString(s string) (int, error) {
	w.WriteHeaderNow()
	return w.buf.WriteString(s)
}

func (w *ginWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *ginWriter) Size() int {
	if w.status == 0 {
		return -1
	}
	return w.buf.Len()
}

func (w *ginWriter) Written() bool { return w.status != 0 }

// FromGin 取出当前请求的 Bar
func FromGin(c *gin.Context) *debugbar.Bar {
	if v, ok := c.Get(GinKey); ok {
		b, _ := v.(*debugbar.Bar)
		return b
	}
	return nil
}

// Gin gin 中间件，行为与 Handler 相同
func (m *Middleware) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		orig := c.Writer
		bar := m.begin(orig, c.Request)
		if bar == nil {
			c.Next()
			return
		}
		c.Set(GinKey, bar)
		ctx := NewContext(c.Request.Context(), bar)
		c.Request = c.Request.WithContext(ctx)

		gw := &ginWriter{ResponseWriter: orig}
		c.Writer = gw
		c.Next()
		c.Writer = orig

		status := gw.Status()
		body := m.finish(ctx, bar, c.Request, orig.Header(), status, gw.buf.Bytes())
		orig.WriteHeader(status)
		if _, err := orig.Write(body); err != nil {
			m.logger.Debug("write response failed", zap.Error(err))
		}
	}
}
