package httpdriver

import (
	"net/http"
)

// Driver 聚合器与 HTTP 层之间的抽象：写响应头、读写会话
type Driver interface {
	SetHeaders(headers map[string]string)
	IsSessionStarted() bool
	SetSessionValue(name string, value any)
	HasSessionValue(name string) bool
	GetSessionValue(name string) any
	DeleteSessionValue(name string)
}

// ResponseDriver net/http 实现，session 为 nil 表示当前请求没有会话
type ResponseDriver struct {
	header  http.Header
	session *Session
}

// NewResponseDriver 创建驱动，headers 写入 w.Header()，须在 WriteHeader 之前调用 SetHeaders
func NewResponseDriver(w http.ResponseWriter, session *Session) *ResponseDriver {
	return &ResponseDriver{header: w.Header(), session: session}
}

func (d *ResponseDriver) SetHeaders(headers map[string]string) {
	for name, value := range headers {
		d.header.Set(name, value)
	}
}

func (d *ResponseDriver) IsSessionStarted() bool {
	return d.session != nil
}

func (d *ResponseDriver) SetSessionValue(name string, value any) {
	if d.session != nil {
		d.session.Set(name, value)
	}
}

func (d *ResponseDriver) HasSessionValue(name string) bool {
	return d.session != nil && d.session.Has(name)
}

func (d *ResponseDriver) GetSessionValue(name string) any {
	if d.session == nil {
		return nil
	}
	return d.session.Get(name)
}

func (d *ResponseDriver) DeleteSessionValue(name string) {
	if d.session != nil {
		d.session.Delete(name)
	}
}
