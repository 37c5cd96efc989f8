package debugbar

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// 超过总长度上限时替换成的错误载荷
const oversizeMessage = "Maximum header size exceeded"

// HeaderField 一个响应头，按顺序拼接各分片的值即得到完整载荷
type HeaderField struct {
	Name  string
	Value string
}

// RawURLEncode 按 RFC 3986 编码（空格为 %20）
func RawURLEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// DataAsHeaders 把 {id, data} 编码为响应头分片：name、name-1、name-2 ...
// 编码后长度超过 maxTotalHeaderLength 时只返回一个错误载荷；长度参数小于等于 0 时使用配置值
func (b *Bar) DataAsHeaders(ctx context.Context, headerName string, maxHeaderLength, maxTotalHeaderLength int) ([]HeaderField, error) {
	if headerName == "" {
		headerName = b.cfg.HeaderName
	}
	if maxHeaderLength <= 0 {
		maxHeaderLength = b.cfg.MaxHeaderLength
	}
	if maxTotalHeaderLength <= 0 {
		maxTotalHeaderLength = b.cfg.MaxTotalHeaderLength
	}

	b.mu.Lock()
	data, err := b.dataLocked(ctx)
	id := b.requestIDLocked()
	b.mu.Unlock()

	var payload string
	raw, mErr := json.Marshal(map[string]any{"id": id, "data": data})
	if mErr != nil {
		b.logger.Warn("encode dataset for headers failed", zap.String("request_id", id), zap.Error(mErr))
		payload = errorPayload("Unable to encode dataset: " + mErr.Error())
	} else {
		payload = RawURLEncode(string(raw))
	}
	b.metrics.ObserveHeaderPayload(len(payload))

	if len(payload) > maxTotalHeaderLength {
		b.logger.Warn("header payload too large",
			zap.String("request_id", id),
			zap.Int("size", len(payload)),
			zap.Int("max", maxTotalHeaderLength))
		payload = errorPayload(oversizeMessage)
	}
	return chunkHeaders(headerName, payload, maxHeaderLength), err
}

func errorPayload(message string) string {
	raw, _ := json.Marshal(map[string]string{"error": message})
	return RawURLEncode(string(raw))
}

func chunkHeaders(name, payload string, size int) []HeaderField {
	if size <= 0 {
		size = len(payload)
	}
	fields := make([]HeaderField, 0, len(payload)/max(size, 1)+1)
	for i := 0; len(payload) > 0; i++ {
		n := min(size, len(payload))
		headerName := name
		if i > 0 {
			headerName = name + "-" + strconv.Itoa(i)
		}
		fields = append(fields, HeaderField{Name: headerName, Value: payload[:n]})
		payload = payload[n:]
	}
	return fields
}

// SendDataInHeaders 通过 HTTP 驱动发送数据集
// useOpenHandler 为 true 且数据已持久化时只发送 {header}-id，前端再通过 open handler 拉取
func (b *Bar) SendDataInHeaders(ctx context.Context, useOpenHandler bool) error {
	driver := b.HTTPDriver()
	if driver == nil {
		return ErrNoHTTPDriver
	}
	name := b.cfg.HeaderName

	var collectErr error
	if useOpenHandler && b.Storage() != nil {
		b.mu.Lock()
		_, collectErr = b.dataLocked(ctx)
		persisted := b.persisted
		id := b.requestIDLocked()
		b.mu.Unlock()
		if persisted {
			driver.SetHeaders(map[string]string{name + "-id": id})
			return nil
		}
		// 持久化失败时退回完整载荷，否则前端拿到的ID无法解析
	}

	fields, err := b.DataAsHeaders(ctx, name, 0, 0)
	headers := make(map[string]string, len(fields))
	for _, f := range fields {
		headers[f.Name] = f.Value
	}
	driver.SetHeaders(headers)
	return errors.Join(collectErr, err)
}
