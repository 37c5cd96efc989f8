package openhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/debugbar-collector/pkg/debugbar"
	"github.com/debugbar-collector/pkg/storage"
)

// DefaultMax find 未指定 max 时返回的条数
const DefaultMax = 20

var (
	// ErrNoStorage 构造时未提供存储
	ErrNoStorage = fmt.Errorf("%w: open handler requires a storage", debugbar.ErrConfiguration)
	// ErrMissingParameter 缺少必填参数（get 的 id）
	ErrMissingParameter = errors.New("missing parameter")
	// ErrInvalidOperation op 不是 find/get/clear
	ErrInvalidOperation = errors.New("invalid operation")
)

// Handler 存储之上的只读查询接口：find / get / clear
type Handler struct {
	storage  storage.Storage
	logger   *zap.Logger
	requests *prometheus.CounterVec
}

// Option Handler 构造选项
type Option func(*Handler)

func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRequestsCounter 按 op/status 计数的请求指标
func WithRequestsCounter(c *prometheus.CounterVec) Option {
	return func(h *Handler) { h.requests = c }
}

// New 创建 open handler，storage 为 nil 时返回 ErrNoStorage
func New(s storage.Storage, opts ...Option) (*Handler, error) {
	if s == nil {
		return nil, ErrNoStorage
	}
	h := &Handler{storage: s, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle 按 op 参数分发，返回可直接序列化为 JSON 的结果；params 不会被修改
func (h *Handler) Handle(ctx context.Context, params url.Values) (any, error) {
	op := params.Get("op")
	switch op {
	case "", "find":
		return h.find(ctx, params)
	case "get":
		return h.get(ctx, params)
	case "clear":
		return h.clear(ctx)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidOperation, op)
}

func (h *Handler) find(ctx context.Context, params url.Values) ([]storage.Meta, error) {
	max := DefaultMax
	if v, err := strconv.Atoi(params.Get("max")); err == nil && v >= 0 {
		max = v
	}
	offset := 0
	if v, err := strconv.Atoi(params.Get("offset")); err == nil && v > 0 {
		offset = v
	}
	filters := make(map[string]string)
	for _, key := range storage.FilterKeys {
		if params.Has(key) {
			filters[key] = params.Get(key)
		}
	}
	metas, err := h.storage.Find(ctx, filters, max, offset)
	if err != nil {
		return nil, err
	}
	if metas == nil {
		metas = []storage.Meta{}
	}
	return metas, nil
}

func (h *Handler) get(ctx context.Context, params url.Values) (storage.Dataset, error) {
	id := params.Get("id")
	if id == "" {
		return nil, fmt.Errorf("%w: id", ErrMissingParameter)
	}
	return h.storage.Get(ctx, id)
}

func (h *Handler) clear(ctx context.Context) (map[string]any, error) {
	if err := h.storage.Clear(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

// StatusCode 错误对应的 HTTP 状态码
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrMissingParameter), errors.Is(err, ErrInvalidOperation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handler) respond(ctx context.Context, params url.Values) (int, any) {
	result, err := h.Handle(ctx, params)
	status := StatusCode(err)
	if h.requests != nil {
		op := params.Get("op")
		switch op {
		case "":
			op = "find"
		case "find", "get", "clear":
		default:
			op = "invalid"
		}
		h.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
	}
	if err != nil {
		if status == http.StatusInternalServerError {
			h.logger.Error("open handler failed", zap.String("op", params.Get("op")), zap.Error(err))
		}
		return status, map[string]string{"error": err.Error()}
	}
	return status, result
}

// ServeHTTP net/http 适配，参数取自 query string
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, body := h.respond(r.Context(), r.URL.Query())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("write open handler response failed", zap.Error(err))
	}
}

// Gin gin 适配
func (h *Handler) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		status, body := h.respond(c.Request.Context(), c.Request.URL.Query())
		c.JSON(status, body)
	}
}
