package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debugbar-collector/pkg/collector"
	"github.com/debugbar-collector/pkg/debugbar"
	"github.com/debugbar-collector/pkg/httpdriver"
	"github.com/debugbar-collector/pkg/storage"
)

const page = "<html><head><title>t</title></head><body><h1>hi</h1></body></html>"

func factory(s storage.Storage) Factory {
	return func(r *http.Request) (*debugbar.Bar, error) {
		b := debugbar.New(debugbar.WithRequest(r), debugbar.WithStorage(s))
		b.MustAddCollector(collector.NewMessagesCollector("messages", b.CollectorOptions()...))
		return b, nil
	}
}

func logMessage(r *http.Request, msg string) {
	bar := FromContext(r.Context())
	if bar == nil {
		return
	}
	c, err := bar.Collector("messages")
	if err != nil {
		return
	}
	c.(collector.MessageSink).AddMessage(msg, "info")
}

func app() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		logMessage(r, "rendering page")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		logMessage(r, "api call")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		logMessage(r, "before redirect")
		http.Redirect(w, r, "/page", http.StatusFound)
	})
	return mux
}

func TestInjectBefore(t *testing.T) {
	assert.Equal(t, "<body>x<S></BODY>", string(injectBefore([]byte("<body>x</BODY>"), "</body>", "<S>")))
	assert.Equal(t, "plain<S>", string(injectBefore([]byte("plain"), "</body>", "<S>")))
	assert.Equal(t, "plain", string(injectBefore([]byte("plain"), "</head>", "<S>")))
}

func TestIsHTMLAndAjax(t *testing.T) {
	assert.True(t, IsHTML(http.Header{"Content-Type": {"text/html; charset=utf-8"}}))
	assert.False(t, IsHTML(http.Header{"Content-Type": {"application/json"}}))
	assert.False(t, IsHTML(http.Header{}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, IsAjax(r))
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	assert.True(t, IsAjax(r))
}

func TestHandlerInjectsIntoHTML(t *testing.T) {
	h := New(factory(nil), WithHeadAssets(true)).Handler(app())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	scriptAt := strings.Index(body, "<script type=\"text/javascript\">\nvar phpdebugbar")
	require.Positive(t, scriptAt)
	assert.Less(t, scriptAt, strings.Index(body, "</body>"))
	assert.Contains(t, body, "rendering page")
	assert.Less(t, strings.Index(body, "debugbar.css"), strings.Index(body, "</head>"))
}

func TestHandlerAjaxHeaders(t *testing.T) {
	s := storage.NewMemoryStorage()

	t.Run("full payload", func(t *testing.T) {
		h := New(factory(s)).Handler(app())
		r := httptest.NewRequest(http.MethodPost, "/api", nil)
		r.Header.Set("X-Requested-With", "XMLHttpRequest")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
		payload, err := url.PathUnescape(rec.Header().Get("phpdebugbar"))
		require.NoError(t, err)
		assert.Contains(t, payload, "api call")
	})

	t.Run("open handler reference", func(t *testing.T) {
		h := New(factory(s), WithOpenHandlerHeaders(true)).Handler(app())
		r := httptest.NewRequest(http.MethodPost, "/api", nil)
		r.Header.Set("X-Requested-With", "XMLHttpRequest")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)

		id := rec.Header().Get("phpdebugbar-id")
		require.NotEmpty(t, id)
		assert.Empty(t, rec.Header().Get("phpdebugbar"))
		_, err := s.Get(context.Background(), id)
		assert.NoError(t, err)
	})
}

func TestHandlerPersistsOtherResponses(t *testing.T) {
	s := storage.NewMemoryStorage()
	h := New(factory(s)).Handler(app())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	metas, err := s.Find(context.Background(), map[string]string{"uri": "/api"}, 20, 0)
	require.NoError(t, err)
	assert.Len(t, metas, 1)
}

func TestHandlerStacksRedirects(t *testing.T) {
	sessions := httpdriver.NewMemorySessionStore(time.Hour, clockwork.NewRealClock())
	h := New(factory(nil), WithSessions(sessions)).Handler(app())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/redirect", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	next := httptest.NewRequest(http.MethodGet, "/page", nil)
	for _, c := range cookies {
		next.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, next)
	body := rec.Body.String()
	assert.Contains(t, body, `"(stacked)"`)
	assert.Contains(t, body, "before redirect")
	assert.Less(t, strings.Index(body, `"(stacked)"`), strings.Index(body, "rendering page"))
}

func TestHandlerSkipAndFactoryError(t *testing.T) {
	h := New(factory(nil), WithSkipper(SkipPrefixes("/page"))).Handler(app())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.Equal(t, page, rec.Body.String())

	failing := New(func(*http.Request) (*debugbar.Bar, error) { return nil, errors.New("boom") }).Handler(app())
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.Equal(t, page, rec.Body.String())
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := storage.NewMemoryStorage()
	r := gin.New()
	r.Use(New(factory(s)).Gin())
	r.GET("/page", func(c *gin.Context) {
		bar := FromGin(c)
		require.NotNil(t, bar)
		assert.Same(t, bar, FromContext(c.Request.Context()))
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
	})
	r.GET("/api", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "phpdebugbar.addDataSet(")

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("phpdebugbar"))
}
