package renderer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debugbar-collector/pkg/collector"
	"github.com/debugbar-collector/pkg/debugbar"
	"github.com/debugbar-collector/pkg/requestid"
	"github.com/debugbar-collector/pkg/storage"
)

type sessionDriver struct{ values map[string]any }

func (d *sessionDriver) SetHeaders(map[string]string) {}

func (d *sessionDriver) IsSessionStarted() bool {
	return true
}

func (d *sessionDriver) SetSessionValue(name string, v any) {
	d.values[name] = v
}

func (d *sessionDriver) GetSessionValue(name string) any {
	return d.values[name]
}

func (d *sessionDriver) DeleteSessionValue(name string) {
	delete(d.values, name)
}

func (d *sessionDriver) HasSessionValue(name string) bool {
	_, ok := d.values[name]
	return ok
}

func newBar(id string, opts ...debugbar.Option) *debugbar.Bar {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	base := []debugbar.Option{
		debugbar.WithClock(clock),
		debugbar.WithIDGenerator(requestid.GeneratorFunc(func() string { return id })),
	}
	b := debugbar.New(append(base, opts...)...)
	b.MustAddCollector(collector.NewMessagesCollector("messages", b.CollectorOptions()...))
	b.MustAddCollector(collector.NewTimeDataCollector(time.Time{}, b.CollectorOptions()...))
	b.MustAddCollector(collector.NewStatementCollector(nil, b.CollectorOptions()...))
	return b
}

func TestInitializationCode(t *testing.T) {
	r := New(newBar("req1"))
	code := r.InitializationCode()

	assert.True(t, strings.HasPrefix(code, "var phpdebugbar = new PhpDebugBar.DebugBar();\n"))
	assert.Contains(t, code, `phpdebugbar.addTab("messages", new PhpDebugBar.DebugBar.Tab({"icon":"list-alt","title":"Messages", "widget": new PhpDebugBar.Widgets.MessagesWidget()}));`)
	assert.Contains(t, code, `phpdebugbar.addIndicator("time", new PhpDebugBar.DebugBar.Indicator({"icon":"clock-o","tooltip":"Request Duration"}), "right");`)
	assert.Contains(t, code, `"messages:badge": ["messages.count", null]`)
	assert.Contains(t, code, `"database": ["sql", []]`)
	assert.Contains(t, code, "phpdebugbar.ajaxHandler = new PhpDebugBar.AjaxHandler(phpdebugbar, undefined, true);\nphpdebugbar.ajaxHandler.bindToXHR();\n")
	assert.True(t, strings.HasSuffix(code, "phpdebugbar.setOpenHandler(new PhpDebugBar.OpenHandler({\"url\":\"/_debugbar/open\"}));\n"))

	// 顺序：构造、控件、数据映射、恢复状态、ajax、open handler
	idx := func(s string) int { return strings.Index(code, s) }
	assert.Less(t, idx("addTab"), idx("setDataMap"))
	assert.Less(t, idx("setDataMap"), idx("restoreState"))
	assert.Less(t, idx("restoreState"), idx("ajaxHandler"))
	assert.Less(t, idx("ajaxHandler"), idx("setOpenHandler"))
}

func TestInitializationOptions(t *testing.T) {
	r := New(newBar("req1"), WithVariableName("dbg"), WithOpenHandlerURL(""), WithAjaxHandler(false, false, false, false))
	code := r.InitializationCode()
	assert.Contains(t, code, "var dbg = new PhpDebugBar.DebugBar();")
	assert.NotContains(t, code, "ajaxHandler")
	assert.NotContains(t, code, "setOpenHandler")
}

func TestRender(t *testing.T) {
	ctx := context.Background()
	b := newBar("req1")
	out, err := New(b).Render(ctx, true, true)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<script type=\"text/javascript\">\nvar phpdebugbar"))
	assert.True(t, strings.HasSuffix(out, "phpdebugbar.addDataSet("+mustJSON(t, b)+", \"req1\");\n\n</script>\n"))
}

func TestRenderAjax(t *testing.T) {
	b := newBar("req2")
	out, err := New(b).Render(context.Background(), false, false)
	require.NoError(t, err)
	assert.NotContains(t, out, "new PhpDebugBar.DebugBar()")
	assert.Contains(t, out, `, "req2", "(ajax)");`)
}

func TestRenderStacked(t *testing.T) {
	ctx := context.Background()
	d := &sessionDriver{values: map[string]any{}}
	s := storage.NewMemoryStorage()

	redirect := newBar("first", debugbar.WithHTTPDriver(d), debugbar.WithStorage(s))
	require.NoError(t, redirect.StackData(ctx))

	page := newBar("second", debugbar.WithHTTPDriver(d), debugbar.WithStorage(s))
	out, err := New(page).Render(ctx, true, true)
	require.NoError(t, err)

	stackedAt := strings.Index(out, `, "first", "(stacked)");`)
	currentAt := strings.Index(out, `, "second");`)
	require.Positive(t, stackedAt)
	require.Positive(t, currentAt)
	assert.Less(t, stackedAt, currentAt)
	assert.False(t, page.HasStackedData())
}

func TestAssets(t *testing.T) {
	r := New(newBar("req1"), WithBaseURL("/static/"))
	css, js := r.AssetFiles()
	assert.Equal(t, []string{"debugbar.css", "widgets.css", "openhandler.css", "widgets/sqlqueries/widget.css"}, css)
	assert.Contains(t, js, "widgets/sqlqueries/widget.js")

	head := r.RenderHead()
	assert.Contains(t, head, `<link rel="stylesheet" type="text/css" href="/static/debugbar.css">`)
	assert.Contains(t, head, `<script type="text/javascript" src="/static/widgets/sqlqueries/widget.js"></script>`)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Request data", title("request_data"))
	assert.Equal(t, "", title(""))
}

func mustJSON(t *testing.T, b *debugbar.Bar) string {
	t.Helper()
	code, err := New(b).AddDatasetCode("x", mustData(t, b), "")
	require.NoError(t, err)
	return strings.TrimSuffix(strings.TrimPrefix(code, "phpdebugbar.addDataSet("), ", \"x\");\n")
}

func mustData(t *testing.T, b *debugbar.Bar) storage.Dataset {
	t.Helper()
	data, err := b.Data(context.Background())
	require.NoError(t, err)
	return data
}
