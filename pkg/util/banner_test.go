package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, BannerInfo{Name: "debugbar", Version: "v1.0.0", Addr: ":8080", Storage: "memory"}, "")
	out := buf.String()
	assert.NotContains(t, out, "\x1b[")
	assert.True(t, strings.HasSuffix(out, "debugbar v1.0.0  listen=:8080  storage=memory\n"))

	buf.Reset()
	PrintBanner(&buf, BannerInfo{Name: "db"}, "ColorBlue")
	assert.True(t, strings.HasPrefix(buf.String(), ColorBlue))
	assert.Contains(t, buf.String(), ColorReset)
}
