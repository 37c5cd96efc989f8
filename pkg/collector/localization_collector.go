package collector

import "os"

// LocalizationCollector 当前语言环境与翻译域
type LocalizationCollector struct {
	Base
	domain string
	getenv func(string) string
}

func NewLocalizationCollector(domain string, opts ...Option) *LocalizationCollector {
	return &LocalizationCollector{Base: newBase(opts), domain: domain, getenv: os.Getenv}
}

func (c *LocalizationCollector) Name() string { return "localization" }

// Locale 按 LC_ALL > LC_MESSAGES > LANG 的优先级取语言环境
func (c *LocalizationCollector) Locale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := c.getenv(key); v != "" {
			return v
		}
	}
	return "C"
}

// Domain 翻译域
func (c *LocalizationCollector) Domain() string { return c.domain }

func (c *LocalizationCollector) Collect() any {
	return map[string]any{
		"locale": c.Locale(),
		"domain": c.domain,
	}
}

func (c *LocalizationCollector) Widgets() map[string]Widget {
	return map[string]Widget{
		"domain": {
			Icon:    "bookmark",
			Map:     "localization.domain",
			Default: "''",
		},
		"locale": {
			Icon:    "flag",
			Map:     "localization.locale",
			Default: "''",
		},
	}
}
