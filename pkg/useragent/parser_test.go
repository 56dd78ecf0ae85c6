package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFamily(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36", "chrome"},
		{"Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Edg/120.0 Safari/537.36", "edge"},
		{"Mozilla/5.0 (X11; Linux) Gecko/20100101 Firefox/121.0", "firefox"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Version/17.0 Safari/605.1.15", "safari"},
		{"Mozilla/5.0 (iPhone) AppleWebKit/605.1.15 Line/13.20.1", "line"},
		{"Opera/9.80 (Windows NT 6.1) Presto/2.12.388", "opera"},
		{"curl/8.4.0", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractFamily(tt.ua), "ua=%s", tt.ua)
	}
}

func TestParse_FallbackWithoutRegexes(t *testing.T) {
	var p *Parser // nil parser falls back to substring rules

	info := p.Parse("Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36")
	assert.Equal(t, "mobile", info.DeviceType)
	assert.Equal(t, "Chrome", info.Browser)
	assert.Equal(t, "Android", info.OS)

	info = p.Parse("Mozilla/5.0 (Windows NT 10.0; Win64; x64) Gecko/20100101 Firefox/121.0")
	assert.Equal(t, "desktop", info.DeviceType)
	assert.Equal(t, "Firefox", info.Browser)
	assert.Equal(t, "Windows", info.OS)

	info = p.Parse("Googlebot/2.1 (+http://www.google.com/bot.html)")
	assert.Equal(t, "bot", info.DeviceType)

	info = p.Parse("")
	assert.Equal(t, "unknown", info.DeviceType)
}
