package botdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_KnownCrawlers(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		ua      string
		botType string
	}{
		{
			name:    "googlebot from google range",
			ip:      "66.249.66.1",
			ua:      "Googlebot/2.1 (+http://www.google.com/bot.html)",
			botType: "googlebot",
		},
		{
			name:    "facebook crawler ip",
			ip:      "69.63.184.10",
			ua:      "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)",
			botType: "facebook_crawler",
		},
		{
			name:    "bingbot by user agent only",
			ip:      "203.0.113.4",
			ua:      "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)",
			botType: "generic_bot",
		},
		{
			name:    "headless browser",
			ip:      "203.0.113.9",
			ua:      "HeadlessChrome/120.0",
			botType: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Classify(tt.ip, tt.ua)
			assert.True(t, res.IsBot, "expected bot, got %+v", res)
			assert.GreaterOrEqual(t, res.Confidence, 50)
			if tt.botType != "" {
				assert.Equal(t, tt.botType, res.BotType)
			}
		})
	}
}

func TestClassify_FacebookAppOverridesCrawlerSignature(t *testing.T) {
	uas := []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) facebookexternalhit/1.1 [FBAN/FBIOS;FBAV/440.0]",
		"Mozilla/5.0 (Linux; Android 14) facebookexternalhit/1.1 [FBAV/442.0.0.0]",
	}

	for _, ua := range uas {
		res := Classify("203.0.113.50", ua)
		assert.False(t, res.IsBot, "FBAN/FBAV must be treated as human: %+v", res)
	}
}

func TestClassify_SocialInAppBrowsersAreHuman(t *testing.T) {
	uas := []string{
		"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Instagram 300.0.0.0",
		"Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36 Line/13.20.1",
		"Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 TikTok 32.5.0",
	}

	for _, ua := range uas {
		res := Classify("198.51.100.7", ua)
		assert.False(t, res.IsBot, "social in-app browser misclassified: %+v", res)
	}
}

func TestClassify_NormalBrowser(t *testing.T) {
	res := Classify("198.51.100.20",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")

	assert.False(t, res.IsBot)
	assert.Equal(t, 0, res.Confidence)
	assert.Equal(t, []string{"Normal user detected"}, res.Reasons)
}

func TestClassify_Heuristics(t *testing.T) {
	// Short UA without browser tokens: 10 + 20, below the threshold alone.
	res := Classify("198.51.100.21", "curl/8.4.0")
	assert.False(t, res.IsBot)
	assert.Equal(t, 30, res.Confidence)

	// Empty inputs classify as human with zero confidence.
	res = Classify("", "")
	assert.False(t, res.IsBot)
	assert.Equal(t, 0, res.Confidence)
}

func TestClassify_Deterministic(t *testing.T) {
	first := Classify("66.249.1.2", "Googlebot/2.1")
	for i := 0; i < 5; i++ {
		require.Equal(t, first, Classify("66.249.1.2", "Googlebot/2.1"))
	}
}

type fakeVisit struct {
	ip string
	ua string
}

func (f fakeVisit) BotSignals() (string, string) { return f.ip, f.ua }

func TestFilterVisitsAndStats(t *testing.T) {
	visits := []fakeVisit{
		{"66.249.66.1", "Googlebot/2.1 (+http://www.google.com/bot.html)"},
		{"198.51.100.1", "Mozilla/5.0 (Windows NT 10.0) Chrome/120.0 Safari/537.36"},
		{"198.51.100.2", "Mozilla/5.0 (iPhone) Line/13.20.1 Safari/605.1.15"},
	}

	humans := FilterVisits(visits)
	require.Len(t, humans, 2)

	stats := VisitStats(visits)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Bots)
	assert.Equal(t, 2, stats.Humans)
	assert.Equal(t, 33, stats.BotPercentage)
	assert.Equal(t, 1, stats.BotTypes["googlebot"])
}
