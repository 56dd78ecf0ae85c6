// Package botdetect classifies inbound traffic as human or crawler from the
// visitor IP and User-Agent alone. It is a pure function of its inputs so the
// redirect path can gate visit recording without any extra I/O.
package botdetect

import "strings"

// Confidence threshold above which a request is treated as a bot.
const botThreshold = 50

// Result is the outcome of a classification.
type Result struct {
	IsBot      bool     `json:"is_bot"`
	BotType    string   `json:"bot_type,omitempty"`
	Confidence int      `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

type ipPattern struct {
	prefix  string
	botType string
	reason  string
}

// Known crawler source ranges, matched by string prefix. First match wins.
var botIPPatterns = []ipPattern{
	// Facebook
	{"2a03:2880:", "facebook_crawler", "Facebook crawler IP detected"},
	{"66.220.", "facebook_crawler", "Facebook crawler IP detected"},
	{"69.63.", "facebook_crawler", "Facebook crawler IP detected"},
	{"173.252.", "unknown_bot", "Known bot IP pattern detected"},
	{"204.15.20.", "unknown_bot", "Known bot IP pattern detected"},
	{"31.13.", "unknown_bot", "Known bot IP pattern detected"},
	{"157.240.", "unknown_bot", "Known bot IP pattern detected"},

	// Google
	{"2800:3f0:", "googlebot", "Google bot IP detected"},
	{"66.249.", "googlebot", "Google bot IP detected"},
	{"64.233.", "unknown_bot", "Known bot IP pattern detected"},
	{"72.14.", "unknown_bot", "Known bot IP pattern detected"},
	{"209.85.", "unknown_bot", "Known bot IP pattern detected"},
	{"216.239.", "unknown_bot", "Known bot IP pattern detected"},
	{"2001:4860:", "unknown_bot", "Known bot IP pattern detected"},

	// Twitter/X
	{"199.16.157.", "unknown_bot", "Known bot IP pattern detected"},
	{"199.59.150.", "unknown_bot", "Known bot IP pattern detected"},

	// LinkedIn
	{"108.174.", "unknown_bot", "Known bot IP pattern detected"},
}

// Bot User-Agent signatures, matched case-insensitively by substring.
var botUASignatures = []string{
	// General bots
	"bot", "crawler", "spider", "scraper",

	// Specific bots
	"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
	"yandexbot", "facebot", "facebookexternalhit", "twitterbot",
	"linkedinbot", "whatsapp", "telegrambot", "discordbot", "slackbot",

	// Monitoring and testing
	"pingdom", "uptimerobot", "statuscake", "headless", "phantom",
	"selenium", "webdriver",

	// Preview services
	"preview", "rendering",
}

// Social in-app browsers. These overlap with crawler signatures
// (facebookexternalhit in particular) but are high-value human traffic,
// so they pull the confidence back down.
var socialAppSignatures = []string{
	"instagram", "threads", "fbav", "fban", "line/", "tiktok", "pinterest",
}

var browserTokens = []string{
	"mozilla", "chrome", "safari", "firefox", "edge", "line",
}

// Classify scores an (ip, userAgent) pair. Confidence is additive and
// clamped to [0,100]; IsBot is true at confidence >= 50. Deterministic,
// no side effects.
func Classify(ip, userAgent string) Result {
	var reasons []string
	confidence := 0
	botType := ""

	if ip != "" {
		for _, p := range botIPPatterns {
			if strings.HasPrefix(ip, p.prefix) {
				confidence += 80
				botType = p.botType
				reasons = append(reasons, p.reason)
				break
			}
		}
	}

	if userAgent != "" {
		ua := strings.ToLower(userAgent)

		isSocialApp := false
		for _, sig := range socialAppSignatures {
			if strings.Contains(ua, sig) {
				isSocialApp = true
				confidence -= 50
				reasons = append(reasons, "Social In-App Browser detected (Whitelist)")
				break
			}
		}

		for _, sig := range botUASignatures {
			if !strings.Contains(ua, sig) {
				continue
			}

			// facebookexternalhit together with the FBAN/FBAV app markers is
			// the Facebook app itself sharing a link, not the crawler.
			if strings.Contains(ua, "facebookexternalhit") &&
				(strings.Contains(userAgent, "FBAN") || strings.Contains(userAgent, "FBAV")) {
				confidence -= 30
				reasons = append(reasons, "Facebook App user detected")
				continue
			}

			if !isSocialApp {
				confidence += 60
				reasons = append(reasons, "Bot User-Agent pattern confirmed")
			} else {
				reasons = append(reasons, "Bot pattern matched but ignored due to Social App Whitelist")
			}

			if botType == "" {
				switch {
				case strings.Contains(ua, "facebook") && !isSocialApp:
					botType = "facebook_bot"
				case strings.Contains(ua, "google"):
					botType = "googlebot"
				case strings.Contains(ua, "twitter") && !isSocialApp:
					botType = "twitterbot"
				case strings.Contains(ua, "linkedin"):
					botType = "linkedinbot"
				case !isSocialApp:
					botType = "generic_bot"
				}
			}

			break
		}

		if len(ua) < 20 {
			confidence += 10
			reasons = append(reasons, "Suspiciously short User-Agent")
		}

		hasBrowserToken := false
		for _, tok := range browserTokens {
			if strings.Contains(ua, tok) {
				hasBrowserToken = true
				break
			}
		}
		if !hasBrowserToken {
			confidence += 20
			reasons = append(reasons, "Missing common browser indicators")
		}
	}

	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}

	if len(reasons) == 0 {
		reasons = []string{"Normal user detected"}
	}

	return Result{
		IsBot:      confidence >= botThreshold,
		BotType:    botType,
		Confidence: confidence,
		Reasons:    reasons,
	}
}

// IsBot is a convenience wrapper around Classify.
func IsBot(ip, userAgent string) bool {
	return Classify(ip, userAgent).IsBot
}

// VisitSignals is the subset of a recorded visit the detector needs.
type VisitSignals interface {
	BotSignals() (ip, userAgent string)
}

// Stats aggregates bot/human counts over recorded visits.
type Stats struct {
	Total         int            `json:"total"`
	Bots          int            `json:"bots"`
	Humans        int            `json:"humans"`
	BotPercentage int            `json:"bot_percentage"`
	BotTypes      map[string]int `json:"bot_types"`
}

// FilterVisits returns only the visits classified as human.
func FilterVisits[T VisitSignals](visits []T) []T {
	out := make([]T, 0, len(visits))
	for _, v := range visits {
		ip, ua := v.BotSignals()
		if !Classify(ip, ua).IsBot {
			out = append(out, v)
		}
	}
	return out
}

// VisitStats classifies every visit and returns aggregate counts by bot type.
func VisitStats[T VisitSignals](visits []T) Stats {
	stats := Stats{BotTypes: make(map[string]int)}
	stats.Total = len(visits)
	if len(visits) == 0 {
		return stats
	}

	for _, v := range visits {
		ip, ua := v.BotSignals()
		res := Classify(ip, ua)
		if res.IsBot {
			stats.Bots++
			t := res.BotType
			if t == "" {
				t = "unknown"
			}
			stats.BotTypes[t]++
		}
	}

	stats.Humans = stats.Total - stats.Bots
	stats.BotPercentage = int(float64(stats.Bots)/float64(stats.Total)*100 + 0.5)
	return stats
}
