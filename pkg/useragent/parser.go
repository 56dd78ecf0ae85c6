// Package useragent derives device metadata from User-Agent strings. Visit
// records get their device_type/browser/os fields from here; the attribution
// matcher uses ExtractFamily for its browser-family signal.
package useragent

import (
	"fmt"
	"os"
	"strings"

	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"
)

// Parser wraps the uap-go User-Agent parser. A nil Parser is usable and
// falls back to substring heuristics, so a missing regexes file degrades
// instead of disabling visit metadata.
type Parser struct {
	parser *uaparser.Parser
	log    *zap.Logger
}

// DeviceInfo is the parsed visit metadata.
type DeviceInfo struct {
	DeviceType string // mobile, tablet, desktop, bot, unknown
	Browser    string // Chrome, Safari, Firefox, Edge, LINE, other
	OS         string // Windows, macOS, Linux, Android, iOS, other
}

// NewParser loads the uap-core regexes file and builds a parser.
func NewParser(regexFilePath string, log *zap.Logger) (*Parser, error) {
	regexBytes, err := os.ReadFile(regexFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read regexes file %s: %w", regexFilePath, err)
	}

	parser, err := uaparser.NewFromBytes(regexBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create User-Agent parser: %w", err)
	}

	log.Info("User-Agent parser initialized", zap.String("regexes_file", regexFilePath))

	return &Parser{parser: parser, log: log}, nil
}

// Parse returns device metadata for a raw User-Agent string.
func (p *Parser) Parse(userAgent string) *DeviceInfo {
	if userAgent == "" {
		return &DeviceInfo{DeviceType: "unknown", Browser: "unknown", OS: "unknown"}
	}

	if p == nil || p.parser == nil {
		return fallbackParse(userAgent)
	}

	client := p.parser.Parse(userAgent)

	info := &DeviceInfo{
		Browser: formatFamily(client.UserAgent.Family),
		OS:      formatFamily(client.Os.Family),
	}
	info.DeviceType = deviceTypeOf(client, userAgent)

	// uap-go does not know the LINE in-app browser; the raw string does.
	if strings.Contains(strings.ToLower(userAgent), "line/") {
		info.Browser = "LINE"
	}

	return info
}

func deviceTypeOf(client *uaparser.Client, userAgent string) string {
	ua := strings.ToLower(userAgent)

	if strings.Contains(ua, "bot") || strings.Contains(ua, "spider") || strings.Contains(ua, "crawler") {
		return "bot"
	}

	osFamily := client.Os.Family
	switch {
	case strings.Contains(osFamily, "iOS"):
		if strings.Contains(userAgent, "iPad") {
			return "tablet"
		}
		return "mobile"
	case strings.Contains(osFamily, "Android"):
		// Android tablets typically omit "Mobile" from the User-Agent.
		if !strings.Contains(userAgent, "Mobile") {
			return "tablet"
		}
		return "mobile"
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"), strings.Contains(ua, "kindle"):
		return "tablet"
	case strings.Contains(ua, "mobile"):
		return "mobile"
	}

	for _, desktop := range []string{"Windows", "Mac OS X", "macOS", "Linux", "Ubuntu", "Chrome OS"} {
		if strings.Contains(osFamily, desktop) {
			return "desktop"
		}
	}

	return "unknown"
}

// fallbackParse mirrors the substring rules used before uap-go was wired in.
func fallbackParse(userAgent string) *DeviceInfo {
	ua := strings.ToLower(userAgent)

	info := &DeviceInfo{DeviceType: "desktop", Browser: "other", OS: "other"}

	switch {
	case strings.Contains(ua, "bot"), strings.Contains(ua, "spider"), strings.Contains(ua, "crawler"):
		info.DeviceType = "bot"
	case strings.Contains(ua, "tablet"), strings.Contains(ua, "ipad"):
		info.DeviceType = "tablet"
	case strings.Contains(ua, "mobile"):
		info.DeviceType = "mobile"
	}

	switch {
	case strings.Contains(ua, "line/"):
		info.Browser = "LINE"
	case strings.Contains(ua, "edge"), strings.Contains(ua, "edg/"):
		info.Browser = "Edge"
	case strings.Contains(ua, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "safari"):
		info.Browser = "Safari"
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "macintosh"), strings.Contains(ua, "mac os x"):
		info.OS = "macOS"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"), strings.Contains(ua, "ipod"):
		info.OS = "iOS"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	return info
}

// ExtractFamily reduces a User-Agent to a coarse browser family. The
// attribution matcher compares the family recorded at redirect time against
// the webhook request, so both sides must run this exact function.
func ExtractFamily(userAgent string) string {
	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "edg/"):
		return "edge"
	case strings.Contains(ua, "chrome/"):
		return "chrome"
	case strings.Contains(ua, "firefox/"):
		return "firefox"
	case strings.Contains(ua, "safari/"):
		return "safari"
	case strings.Contains(ua, "line/"):
		return "line"
	case strings.Contains(ua, "opera/"), strings.Contains(ua, "opr/"):
		return "opera"
	default:
		return "unknown"
	}
}

func formatFamily(s string) string {
	if s == "" || s == "Other" {
		return "unknown"
	}
	return s
}
