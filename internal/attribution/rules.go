package attribution

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/pkg/useragent"
	"strings"
	"time"
)

// unknownIP is the sentinel stored when the client IP could not be
// determined. It must never count as an IP match.
const unknownIP = "unknown"

// Signals is the webhook request's fingerprint the visit candidates are
// scored against. Service supplies the penalty domain list; a nil Service
// disables the official-site penalty.
type Signals struct {
	IP        string
	UserAgent string
	Now       time.Time
	Service   *domain.Service
}

// Rule scores one independent signal on a candidate visit. Delta returns 0
// when the rule does not apply. Rules that are mutually exclusive (the three
// User-Agent rules) encode the exclusion in their own condition, so each
// rule stays a pure function of (visit, signals).
type Rule struct {
	Name  string
	Delta func(v *domain.Visit, sig Signals) float64
}

// ScoreRules is the ordered score table used by the tier-2 visit matcher.
var ScoreRules = []Rule{
	{Name: "ip_match", Delta: ipMatch},
	{Name: "ua_exact", Delta: uaExact},
	{Name: "ua_line_app", Delta: uaLineApp},
	{Name: "ua_browser_family", Delta: uaBrowserFamily},
	{Name: "time_proximity", Delta: timeProximity},
	{Name: "has_session", Delta: hasSession},
	{Name: "has_tracking_link", Delta: hasTrackingLink},
	{Name: "has_browser", Delta: hasBrowser},
	{Name: "official_site_referrer", Delta: officialSiteReferrer},
}

// ScoreVisit runs the full rule table and returns the additive score.
func ScoreVisit(v *domain.Visit, sig Signals) float64 {
	var total float64
	for _, r := range ScoreRules {
		total += r.Delta(v, sig)
	}
	return total
}

func ipMatch(v *domain.Visit, sig Signals) float64 {
	ip := deref(v.VisitorIP)
	if ip == "" || sig.IP == "" || sig.IP == unknownIP {
		return 0
	}
	if ip == sig.IP {
		return 10
	}
	return 0
}

func uaExactEqual(v *domain.Visit, sig Signals) bool {
	ua := deref(v.UserAgent)
	return ua != "" && sig.UserAgent != "" && strings.EqualFold(ua, sig.UserAgent)
}

func uaBothLine(v *domain.Visit, sig Signals) bool {
	ua := strings.ToLower(deref(v.UserAgent))
	req := strings.ToLower(sig.UserAgent)
	return strings.Contains(ua, "line") && strings.Contains(req, "line")
}

func uaExact(v *domain.Visit, sig Signals) float64 {
	if uaExactEqual(v, sig) {
		return 10
	}
	return 0
}

func uaLineApp(v *domain.Visit, sig Signals) float64 {
	if uaExactEqual(v, sig) {
		return 0
	}
	if uaBothLine(v, sig) {
		return 7
	}
	return 0
}

func uaBrowserFamily(v *domain.Visit, sig Signals) float64 {
	if uaExactEqual(v, sig) || uaBothLine(v, sig) {
		return 0
	}
	visitFamily := useragent.ExtractFamily(deref(v.UserAgent))
	reqFamily := useragent.ExtractFamily(sig.UserAgent)
	if visitFamily != "unknown" && visitFamily == reqFamily {
		return 3
	}
	return 0
}

func timeProximity(v *domain.Visit, sig Signals) float64 {
	age := sig.Now.Sub(v.CreatedAt).Minutes()
	if age >= 10 {
		return 0
	}
	if age < 0 {
		age = 0
	}
	return 10 - age
}

func hasSession(v *domain.Visit, _ Signals) float64 {
	if deref(v.SessionID) != "" {
		return 20
	}
	return 0
}

func hasTrackingLink(v *domain.Visit, _ Signals) float64 {
	if v.TrackingLinkID != nil {
		return 15
	}
	return 0
}

func hasBrowser(v *domain.Visit, _ Signals) float64 {
	if deref(v.Browser) != "" {
		return 5
	}
	return 0
}

// officialSiteReferrer penalizes organic traffic from the service's own
// marketing pages: a visit with no tracking link whose referrer points at a
// penalty domain must not be credited to whichever agency clicked last.
func officialSiteReferrer(v *domain.Visit, sig Signals) float64 {
	if v.TrackingLinkID != nil {
		return 0
	}
	if sig.Service.IsOfficialReferrer(deref(v.Referrer)) {
		return -50
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
