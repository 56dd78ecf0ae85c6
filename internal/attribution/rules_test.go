package attribution

import (
	"AgencyTrack-Backend/internal/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func baseSignals(now time.Time) Signals {
	return Signals{
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (iPhone) Line/13.5.0",
		Now:       now,
	}
}

func TestScoreVisit_IPMatch(t *testing.T) {
	now := time.Now()
	sig := Signals{IP: "203.0.113.7", Now: now}

	visit := &domain.Visit{VisitorIP: strPtr("203.0.113.7"), CreatedAt: now}
	other := &domain.Visit{VisitorIP: strPtr("198.51.100.1"), CreatedAt: now}

	assert.InDelta(t, 20.0, ScoreVisit(visit, sig), 0.01) // 10 ip + 10 time
	assert.InDelta(t, 10.0, ScoreVisit(other, sig), 0.01) // time only
}

func TestScoreVisit_UnknownIPNeverMatches(t *testing.T) {
	now := time.Now()
	sig := Signals{IP: "unknown", Now: now}
	visit := &domain.Visit{VisitorIP: strPtr("unknown"), CreatedAt: now}

	assert.InDelta(t, 10.0, ScoreVisit(visit, sig), 0.01) // time only, no ip points
}

func TestScoreVisit_UserAgentRulesAreExclusive(t *testing.T) {
	now := time.Now()
	lineUA := "Mozilla/5.0 (iPhone) Line/13.5.0"

	tests := []struct {
		name     string
		visitUA  string
		reqUA    string
		expected float64 // on top of the 10 time-proximity points
	}{
		{"exact match", lineUA, lineUA, 10},
		{"exact match case-insensitive", "MOZILLA/5.0 (IPHONE) LINE/13.5.0", lineUA, 10},
		{"both line apps, different versions", "Mozilla/5.0 (Android) Line/12.0.1", lineUA, 7},
		{"same browser family only", "Mozilla/5.0 Chrome/120.0 Safari/537.36", "Mozilla/5.0 Chrome/119.0 Safari/537.36", 3},
		{"nothing in common", "Mozilla/5.0 Firefox/115.0", "Mozilla/5.0 Chrome/120.0 Safari/537.36", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			visit := &domain.Visit{UserAgent: strPtr(tt.visitUA), CreatedAt: now}
			sig := Signals{UserAgent: tt.reqUA, Now: now}
			assert.InDelta(t, 10+tt.expected, ScoreVisit(visit, sig), 0.01)
		})
	}
}

func TestScoreVisit_TimeProximityIsContinuous(t *testing.T) {
	now := time.Now()
	sig := Signals{Now: now}

	fresh := &domain.Visit{CreatedAt: now}
	threeMin := &domain.Visit{CreatedAt: now.Add(-3 * time.Minute)}
	nineteen := &domain.Visit{CreatedAt: now.Add(-19 * time.Minute)}

	assert.InDelta(t, 10.0, ScoreVisit(fresh, sig), 0.01)
	assert.InDelta(t, 7.0, ScoreVisit(threeMin, sig), 0.01)
	assert.InDelta(t, 0.0, ScoreVisit(nineteen, sig), 0.01) // clamped, never negative
}

func TestScoreVisit_SessionMonotonicity(t *testing.T) {
	now := time.Now()
	sig := baseSignals(now)

	without := &domain.Visit{
		VisitorIP: strPtr("203.0.113.7"),
		CreatedAt: now.Add(-2 * time.Minute),
	}
	with := &domain.Visit{
		VisitorIP: strPtr("203.0.113.7"),
		SessionID: strPtr("sess_abc123"),
		CreatedAt: now.Add(-2 * time.Minute),
	}

	assert.InDelta(t, ScoreVisit(without, sig)+20, ScoreVisit(with, sig), 0.01)
}

func TestScoreVisit_KnownScenarioScores(t *testing.T) {
	// Two candidates: X is fresh with an IP match only, Y is older but
	// carries a session and a tracking link. Y must win 37 to 19.
	now := time.Now()
	sig := Signals{IP: "203.0.113.7", Now: now}

	visitX := &domain.Visit{
		VisitorIP: strPtr("203.0.113.7"),
		CreatedAt: now.Add(-1 * time.Minute),
	}
	visitY := &domain.Visit{
		VisitorIP:      strPtr("198.51.100.1"),
		SessionID:      strPtr("sess_xyz"),
		TrackingLinkID: strPtr("link-1"),
		CreatedAt:      now.Add(-8 * time.Minute),
	}

	assert.InDelta(t, 19.0, ScoreVisit(visitX, sig), 0.01)
	assert.InDelta(t, 37.0, ScoreVisit(visitY, sig), 0.01)
}

func TestScoreVisit_OfficialSiteReferrerPenalty(t *testing.T) {
	now := time.Now()
	service := &domain.Service{
		PenaltyDomains: domain.StringList{"taskmateai.net", "ikemen.ltd"},
	}
	sig := Signals{IP: "203.0.113.7", Now: now, Service: service}

	organic := &domain.Visit{
		VisitorIP: strPtr("203.0.113.7"),
		Referrer:  strPtr("https://taskmateai.net/pricing"),
		CreatedAt: now,
	}
	// 10 ip + 10 time - 50 penalty
	assert.InDelta(t, -30.0, ScoreVisit(organic, sig), 0.01)

	// A tracking link neutralizes the penalty: the click came through us.
	tracked := &domain.Visit{
		VisitorIP:      strPtr("203.0.113.7"),
		Referrer:       strPtr("https://taskmateai.net/pricing"),
		TrackingLinkID: strPtr("link-1"),
		CreatedAt:      now,
	}
	assert.InDelta(t, 35.0, ScoreVisit(tracked, sig), 0.01)
}

func TestScoreVisit_NilServiceDisablesPenalty(t *testing.T) {
	now := time.Now()
	sig := Signals{Now: now}
	visit := &domain.Visit{
		Referrer:  strPtr("https://taskmateai.net/"),
		CreatedAt: now,
	}
	assert.InDelta(t, 10.0, ScoreVisit(visit, sig), 0.01)
}

func TestScoreRules_AllRulesNamed(t *testing.T) {
	names := make(map[string]bool)
	for _, r := range ScoreRules {
		assert.NotEmpty(t, r.Name)
		assert.False(t, names[r.Name], "duplicate rule name %q", r.Name)
		names[r.Name] = true
	}
	assert.Len(t, ScoreRules, 9)
}
