package attribution

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository/memory"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedVisit(t *testing.T, store *memory.MemStorage, v *domain.Visit) *domain.Visit {
	t.Helper()
	require.NoError(t, store.CreateVisit(context.Background(), v))
	return v
}

func seedSession(t *testing.T, store *memory.MemStorage, s *domain.Session) *domain.Session {
	t.Helper()
	require.NoError(t, store.CreateSession(context.Background(), s))
	return s
}

func TestMatchAndLink_SessionTierWins(t *testing.T) {
	store := memory.New()
	matcher := NewMatcher(store, zap.NewNop())
	now := time.Now()
	ctx := context.Background()

	visit := seedVisit(t, store, &domain.Visit{
		TrackingLinkID: strPtr("link-1"),
		AgencyID:       strPtr("agency-1"),
		VisitorIP:      strPtr("1.2.3.4"),
		SessionID:      strPtr("sess_abc"),
		CreatedAt:      now.Add(-3 * time.Minute),
	})
	sess := seedSession(t, store, &domain.Session{
		SessionToken:   "sess_abc",
		TrackingLinkID: strPtr("link-1"),
		AgencyID:       strPtr("agency-1"),
		VisitID:        &visit.ID,
		LastActivityAt: now.Add(-3 * time.Minute),
	})

	match, err := matcher.MatchAndLink(ctx, "U1234", Signals{IP: "1.2.3.4", Now: now})
	require.NoError(t, err)
	require.NotNil(t, match)
	require.NotNil(t, match.Session)
	assert.Nil(t, match.Visit)
	assert.Zero(t, match.Score) // no scoring on the session tier
	assert.Equal(t, sess.ID, match.Session.ID)
	require.NotNil(t, match.Session.LineUserID)
	assert.Equal(t, "U1234", *match.Session.LineUserID)
	assert.NotNil(t, match.Session.LineFriendAt)

	// The paired visit left the candidate pool too.
	unmatched, err := store.ListUnmatchedVisits(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, unmatched)
}

func TestMatchAndLink_NewestSessionPreferred(t *testing.T) {
	store := memory.New()
	matcher := NewMatcher(store, zap.NewNop())
	now := time.Now()

	seedSession(t, store, &domain.Session{
		SessionToken:   "sess_old",
		LastActivityAt: now.Add(-90 * time.Minute),
	})
	newest := seedSession(t, store, &domain.Session{
		SessionToken:   "sess_new",
		LastActivityAt: now.Add(-5 * time.Minute),
	})

	match, err := matcher.MatchAndLink(context.Background(), "U1", Signals{Now: now})
	require.NoError(t, err)
	require.NotNil(t, match)
	require.NotNil(t, match.Session)
	assert.Equal(t, newest.ID, match.Session.ID)
}

func TestMatchAndLink_ExpiredSessionFallsToVisitScoring(t *testing.T) {
	store := memory.New()
	matcher := NewMatcher(store, zap.NewNop())
	now := time.Now()

	seedSession(t, store, &domain.Session{
		SessionToken:   "sess_stale",
		LastActivityAt: now.Add(-3 * time.Hour), // outside the 2h window
	})
	visit := seedVisit(t, store, &domain.Visit{
		TrackingLinkID: strPtr("link-1"),
		AgencyID:       strPtr("agency-1"),
		VisitorIP:      strPtr("1.2.3.4"),
		CreatedAt:      now.Add(-2 * time.Minute),
	})

	match, err := matcher.MatchAndLink(context.Background(), "U2", Signals{IP: "1.2.3.4", Now: now})
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Nil(t, match.Session)
	require.NotNil(t, match.Visit)
	assert.Equal(t, visit.ID, match.Visit.ID)
	assert.Greater(t, match.Score, 0.0)
}

func TestMatchAndLink_HighestScoringVisitWins(t *testing.T) {
	store := memory.New()
	matcher := NewMatcher(store, zap.NewNop())
	now := time.Now()

	// X: fresh IP match only (19). Y: older but with session and link (37).
	seedVisit(t, store, &domain.Visit{
		VisitorIP: strPtr("1.2.3.4"),
		CreatedAt: now.Add(-1 * time.Minute),
	})
	visitY := seedVisit(t, store, &domain.Visit{
		VisitorIP:      strPtr("9.9.9.9"),
		SessionID:      strPtr("sess_y"),
		TrackingLinkID: strPtr("link-y"),
		AgencyID:       strPtr("agency-y"),
		CreatedAt:      now.Add(-8 * time.Minute),
	})

	match, err := matcher.MatchAndLink(context.Background(), "U3", Signals{IP: "1.2.3.4", Now: now})
	require.NoError(t, err)
	require.NotNil(t, match)
	require.NotNil(t, match.Visit)
	assert.Equal(t, visitY.ID, match.Visit.ID)
	assert.InDelta(t, 37.0, match.Score, 0.01)
}

func TestMatchAndLink_PenalizedOrganicVisitRejected(t *testing.T) {
	store := memory.New()
	matcher := NewMatcher(store, zap.NewNop())
	now := time.Now()

	service := &domain.Service{
		Code:           "taskmate",
		PenaltyDomains: domain.StringList{"taskmateai.net"},
	}
	seedVisit(t, store, &domain.Visit{
		VisitorIP: strPtr("1.2.3.4"),
		Referrer:  strPtr("https://taskmateai.net/"),
		CreatedAt: now.Add(-1 * time.Minute),
	})

	match, err := matcher.MatchAndLink(context.Background(), "U4", Signals{
		IP:      "1.2.3.4",
		Now:     now,
		Service: service,
	})
	require.NoError(t, err)
	assert.Nil(t, match, "negative-scored organic visit must not attribute")
}

func TestMatchAndLink_NoCandidates(t *testing.T) {
	store := memory.New()
	matcher := NewMatcher(store, zap.NewNop())

	match, err := matcher.MatchAndLink(context.Background(), "U5", Signals{Now: time.Now()})
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestMatchAndLink_ClaimedRowsAreNotRematched(t *testing.T) {
	store := memory.New()
	matcher := NewMatcher(store, zap.NewNop())
	now := time.Now()
	ctx := context.Background()

	seedVisit(t, store, &domain.Visit{
		VisitorIP: strPtr("1.2.3.4"),
		SessionID: strPtr("sess_a"),
		CreatedAt: now.Add(-1 * time.Minute),
	})

	first, err := matcher.MatchAndLink(ctx, "U6", Signals{IP: "1.2.3.4", Now: now})
	require.NoError(t, err)
	require.NotNil(t, first)

	// Second identity arrives moments later: the row is taken.
	second, err := matcher.MatchAndLink(ctx, "U7", Signals{IP: "1.2.3.4", Now: now})
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestRecordLineFriend_Idempotent(t *testing.T) {
	store := memory.New()
	recorder := NewRecorder(store, zap.NewNop())
	now := time.Now()
	ctx := context.Background()

	link := &domain.TrackingLink{
		ID:           "link-1",
		AgencyID:     "agency-1",
		TrackingCode: "abcd",
		IsActive:     true,
	}
	require.NoError(t, store.CreateTrackingLink(ctx, link))

	match := &Match{Visit: &domain.Visit{
		ID:             "visit-1",
		TrackingLinkID: strPtr("link-1"),
		AgencyID:       strPtr("agency-1"),
		Referrer:       strPtr("https://example.com/ad"),
		Browser:        strPtr("line"),
		CreatedAt:      now,
	}}

	require.NoError(t, recorder.RecordLineFriend(ctx, match, "U100"))
	require.NoError(t, recorder.RecordLineFriend(ctx, match, "U100"))

	stats, err := store.AgencyStats(ctx, "agency-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ConversionCount)

	got, err := store.GetTrackingLink(ctx, "link-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ConversionCount)
}

func TestRecordLineFriend_NoTrackingLinkSkipsConversion(t *testing.T) {
	store := memory.New()
	recorder := NewRecorder(store, zap.NewNop())
	ctx := context.Background()

	match := &Match{Visit: &domain.Visit{ID: "visit-1", AgencyID: strPtr("agency-1")}}
	require.NoError(t, recorder.RecordLineFriend(ctx, match, "U101"))

	stats, err := store.AgencyStats(ctx, "agency-1")
	require.NoError(t, err)
	assert.Zero(t, stats.ConversionCount)
}

func TestRecordLineFriend_MetadataSnapshot(t *testing.T) {
	store := memory.New()
	recorder := NewRecorder(store, zap.NewNop())
	ctx := context.Background()

	match := &Match{
		Visit: &domain.Visit{
			ID:             "visit-2",
			TrackingLinkID: strPtr("link-2"),
			AgencyID:       strPtr("agency-2"),
			Referrer:       strPtr("https://instagram.com/"),
			DeviceType:     strPtr("mobile"),
			Browser:        strPtr("line"),
			OS:             strPtr("iOS"),
			Metadata:       domain.JSONMap{"utm_source": "ig", "utm_medium": "social"},
		},
		Score: 42,
	}
	require.NoError(t, recorder.RecordLineFriend(ctx, match, "U102"))

	has, err := store.HasConversion(ctx, "link-2", "U102", domain.ConversionTypeLineFriend)
	require.NoError(t, err)
	assert.True(t, has)
}
