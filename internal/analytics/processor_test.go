package analytics

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository/memory"
	"AgencyTrack-Backend/pkg/useragent"
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func strPtr(s string) *string { return &s }

func testLink(t *testing.T, store *memory.MemStorage) *domain.TrackingLink {
	t.Helper()
	link := &domain.TrackingLink{
		ID:           "link-1",
		AgencyID:     "agency-1",
		TrackingCode: "abcd",
		UTMSource:    strPtr("instagram"),
		UTMMedium:    strPtr("social"),
		IsActive:     true,
	}
	require.NoError(t, store.CreateTrackingLink(context.Background(), link))
	return link
}

func TestProcessor_RecordsVisitAndSession(t *testing.T) {
	store := memory.New()
	link := testLink(t, store)
	var parser *useragent.Parser // nil parser falls back to substring rules

	p := NewProcessor(store, parser, zap.NewNop(), ProcessorConfig{
		WorkerCount:     1,
		BufferSize:      10,
		RetryAttempts:   1,
		RetryDelay:      time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	require.NoError(t, p.Start())
	defer func() { _ = p.Stop() }()

	now := time.Now()
	err := p.Submit(&VisitData{
		Link:         link,
		VisitorIP:    strPtr("203.0.113.7"),
		UserAgent:    strPtr("Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1 Line/13.5.0"),
		Referrer:     strPtr("https://instagram.com/"),
		SessionToken: "sess_test123",
		QueryParams:  url.Values{"utm_campaign": {"summer"}, "fbclid": {"fb-1"}},
		VisitedAt:    now,
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.Eventually(t, func() bool {
		visits, err := store.ListVisitsByLink(ctx, link.ID, 10)
		return err == nil && len(visits) == 1
	}, 2*time.Second, 10*time.Millisecond)

	visits, err := store.ListVisitsByLink(ctx, link.ID, 10)
	require.NoError(t, err)
	visit := visits[0]
	assert.Equal(t, "sess_test123", *visit.SessionID)
	assert.Equal(t, "instagram", visit.Metadata["utm_source"])
	assert.Equal(t, "summer", visit.Metadata["utm_campaign"], "query param must override link static")
	assert.Equal(t, "fb-1", visit.Metadata["fbclid"])
	require.NotNil(t, visit.Browser)
	assert.Equal(t, "mobile", *visit.DeviceType)

	sess, err := store.LatestUnmatchedSession(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "sess_test123", sess.SessionToken)
	require.NotNil(t, sess.UTMCampaign)
	assert.Equal(t, "summer", *sess.UTMCampaign)

	require.Eventually(t, func() bool {
		got, err := store.GetTrackingLink(ctx, link.ID)
		return err == nil && got.VisitCount == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProcessor_SubmitBeforeStart(t *testing.T) {
	store := memory.New()
	var parser *useragent.Parser
	p := NewProcessor(store, parser, zap.NewNop(), DefaultConfig())

	err := p.Submit(&VisitData{Link: &domain.TrackingLink{TrackingCode: "x"}})
	assert.Error(t, err)
}

func TestMergeUTM_QueryWins(t *testing.T) {
	link := &domain.TrackingLink{
		UTMSource:   strPtr("instagram"),
		UTMCampaign: strPtr("static"),
	}

	utm := MergeUTM(link, url.Values{
		"utm_campaign": {"dynamic"},
		"utm_medium":   {"cpc"},
	})

	assert.Equal(t, "instagram", utm["utm_source"])
	assert.Equal(t, "dynamic", utm["utm_campaign"])
	assert.Equal(t, "cpc", utm["utm_medium"])
}
