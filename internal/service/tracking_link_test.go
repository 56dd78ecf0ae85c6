package service

import (
	"AgencyTrack-Backend/internal/config"
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"AgencyTrack-Backend/internal/repository/memory"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newService(t *testing.T) (*TrackingLinkService, *memory.MemStorage) {
	t.Helper()
	store := memory.New()
	cfg := &config.Tracking{CodeLength: 8}
	return NewTrackingLinkService(store, cfg), store
}

func TestCreateLink_GeneratesCode(t *testing.T) {
	svc, _ := newService(t)

	link, err := svc.CreateLink(context.Background(), "agency-1", CreateLinkInput{
		Name:           "Instagram campaign",
		DestinationURL: "https://line.me/R/ti/p/@example",
		UTMSource:      "instagram",
	})
	require.NoError(t, err)
	assert.Len(t, link.TrackingCode, 8)
	assert.Equal(t, "agency-1", link.AgencyID)
	assert.True(t, link.IsActive)
	require.NotNil(t, link.UTMSource)
	assert.Equal(t, "instagram", *link.UTMSource)
}

func TestCreateLink_CustomCodeConflict(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.CreateLink(ctx, "agency-1", CreateLinkInput{
		CustomCode:     "summer24",
		DestinationURL: "https://line.me/R/ti/p/@example",
	})
	require.NoError(t, err)

	_, err = svc.CreateLink(ctx, "agency-2", CreateLinkInput{
		CustomCode:     "summer24",
		DestinationURL: "https://line.me/R/ti/p/@other",
	})
	assert.ErrorIs(t, err, repository.ErrTrackingCodeExists)
}

func TestCreateLink_ServiceProvidesDestination(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	require.NoError(t, store.CreateService(ctx, &domain.Service{
		Code:            "taskmate",
		Name:            "TaskMate AI",
		LineOfficialURL: strPtr("https://line.me/R/ti/p/@taskmate"),
		IsActive:        true,
	}))

	link, err := svc.CreateLink(ctx, "agency-1", CreateLinkInput{
		Name:        "TaskMate promo",
		ServiceCode: "taskmate",
	})
	require.NoError(t, err)
	require.NotNil(t, link.ServiceID)
	assert.Equal(t, "https://line.me/R/ti/p/@taskmate", link.Destination())
}

func TestCreateLink_NoDestinationFails(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateLink(context.Background(), "agency-1", CreateLinkInput{Name: "broken"})
	assert.Error(t, err)
}

func TestCreateLink_UnknownService(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.CreateLink(context.Background(), "agency-1", CreateLinkInput{
		ServiceCode:    "nope",
		DestinationURL: "https://example.com",
	})
	assert.ErrorIs(t, err, repository.ErrServiceNotFound)
}
