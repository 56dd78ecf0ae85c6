package service

import (
	"AgencyTrack-Backend/internal/config"
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"AgencyTrack-Backend/pkg/random"
	"context"
	"fmt"
)

const maxRetries = 5

// CreateLinkInput is the agency-facing request to mint a tracking link.
type CreateLinkInput struct {
	Name           string
	ServiceCode    string
	CustomCode     string
	DestinationURL string
	UTMSource      string
	UTMMedium      string
	UTMCampaign    string
	UTMTerm        string
	UTMContent     string
}

// TrackingLinkService mints tracking links with unique codes.
type TrackingLinkService struct {
	storage repository.Storage
	config  *config.Tracking
}

func NewTrackingLinkService(storage repository.Storage, cfg *config.Tracking) *TrackingLinkService {
	return &TrackingLinkService{
		storage: storage,
		config:  cfg,
	}
}

// CreateLink creates a tracking link for an agency. A custom code is taken
// as-is (conflict is an error); otherwise a random code is generated with
// collision retry.
func (s *TrackingLinkService) CreateLink(ctx context.Context, agencyID string, input CreateLinkInput) (*domain.TrackingLink, error) {
	var code string
	if input.CustomCode != "" {
		code = input.CustomCode
		exists, err := s.storage.TrackingCodeExists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to check custom code existence: %w", err)
		}
		if exists {
			return nil, repository.ErrTrackingCodeExists
		}
	} else {
		var err error
		for i := 0; i < maxRetries; i++ {
			code, err = random.NewRandomString(s.config.CodeLength)
			if err != nil {
				return nil, fmt.Errorf("failed to generate tracking code: %w", err)
			}
			exists, err := s.storage.TrackingCodeExists(ctx, code)
			if err != nil {
				return nil, fmt.Errorf("failed to check code existence: %w", err)
			}
			if !exists {
				break
			}
		}
	}

	link := &domain.TrackingLink{
		AgencyID:     agencyID,
		Name:         input.Name,
		TrackingCode: code,
		IsActive:     true,
	}

	if input.ServiceCode != "" {
		svc, err := s.storage.GetServiceByCode(ctx, input.ServiceCode)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve service %q: %w", input.ServiceCode, err)
		}
		link.ServiceID = &svc.ID
		link.Service = svc
	}

	setOpt := func(dst **string, val string) {
		if val != "" {
			v := val
			*dst = &v
		}
	}
	setOpt(&link.DestinationURL, input.DestinationURL)
	setOpt(&link.UTMSource, input.UTMSource)
	setOpt(&link.UTMMedium, input.UTMMedium)
	setOpt(&link.UTMCampaign, input.UTMCampaign)
	setOpt(&link.UTMTerm, input.UTMTerm)
	setOpt(&link.UTMContent, input.UTMContent)

	if link.Destination() == "" {
		return nil, fmt.Errorf("link has no destination: set a destination URL or pick a service with a LINE official URL")
	}

	if err := s.storage.CreateTrackingLink(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to save tracking link: %w", err)
	}

	return link, nil
}
