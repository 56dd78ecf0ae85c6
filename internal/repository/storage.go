package repository

import (
	"AgencyTrack-Backend/internal/domain"
	"context"
	"errors"
	"time"
)

var (
	ErrTrackingCodeNotFound = errors.New("tracking code not found")
	ErrTrackingCodeExists   = errors.New("tracking code already exists")
	ErrAgencyNotFound       = errors.New("agency not found")
	ErrServiceNotFound      = errors.New("service not found")
	ErrDuplicateConversion  = errors.New("conversion already recorded")
)

// AgencyStats are the aggregate counters shown on the agency dashboard.
type AgencyStats struct {
	LinkCount       int64 `json:"link_count"`
	VisitCount      int64 `json:"visit_count"`
	ConversionCount int64 `json:"conversion_count"`
}

// Storage is the persistence boundary shared by the redirect and webhook
// paths. Implementations must provide the concurrency semantics the
// attribution core depends on: ClaimVisit/ClaimSession are conditional
// updates that fail when the row is already matched, counter increments are
// atomic, and CreateConversion enforces line_friend uniqueness per
// (tracking_link, line_user).
type Storage interface {
	// Agencies
	GetAgencyByEmail(ctx context.Context, email string) (*domain.Agency, error)
	GetAgencyByID(ctx context.Context, id string) (*domain.Agency, error)
	CreateAgency(ctx context.Context, agency *domain.Agency) error

	// Services
	GetServiceByCode(ctx context.Context, code string) (*domain.Service, error)
	CreateService(ctx context.Context, service *domain.Service) error

	// Tracking links
	CreateTrackingLink(ctx context.Context, link *domain.TrackingLink) error
	GetTrackingLinkByCode(ctx context.Context, code string) (*domain.TrackingLink, error)
	GetTrackingLink(ctx context.Context, id string) (*domain.TrackingLink, error)
	TrackingCodeExists(ctx context.Context, code string) (bool, error)
	ListAgencyLinks(ctx context.Context, agencyID string) ([]*domain.TrackingLink, error)
	IncrementLinkVisits(ctx context.Context, linkID string) error
	IncrementLinkConversions(ctx context.Context, linkID string) error

	// Visits and sessions
	CreateVisit(ctx context.Context, visit *domain.Visit) error
	CreateSession(ctx context.Context, session *domain.Session) error
	ListVisitsByLink(ctx context.Context, linkID string, limit int) ([]*domain.Visit, error)

	// Attribution queries. Both listings return unmatched rows
	// (line_user_id is null) newest-first within the window.
	ListUnmatchedVisits(ctx context.Context, since time.Time) ([]*domain.Visit, error)
	LatestUnmatchedSession(ctx context.Context, since time.Time) (*domain.Session, error)

	// Linkage commits. Return false without error when another webhook
	// already claimed the row.
	ClaimVisit(ctx context.Context, visitID, lineUserID string) (bool, error)
	ClaimSession(ctx context.Context, sessionID, lineUserID string, now time.Time) (bool, error)

	// Conversions
	HasConversion(ctx context.Context, trackingLinkID, lineUserID, conversionType string) (bool, error)
	CreateConversion(ctx context.Context, conversion *domain.Conversion) error
	AgencyStats(ctx context.Context, agencyID string) (*AgencyStats, error)

	// LINE profiles
	UpsertLineProfile(ctx context.Context, profile *domain.LineProfile) error
	SetLineProfileBlocked(ctx context.Context, lineUserID string, blocked bool) error
	TouchLineProfile(ctx context.Context, lineUserID string) error
}
