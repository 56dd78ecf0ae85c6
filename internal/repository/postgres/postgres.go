package postgres

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PostgresStorage implements repository.Storage on top of gorm.
type PostgresStorage struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *PostgresStorage {
	return &PostgresStorage{db: db, log: log}
}

// --- Agencies ---

func (s *PostgresStorage) GetAgencyByEmail(ctx context.Context, email string) (*domain.Agency, error) {
	var agency domain.Agency
	err := s.db.WithContext(ctx).Where("email = ? AND is_active = ?", email, true).First(&agency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrAgencyNotFound
	}
	if err != nil {
		s.log.Error("failed to get agency by email", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("failed to get agency: %w", err)
	}
	return &agency, nil
}

func (s *PostgresStorage) GetAgencyByID(ctx context.Context, id string) (*domain.Agency, error) {
	var agency domain.Agency
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&agency).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrAgencyNotFound
	}
	if err != nil {
		s.log.Error("failed to get agency", zap.String("agency_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get agency: %w", err)
	}
	return &agency, nil
}

func (s *PostgresStorage) CreateAgency(ctx context.Context, agency *domain.Agency) error {
	if err := s.db.WithContext(ctx).Create(agency).Error; err != nil {
		s.log.Error("failed to create agency", zap.String("email", agency.Email), zap.Error(err))
		return fmt.Errorf("failed to create agency: %w", err)
	}
	return nil
}

// --- Services ---

func (s *PostgresStorage) GetServiceByCode(ctx context.Context, code string) (*domain.Service, error) {
	var svc domain.Service
	err := s.db.WithContext(ctx).Where("code = ? AND is_active = ?", code, true).First(&svc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrServiceNotFound
	}
	if err != nil {
		s.log.Error("failed to get service", zap.String("code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

func (s *PostgresStorage) CreateService(ctx context.Context, service *domain.Service) error {
	if err := s.db.WithContext(ctx).Create(service).Error; err != nil {
		s.log.Error("failed to create service", zap.String("code", service.Code), zap.Error(err))
		return fmt.Errorf("failed to create service: %w", err)
	}
	return nil
}

// --- Tracking links ---

func (s *PostgresStorage) CreateTrackingLink(ctx context.Context, link *domain.TrackingLink) error {
	var existing domain.TrackingLink
	err := s.db.WithContext(ctx).Where("tracking_code = ?", link.TrackingCode).First(&existing).Error
	if err == nil {
		return repository.ErrTrackingCodeExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check tracking code: %w", err)
	}

	if err := s.db.WithContext(ctx).Create(link).Error; err != nil {
		s.log.Error("failed to create tracking link", zap.String("tracking_code", link.TrackingCode), zap.Error(err))
		return fmt.Errorf("failed to create tracking link: %w", err)
	}

	s.log.Info("created tracking link",
		zap.String("tracking_code", link.TrackingCode),
		zap.String("agency_id", link.AgencyID))
	return nil
}

func (s *PostgresStorage) GetTrackingLinkByCode(ctx context.Context, code string) (*domain.TrackingLink, error) {
	var link domain.TrackingLink
	err := s.db.WithContext(ctx).
		Preload("Service").
		Where("tracking_code = ? AND is_active = ?", code, true).
		First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrTrackingCodeNotFound
	}
	if err != nil {
		s.log.Error("failed to get tracking link", zap.String("tracking_code", code), zap.Error(err))
		return nil, fmt.Errorf("failed to get tracking link: %w", err)
	}
	return &link, nil
}

func (s *PostgresStorage) GetTrackingLink(ctx context.Context, id string) (*domain.TrackingLink, error) {
	var link domain.TrackingLink
	err := s.db.WithContext(ctx).Preload("Service").Where("id = ?", id).First(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrTrackingCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking link: %w", err)
	}
	return &link, nil
}

func (s *PostgresStorage) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.TrackingLink{}).
		Where("tracking_code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check tracking code: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresStorage) ListAgencyLinks(ctx context.Context, agencyID string) ([]*domain.TrackingLink, error) {
	var links []*domain.TrackingLink
	err := s.db.WithContext(ctx).
		Preload("Service").
		Where("agency_id = ? AND is_active = ?", agencyID, true).
		Order("created_at DESC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list agency links: %w", err)
	}
	return links, nil
}

// Counter updates are single SQL expressions, not read-modify-write, so
// concurrent clicks cannot lose increments.
func (s *PostgresStorage) IncrementLinkVisits(ctx context.Context, linkID string) error {
	err := s.db.WithContext(ctx).Model(&domain.TrackingLink{}).
		Where("id = ?", linkID).
		Update("visit_count", gorm.Expr("visit_count + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment visit count: %w", err)
	}
	return nil
}

func (s *PostgresStorage) IncrementLinkConversions(ctx context.Context, linkID string) error {
	err := s.db.WithContext(ctx).Model(&domain.TrackingLink{}).
		Where("id = ?", linkID).
		Update("conversion_count", gorm.Expr("conversion_count + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment conversion count: %w", err)
	}
	return nil
}

// --- Visits and sessions ---

func (s *PostgresStorage) CreateVisit(ctx context.Context, visit *domain.Visit) error {
	if err := s.db.WithContext(ctx).Create(visit).Error; err != nil {
		s.log.Error("failed to create visit", zap.Error(err))
		return fmt.Errorf("failed to create visit: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CreateSession(ctx context.Context, session *domain.Session) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		s.log.Error("failed to create session", zap.Error(err))
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListVisitsByLink(ctx context.Context, linkID string, limit int) ([]*domain.Visit, error) {
	var visits []*domain.Visit
	q := s.db.WithContext(ctx).
		Where("tracking_link_id = ?", linkID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&visits).Error; err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return visits, nil
}

// --- Attribution queries ---

func (s *PostgresStorage) ListUnmatchedVisits(ctx context.Context, since time.Time) ([]*domain.Visit, error) {
	var visits []*domain.Visit
	err := s.db.WithContext(ctx).
		Where("line_user_id IS NULL AND created_at >= ?", since).
		Order("created_at DESC").
		Find(&visits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unmatched visits: %w", err)
	}
	return visits, nil
}

func (s *PostgresStorage) LatestUnmatchedSession(ctx context.Context, since time.Time) (*domain.Session, error) {
	var session domain.Session
	err := s.db.WithContext(ctx).
		Where("line_user_id IS NULL AND last_activity_at >= ?", since).
		Order("last_activity_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	return &session, nil
}

// ClaimVisit links a LINE user to a visit, but only while the visit is still
// unmatched. The null-check in the WHERE clause is the compare-and-swap that
// prevents two near-simultaneous follow events from claiming the same visit:
// the loser sees zero rows affected and reports no match.
func (s *PostgresStorage) ClaimVisit(ctx context.Context, visitID, lineUserID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&domain.Visit{}).
		Where("id = ? AND line_user_id IS NULL", visitID).
		Update("line_user_id", lineUserID)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim visit: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *PostgresStorage) ClaimSession(ctx context.Context, sessionID, lineUserID string, now time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND line_user_id IS NULL", sessionID).
		Updates(map[string]any{
			"line_user_id":     lineUserID,
			"line_friend_at":   now,
			"last_activity_at": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// --- Conversions ---

func (s *PostgresStorage) HasConversion(ctx context.Context, trackingLinkID, lineUserID, conversionType string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.Conversion{}).
		Where("tracking_link_id = ? AND line_user_id = ? AND conversion_type = ?",
			trackingLinkID, lineUserID, conversionType).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check conversion: %w", err)
	}
	return count > 0, nil
}

// CreateConversion inserts the conversion row. The unique index on
// (tracking_link_id, line_user_id, conversion_type) is the real idempotency
// guard; a violation maps to ErrDuplicateConversion so callers can no-op.
func (s *PostgresStorage) CreateConversion(ctx context.Context, conversion *domain.Conversion) error {
	err := s.db.WithContext(ctx).Create(conversion).Error
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicateConversion
		}
		s.log.Error("failed to create conversion",
			zap.String("line_user_id", conversion.LineUserID), zap.Error(err))
		return fmt.Errorf("failed to create conversion: %w", err)
	}

	s.log.Info("recorded conversion",
		zap.String("agency_id", conversion.AgencyID),
		zap.String("line_user_id", conversion.LineUserID),
		zap.String("conversion_type", conversion.ConversionType))
	return nil
}

func (s *PostgresStorage) AgencyStats(ctx context.Context, agencyID string) (*repository.AgencyStats, error) {
	stats := &repository.AgencyStats{}

	err := s.db.WithContext(ctx).Model(&domain.TrackingLink{}).
		Where("agency_id = ? AND is_active = ?", agencyID, true).
		Count(&stats.LinkCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&domain.Visit{}).
		Where("agency_id = ?", agencyID).
		Count(&stats.VisitCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count visits: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&domain.Conversion{}).
		Where("agency_id = ?", agencyID).
		Count(&stats.ConversionCount).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count conversions: %w", err)
	}

	return stats, nil
}

// --- LINE profiles ---

func (s *PostgresStorage) UpsertLineProfile(ctx context.Context, profile *domain.LineProfile) error {
	var existing domain.LineProfile
	err := s.db.WithContext(ctx).Where("line_user_id = ?", profile.LineUserID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := s.db.WithContext(ctx).Create(profile).Error; err != nil {
			return fmt.Errorf("failed to create line profile: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to query line profile: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&existing).Updates(map[string]any{
		"display_name":   profile.DisplayName,
		"picture_url":    profile.PictureURL,
		"status_message": profile.StatusMessage,
		"blocked":        false,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update line profile: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SetLineProfileBlocked(ctx context.Context, lineUserID string, blocked bool) error {
	err := s.db.WithContext(ctx).Model(&domain.LineProfile{}).
		Where("line_user_id = ?", lineUserID).
		Update("blocked", blocked).Error
	if err != nil {
		return fmt.Errorf("failed to update blocked status: %w", err)
	}
	return nil
}

func (s *PostgresStorage) TouchLineProfile(ctx context.Context, lineUserID string) error {
	err := s.db.WithContext(ctx).Model(&domain.LineProfile{}).
		Where("line_user_id = ?", lineUserID).
		Update("updated_at", time.Now()).Error
	if err != nil {
		return fmt.Errorf("failed to touch line profile: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	// 23505 is the postgres unique_violation code; match on message to stay
	// driver-agnostic (sqlite in local runs reports "UNIQUE constraint").
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint")
}
