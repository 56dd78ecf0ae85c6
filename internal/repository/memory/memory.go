// Package memory holds an in-memory Storage used by tests and local runs.
// It mirrors the postgres semantics the attribution core depends on:
// conditional claims, atomic counters, and conversion uniqueness.
package memory

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemStorage struct {
	mu           sync.RWMutex
	agencies     map[string]*domain.Agency
	services     map[string]*domain.Service
	links        map[string]*domain.TrackingLink
	visits       map[string]*domain.Visit
	sessions     map[string]*domain.Session
	conversions  map[string]*domain.Conversion
	lineProfiles map[string]*domain.LineProfile
}

func New() *MemStorage {
	return &MemStorage{
		agencies:     make(map[string]*domain.Agency),
		services:     make(map[string]*domain.Service),
		links:        make(map[string]*domain.TrackingLink),
		visits:       make(map[string]*domain.Visit),
		sessions:     make(map[string]*domain.Session),
		conversions:  make(map[string]*domain.Conversion),
		lineProfiles: make(map[string]*domain.LineProfile),
	}
}

// --- Agencies ---

func (s *MemStorage) GetAgencyByEmail(_ context.Context, email string) (*domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.agencies {
		if a.Email == email && a.IsActive {
			return a, nil
		}
	}
	return nil, repository.ErrAgencyNotFound
}

func (s *MemStorage) GetAgencyByID(_ context.Context, id string) (*domain.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agencies[id]
	if !ok {
		return nil, repository.ErrAgencyNotFound
	}
	return a, nil
}

func (s *MemStorage) CreateAgency(_ context.Context, agency *domain.Agency) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if agency.ID == "" {
		agency.ID = uuid.NewString()
	}
	if agency.CreatedAt.IsZero() {
		agency.CreatedAt = time.Now()
	}
	s.agencies[agency.ID] = agency
	return nil
}

// --- Services ---

func (s *MemStorage) GetServiceByCode(_ context.Context, code string) (*domain.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.Code == code && svc.IsActive {
			return svc, nil
		}
	}
	return nil, repository.ErrServiceNotFound
}

func (s *MemStorage) CreateService(_ context.Context, service *domain.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if service.ID == "" {
		service.ID = uuid.NewString()
	}
	s.services[service.ID] = service
	return nil
}

// --- Tracking links ---

func (s *MemStorage) CreateTrackingLink(_ context.Context, link *domain.TrackingLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.TrackingCode == link.TrackingCode {
			return repository.ErrTrackingCodeExists
		}
	}
	if link.ID == "" {
		link.ID = uuid.NewString()
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	s.links[link.ID] = link
	return nil
}

func (s *MemStorage) GetTrackingLinkByCode(_ context.Context, code string) (*domain.TrackingLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.links {
		if l.TrackingCode == code && l.IsActive {
			return s.withServiceLocked(l), nil
		}
	}
	return nil, repository.ErrTrackingCodeNotFound
}

func (s *MemStorage) GetTrackingLink(_ context.Context, id string) (*domain.TrackingLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[id]
	if !ok {
		return nil, repository.ErrTrackingCodeNotFound
	}
	return s.withServiceLocked(l), nil
}

// withServiceLocked attaches the Service relationship the way the postgres
// implementation preloads it. Caller must hold at least the read lock.
func (s *MemStorage) withServiceLocked(l *domain.TrackingLink) *domain.TrackingLink {
	if l.ServiceID != nil {
		if svc, ok := s.services[*l.ServiceID]; ok {
			cp := *l
			cp.Service = svc
			return &cp
		}
	}
	return l
}

func (s *MemStorage) TrackingCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.links {
		if l.TrackingCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStorage) ListAgencyLinks(_ context.Context, agencyID string) ([]*domain.TrackingLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var links []*domain.TrackingLink
	for _, l := range s.links {
		if l.AgencyID == agencyID && l.IsActive {
			links = append(links, s.withServiceLocked(l))
		}
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.After(links[j].CreatedAt) })
	return links, nil
}

func (s *MemStorage) IncrementLinkVisits(_ context.Context, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.links[linkID]; ok {
		l.VisitCount++
	}
	return nil
}

func (s *MemStorage) IncrementLinkConversions(_ context.Context, linkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.links[linkID]; ok {
		l.ConversionCount++
	}
	return nil
}

// --- Visits and sessions ---

func (s *MemStorage) CreateVisit(_ context.Context, visit *domain.Visit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if visit.ID == "" {
		visit.ID = uuid.NewString()
	}
	if visit.CreatedAt.IsZero() {
		visit.CreatedAt = time.Now()
	}
	s.visits[visit.ID] = visit
	return nil
}

func (s *MemStorage) CreateSession(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *MemStorage) ListVisitsByLink(_ context.Context, linkID string, limit int) ([]*domain.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var visits []*domain.Visit
	for _, v := range s.visits {
		if v.TrackingLinkID != nil && *v.TrackingLinkID == linkID {
			visits = append(visits, v)
		}
	}
	sort.Slice(visits, func(i, j int) bool { return visits[i].CreatedAt.After(visits[j].CreatedAt) })
	if limit > 0 && len(visits) > limit {
		visits = visits[:limit]
	}
	return visits, nil
}

// --- Attribution queries ---

func (s *MemStorage) ListUnmatchedVisits(_ context.Context, since time.Time) ([]*domain.Visit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var visits []*domain.Visit
	for _, v := range s.visits {
		if v.LineUserID == nil && !v.CreatedAt.Before(since) {
			visits = append(visits, v)
		}
	}
	sort.Slice(visits, func(i, j int) bool { return visits[i].CreatedAt.After(visits[j].CreatedAt) })
	return visits, nil
}

func (s *MemStorage) LatestUnmatchedSession(_ context.Context, since time.Time) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *domain.Session
	for _, sess := range s.sessions {
		if sess.LineUserID != nil || sess.LastActivityAt.Before(since) {
			continue
		}
		if best == nil || sess.LastActivityAt.After(best.LastActivityAt) {
			best = sess
		}
	}
	return best, nil
}

func (s *MemStorage) ClaimVisit(_ context.Context, visitID, lineUserID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits[visitID]
	if !ok || v.LineUserID != nil {
		return false, nil
	}
	v.LineUserID = &lineUserID
	return true, nil
}

func (s *MemStorage) ClaimSession(_ context.Context, sessionID, lineUserID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.LineUserID != nil {
		return false, nil
	}
	sess.LineUserID = &lineUserID
	sess.LineFriendAt = &now
	sess.LastActivityAt = now
	return true, nil
}

// --- Conversions ---

func (s *MemStorage) HasConversion(_ context.Context, trackingLinkID, lineUserID, conversionType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasConversionLocked(trackingLinkID, lineUserID, conversionType), nil
}

func (s *MemStorage) hasConversionLocked(trackingLinkID, lineUserID, conversionType string) bool {
	for _, c := range s.conversions {
		if c.TrackingLinkID != nil && *c.TrackingLinkID == trackingLinkID &&
			c.LineUserID == lineUserID && c.ConversionType == conversionType {
			return true
		}
	}
	return false
}

func (s *MemStorage) CreateConversion(_ context.Context, conversion *domain.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conversion.TrackingLinkID != nil &&
		s.hasConversionLocked(*conversion.TrackingLinkID, conversion.LineUserID, conversion.ConversionType) {
		return repository.ErrDuplicateConversion
	}
	if conversion.ID == "" {
		conversion.ID = uuid.NewString()
	}
	if conversion.CreatedAt.IsZero() {
		conversion.CreatedAt = time.Now()
	}
	s.conversions[conversion.ID] = conversion
	return nil
}

func (s *MemStorage) AgencyStats(_ context.Context, agencyID string) (*repository.AgencyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &repository.AgencyStats{}
	for _, l := range s.links {
		if l.AgencyID == agencyID && l.IsActive {
			stats.LinkCount++
		}
	}
	for _, v := range s.visits {
		if v.AgencyID != nil && *v.AgencyID == agencyID {
			stats.VisitCount++
		}
	}
	for _, c := range s.conversions {
		if c.AgencyID == agencyID {
			stats.ConversionCount++
		}
	}
	return stats, nil
}

// --- LINE profiles ---

func (s *MemStorage) UpsertLineProfile(_ context.Context, profile *domain.LineProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.lineProfiles[profile.LineUserID]; ok {
		existing.DisplayName = profile.DisplayName
		existing.PictureURL = profile.PictureURL
		existing.StatusMessage = profile.StatusMessage
		existing.Blocked = false
		existing.UpdatedAt = time.Now()
		return nil
	}
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	s.lineProfiles[profile.LineUserID] = profile
	return nil
}

func (s *MemStorage) SetLineProfileBlocked(_ context.Context, lineUserID string, blocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.lineProfiles[lineUserID]; ok {
		p.Blocked = blocked
		p.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemStorage) TouchLineProfile(_ context.Context, lineUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.lineProfiles[lineUserID]; ok {
		p.UpdatedAt = time.Now()
	}
	return nil
}
