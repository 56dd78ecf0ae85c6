package http

import (
	"AgencyTrack-Backend/internal/auth"
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"AgencyTrack-Backend/internal/service"
	"AgencyTrack-Backend/pkg/botdetect"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LinksHandler serves the JWT-protected agency API.
type LinksHandler struct {
	storage     repository.Storage
	linkService *service.TrackingLinkService
	log         *zap.Logger
	baseURL     string
}

func NewLinksHandler(storage repository.Storage, linkService *service.TrackingLinkService, log *zap.Logger, baseURL string) *LinksHandler {
	return &LinksHandler{
		storage:     storage,
		linkService: linkService,
		log:         log,
		baseURL:     baseURL,
	}
}

type CreateLinkRequest struct {
	Name           string `json:"name"`
	ServiceCode    string `json:"service_code,omitempty"`
	CustomCode     string `json:"custom_code,omitempty"`
	DestinationURL string `json:"destination_url,omitempty"`
	UTMSource      string `json:"utm_source,omitempty"`
	UTMMedium      string `json:"utm_medium,omitempty"`
	UTMCampaign    string `json:"utm_campaign,omitempty"`
	UTMTerm        string `json:"utm_term,omitempty"`
	UTMContent     string `json:"utm_content,omitempty"`
}

type LinkInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TrackingCode    string `json:"tracking_code"`
	TrackingURL     string `json:"tracking_url"`
	ServiceCode     string `json:"service_code,omitempty"`
	DestinationURL  string `json:"destination_url,omitempty"`
	VisitCount      int64  `json:"visit_count"`
	ConversionCount int64  `json:"conversion_count"`
	CreatedAt       string `json:"created_at"`
}

type ListLinksResponse struct {
	Links []LinkInfo `json:"links"`
}

type LinkVisitsResponse struct {
	Visits []*domain.Visit `json:"visits"`
	Stats  botdetect.Stats `json:"stats"`
}

type AgencyStatsResponse struct {
	LinkCount       int64 `json:"link_count"`
	VisitCount      int64 `json:"visit_count"`
	ConversionCount int64 `json:"conversion_count"`
}

// CreateLink creates a tracking link for the authenticated agency.
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := auth.GetAgencyIDFromContext(r.Context())
	if !ok {
		h.writeError(w, "Agency not found in context", http.StatusUnauthorized)
		return
	}

	var req CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid create link request", zap.Error(err))
		h.writeError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		h.writeError(w, "Name is required", http.StatusBadRequest)
		return
	}

	link, err := h.linkService.CreateLink(r.Context(), agencyID, service.CreateLinkInput{
		Name:           req.Name,
		ServiceCode:    req.ServiceCode,
		CustomCode:     req.CustomCode,
		DestinationURL: req.DestinationURL,
		UTMSource:      req.UTMSource,
		UTMMedium:      req.UTMMedium,
		UTMCampaign:    req.UTMCampaign,
		UTMTerm:        req.UTMTerm,
		UTMContent:     req.UTMContent,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTrackingCodeExists):
			h.writeError(w, "Tracking code already exists", http.StatusConflict)
		case errors.Is(err, repository.ErrServiceNotFound):
			h.writeError(w, "Unknown service code", http.StatusBadRequest)
		default:
			h.log.Error("failed to create tracking link", zap.Error(err))
			h.writeError(w, "Failed to create tracking link", http.StatusInternalServerError)
		}
		return
	}

	h.log.Info("created tracking link",
		zap.String("tracking_code", link.TrackingCode),
		zap.String("agency_id", agencyID))
	h.writeJSON(w, h.linkInfo(link), http.StatusCreated)
}

// ListLinks lists the agency's active tracking links.
func (h *LinksHandler) ListLinks(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := auth.GetAgencyIDFromContext(r.Context())
	if !ok {
		h.writeError(w, "Agency not found in context", http.StatusUnauthorized)
		return
	}

	links, err := h.storage.ListAgencyLinks(r.Context(), agencyID)
	if err != nil {
		h.log.Error("failed to list tracking links", zap.String("agency_id", agencyID), zap.Error(err))
		h.writeError(w, "Failed to retrieve links", http.StatusInternalServerError)
		return
	}

	infos := make([]LinkInfo, len(links))
	for i, link := range links {
		infos[i] = h.linkInfo(link)
	}

	h.writeJSON(w, ListLinksResponse{Links: infos}, http.StatusOK)
}

// LinkVisits returns a link's recent visits with bot traffic filtered out
// and aggregate bot stats alongside.
func (h *LinksHandler) LinkVisits(w http.ResponseWriter, r *http.Request) {
	// Path: /api/links/{code}/visits
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[3] != "visits" || parts[2] == "" {
		h.writeError(w, "Tracking code is required", http.StatusBadRequest)
		return
	}
	code := parts[2]

	agencyID, ok := auth.GetAgencyIDFromContext(r.Context())
	if !ok {
		h.writeError(w, "Agency not found in context", http.StatusUnauthorized)
		return
	}

	link, err := h.storage.GetTrackingLinkByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, repository.ErrTrackingCodeNotFound) {
			h.writeError(w, "Link not found", http.StatusNotFound)
			return
		}
		h.log.Error("failed to get link for visits", zap.String("code", code), zap.Error(err))
		h.writeError(w, "Failed to retrieve link", http.StatusInternalServerError)
		return
	}

	if link.AgencyID != agencyID {
		h.writeError(w, "Access denied", http.StatusForbidden)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	visits, err := h.storage.ListVisitsByLink(r.Context(), link.ID, limit)
	if err != nil {
		h.log.Error("failed to list visits", zap.String("tracking_link_id", link.ID), zap.Error(err))
		h.writeError(w, "Failed to retrieve visits", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, LinkVisitsResponse{
		Visits: botdetect.FilterVisits(visits),
		Stats:  botdetect.VisitStats(visits),
	}, http.StatusOK)
}

// AgencyStats returns the dashboard counters for the agency.
func (h *LinksHandler) AgencyStats(w http.ResponseWriter, r *http.Request) {
	agencyID, ok := auth.GetAgencyIDFromContext(r.Context())
	if !ok {
		h.writeError(w, "Agency not found in context", http.StatusUnauthorized)
		return
	}

	stats, err := h.storage.AgencyStats(r.Context(), agencyID)
	if err != nil {
		h.log.Error("failed to load agency stats", zap.String("agency_id", agencyID), zap.Error(err))
		h.writeError(w, "Failed to retrieve stats", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, AgencyStatsResponse{
		LinkCount:       stats.LinkCount,
		VisitCount:      stats.VisitCount,
		ConversionCount: stats.ConversionCount,
	}, http.StatusOK)
}

func (h *LinksHandler) linkInfo(link *domain.TrackingLink) LinkInfo {
	info := LinkInfo{
		ID:              link.ID,
		Name:            link.Name,
		TrackingCode:    link.TrackingCode,
		TrackingURL:     h.baseURL + "/t/" + link.TrackingCode,
		VisitCount:      link.VisitCount,
		ConversionCount: link.ConversionCount,
		CreatedAt:       link.CreatedAt.Format(time.RFC3339),
	}
	if link.Service != nil {
		info.ServiceCode = link.Service.Code
	}
	if link.DestinationURL != nil {
		info.DestinationURL = *link.DestinationURL
	}
	return info
}

func (h *LinksHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *LinksHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
