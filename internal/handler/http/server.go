package http

import (
	"AgencyTrack-Backend/internal/analytics"
	"AgencyTrack-Backend/internal/attribution"
	"AgencyTrack-Backend/internal/auth"
	"AgencyTrack-Backend/internal/config"
	"AgencyTrack-Backend/internal/forwarder"
	"AgencyTrack-Backend/internal/lineapi"
	"AgencyTrack-Backend/internal/repository"
	"AgencyTrack-Backend/internal/service"
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Server wires the public tracking surfaces (redirect, webhook) and the
// JWT-protected agency API into one HTTP handler.
type Server struct {
	redirectHandler *RedirectHandler
	webhookHandler  *WebhookHandler
	linksHandler    *LinksHandler
	healthHandler   *HealthHandler
	authHandlers    *auth.AuthHandlers
	authMiddleware  *auth.Middleware
	log             *zap.Logger
}

func NewServer(
	storage repository.Storage,
	linkService *service.TrackingLinkService,
	processor *analytics.Processor,
	matcher *attribution.Matcher,
	recorder *attribution.Recorder,
	lineClients map[string]*lineapi.Client,
	fw *forwarder.Forwarder,
	jwtService *auth.JWTService,
	passwordService *auth.PasswordService,
	lineCfg *config.Line,
	trackingCfg *config.Tracking,
	readyCheck func(ctx context.Context) error,
	log *zap.Logger,
) *Server {
	return &Server{
		redirectHandler: NewRedirectHandler(storage, processor, trackingCfg.CookieName, log),
		webhookHandler:  NewWebhookHandler(storage, matcher, recorder, lineClients, lineCfg, fw, log),
		linksHandler:    NewLinksHandler(storage, linkService, log, trackingCfg.BaseURL),
		healthHandler:   NewHealthHandler(readyCheck, processor.GetStats, log),
		authHandlers:    auth.NewAuthHandlers(storage, jwtService, passwordService, log),
		authMiddleware:  auth.NewMiddleware(jwtService, log),
		log:             log,
	}
}

// SetupRoutes builds the route table.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()

	// Probes, no authentication.
	mux.HandleFunc("/health", s.healthHandler.Health)
	mux.HandleFunc("/ready", s.healthHandler.Ready)

	// Public tracking surfaces.
	mux.HandleFunc("/t/", s.redirectHandler.HandleRedirect)
	mux.HandleFunc("/line/webhook/", s.webhookHandler.HandleWebhook)

	// Agency auth.
	mux.HandleFunc("/api/auth/login", s.withCORS(s.authHandlers.Login))

	// Agency API, JWT-protected.
	mux.HandleFunc("/api/links", s.withCORS(s.authMiddleware.RequireAuth(s.handleLinks)))
	mux.HandleFunc("/api/links/", s.withCORS(s.authMiddleware.RequireAuth(s.handleLinkSubresource)))
	mux.HandleFunc("/api/stats", s.withCORS(s.authMiddleware.RequireAuth(s.linksHandler.AgencyStats)))

	return mux
}

func (s *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.linksHandler.CreateLink(w, r)
	case http.MethodGet:
		s.linksHandler.ListLinks(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleLinkSubresource(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.linksHandler.LinkVisits(w, r)
}

func (s *Server) withCORS(handler http.HandlerFunc) http.HandlerFunc {
	return s.authMiddleware.CORS(handler)
}
