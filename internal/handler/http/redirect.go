package http

import (
	"AgencyTrack-Backend/internal/analytics"
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"AgencyTrack-Backend/pkg/botdetect"
	"AgencyTrack-Backend/pkg/random"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const trackingCookieMaxAge = 2592000 // 30 days

// RedirectHandler serves GET /t/{code}: the public click endpoint.
type RedirectHandler struct {
	storage    repository.Storage
	processor  *analytics.Processor
	cookieName string
	log        *zap.Logger
}

func NewRedirectHandler(storage repository.Storage, processor *analytics.Processor, cookieName string, log *zap.Logger) *RedirectHandler {
	return &RedirectHandler{
		storage:    storage,
		processor:  processor,
		cookieName: cookieName,
		log:        log,
	}
}

// HandleRedirect resolves the tracking code and issues a 302 to the
// destination with attribution parameters appended. Bot traffic is
// redirected without writing Visit/Session rows so the attribution pool
// stays clean. Bookkeeping is asynchronous: its failure never blocks the
// redirect.
func (h *RedirectHandler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimPrefix(r.URL.Path, "/t/")
	if code == "" || strings.Contains(code, "/") {
		h.renderNotFound(w)
		return
	}

	link, err := h.storage.GetTrackingLinkByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, repository.ErrTrackingCodeNotFound) {
			h.log.Debug("tracking code not found", zap.String("code", code))
			h.renderNotFound(w)
			return
		}
		h.log.Error("failed to resolve tracking code", zap.String("code", code), zap.Error(err))
		h.renderServerError(w)
		return
	}

	destination := link.Destination()
	if destination == "" {
		// No fallback URL: a link without a destination is
		// misconfigured and must fail loudly.
		h.log.Error("tracking link has no destination",
			zap.String("code", code),
			zap.String("tracking_link_id", link.ID))
		h.renderServerError(w)
		return
	}

	ip := extractIPAddress(r)
	userAgent := r.UserAgent()
	referrer := r.Referer()
	query := r.URL.Query()

	if bot := botdetect.Classify(ip, userAgent); bot.IsBot {
		h.log.Info("bot visit skipped",
			zap.String("code", code),
			zap.String("bot_type", bot.BotType),
			zap.Int("confidence", bot.Confidence),
			zap.String("ip", ip))
		http.Redirect(w, r, buildDestination(destination, link, "", query), http.StatusFound)
		return
	}

	now := time.Now()
	sessionID, err := random.NewSessionID(now)
	if err != nil {
		// Tracking degrades, the visitor still gets redirected.
		h.log.Error("failed to generate session id", zap.Error(err))
		http.Redirect(w, r, buildDestination(destination, link, "", query), http.StatusFound)
		return
	}

	if err := h.processor.Submit(&analytics.VisitData{
		Link:         link,
		VisitorIP:    optional(ip),
		UserAgent:    optional(userAgent),
		Referrer:     optional(referrer),
		SessionToken: sessionID,
		QueryParams:  query,
		VisitedAt:    now,
	}); err != nil {
		h.log.Warn("failed to queue visit", zap.String("code", code), zap.Error(err))
	}

	h.setTrackingCookie(w, link, sessionID, now)

	h.log.Info("redirect",
		zap.String("code", code),
		zap.String("session_id", sessionID),
		zap.String("ip", ip))

	http.Redirect(w, r, buildDestination(destination, link, sessionID, query), http.StatusFound)
}

// buildDestination appends attribution parameters to the destination URL:
// tid/aid/sid identify the click, plus the merged UTM set (query overrides
// link statics) and ad click ids.
func buildDestination(destination string, link *domain.TrackingLink, sessionID string, query url.Values) string {
	u, err := url.Parse(destination)
	if err != nil {
		return destination
	}

	params := u.Query()
	params.Set("tid", link.ID)
	params.Set("aid", link.AgencyID)
	if sessionID != "" {
		params.Set("sid", sessionID)
	}
	for key, val := range analytics.MergeUTM(link, query) {
		params.Set(key, val)
	}
	for _, key := range []string{"fbclid", "gclid"} {
		if val := query.Get(key); val != "" {
			params.Set(key, val)
		}
	}

	u.RawQuery = params.Encode()
	return u.String()
}

// setTrackingCookie stores a base64-encoded JSON blob the destination page
// can read back for attribution.
func (h *RedirectHandler) setTrackingCookie(w http.ResponseWriter, link *domain.TrackingLink, sessionID string, now time.Time) {
	payload, err := json.Marshal(map[string]interface{}{
		"tracking_link_id": link.ID,
		"agency_id":        link.AgencyID,
		"session_id":       sessionID,
		"tracking_code":    link.TrackingCode,
		"ts":               now.UnixMilli(),
	})
	if err != nil {
		h.log.Warn("failed to marshal tracking cookie", zap.Error(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    base64.StdEncoding.EncodeToString(payload),
		Path:     "/",
		MaxAge:   trackingCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *RedirectHandler) renderNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundPage))
}

func (h *RedirectHandler) renderServerError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(serverErrorPage))
}

const notFoundPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>Link Not Found</title></head>
<body>
<h1>404</h1>
<p>This tracking link does not exist or is no longer active.</p>
</body>
</html>`

const serverErrorPage = `<!DOCTYPE html>
<html lang="ja">
<head><meta charset="utf-8"><title>Something Went Wrong</title></head>
<body>
<h1>500</h1>
<p>We could not process this link right now. Please try again later.</p>
</body>
</html>`

// extractIPAddress returns the client IP, preferring proxy headers.
func extractIPAddress(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		// X-Forwarded-For is a comma-separated hop list.
		ips := strings.Split(ip, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
