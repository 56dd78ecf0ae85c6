package http

import (
	"AgencyTrack-Backend/internal/attribution"
	"AgencyTrack-Backend/internal/config"
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/forwarder"
	"AgencyTrack-Backend/internal/lineapi"
	"AgencyTrack-Backend/internal/repository"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// WebhookHandler serves POST /line/webhook/{service}: the LINE platform
// callback that drives attribution.
type WebhookHandler struct {
	storage   repository.Storage
	matcher   *attribution.Matcher
	recorder  *attribution.Recorder
	clients   map[string]*lineapi.Client
	lineCfg   *config.Line
	forwarder *forwarder.Forwarder
	log       *zap.Logger
}

func NewWebhookHandler(
	storage repository.Storage,
	matcher *attribution.Matcher,
	recorder *attribution.Recorder,
	clients map[string]*lineapi.Client,
	lineCfg *config.Line,
	fw *forwarder.Forwarder,
	log *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		storage:   storage,
		matcher:   matcher,
		recorder:  recorder,
		clients:   clients,
		lineCfg:   lineCfg,
		forwarder: fw,
		log:       log,
	}
}

type webhookPayload struct {
	Destination string         `json:"destination"`
	Events      []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string `json:"type"`
	ReplyToken string `json:"replyToken,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Source     struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
	} `json:"source"`
	Message *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"message,omitempty"`
	Postback *struct {
		Data string `json:"data"`
	} `json:"postback,omitempty"`
}

// HandleWebhook verifies the signature and dispatches events. Once the
// signature checks out the response is always 200 {"success":true}:
// surfacing per-event failures would make the LINE platform retry and
// duplicate-process, so they are logged instead.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serviceCode := strings.TrimPrefix(r.URL.Path, "/line/webhook/")
	channel := h.lineCfg.Channel(serviceCode)
	if serviceCode == "" || channel == nil {
		h.log.Debug("webhook for unknown service", zap.String("service", serviceCode))
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.log.Warn("failed to read webhook body", zap.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if !lineapi.VerifySignature(channel.ChannelSecret, body, signature) {
		h.log.Warn("webhook signature verification failed",
			zap.String("service", serviceCode),
			zap.String("ip", extractIPAddress(r)))
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		// Signature was valid, so this is LINE sending something we do
		// not parse yet. Acknowledge it.
		h.log.Error("failed to parse webhook payload", zap.Error(err))
		h.writeSuccess(w)
		return
	}

	// Relay to downstream consumers unless this request is itself a relay.
	if r.Header.Get(forwarder.ForwardedFromHeader) == "" {
		hasMessage := false
		for _, ev := range payload.Events {
			if ev.Type == "message" {
				hasMessage = true
				break
			}
		}
		h.forwarder.Forward(forwarder.Targets{
			ExternalURL:  channel.ExternalWebhookURL,
			ProcessorURL: channel.ProcessorWebhookURL,
		}, body, signature, hasMessage)
	}

	for _, event := range payload.Events {
		h.handleEvent(r, serviceCode, event)
	}

	h.writeSuccess(w)
}

func (h *WebhookHandler) handleEvent(r *http.Request, serviceCode string, event webhookEvent) {
	userID := event.Source.UserID
	log := h.log.With(
		zap.String("service", serviceCode),
		zap.String("event_type", event.Type),
		zap.String("line_user_id", userID))

	switch event.Type {
	case "follow":
		h.handleFollow(r, serviceCode, userID, log)
	case "unfollow":
		if err := h.storage.SetLineProfileBlocked(r.Context(), userID, true); err != nil {
			log.Error("failed to mark profile blocked", zap.Error(err))
		} else {
			log.Info("line user unfollowed")
		}
	case "message":
		if err := h.storage.TouchLineProfile(r.Context(), userID); err != nil {
			log.Error("failed to touch profile activity", zap.Error(err))
		}
	case "postback":
		if event.Postback != nil {
			log.Debug("postback event", zap.String("data", event.Postback.Data))
		}
	default:
		log.Debug("unhandled event type")
	}
}

// handleFollow is the attribution entry point: cache the LINE profile, link
// the identity to the originating click, and record the conversion.
func (h *WebhookHandler) handleFollow(r *http.Request, serviceCode, userID string, log *zap.Logger) {
	ctx := r.Context()
	now := time.Now()

	h.upsertProfile(ctx, serviceCode, userID, log)

	svc, err := h.storage.GetServiceByCode(ctx, serviceCode)
	if err != nil {
		// Penalty scoring degrades without the service row; matching
		// still proceeds.
		log.Warn("failed to load service for penalty domains", zap.Error(err))
		svc = nil
	}

	match, err := h.matcher.MatchAndLink(ctx, userID, attribution.Signals{
		IP:        extractIPAddress(r),
		UserAgent: r.UserAgent(),
		Now:       now,
		Service:   svc,
	})
	if err != nil {
		log.Error("attribution matching failed", zap.Error(err))
		return
	}
	if match == nil {
		log.Info("follow recorded as direct, no attribution")
		return
	}

	if err := h.recorder.RecordLineFriend(ctx, match, userID); err != nil {
		log.Error("failed to record conversion", zap.Error(err))
	}
}

func (h *WebhookHandler) upsertProfile(ctx context.Context, serviceCode, userID string, log *zap.Logger) {
	profile := &domain.LineProfile{
		LineUserID:  userID,
		ServiceCode: serviceCode,
	}

	if client := h.clients[serviceCode]; client != nil {
		fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if p, err := client.GetProfile(fetchCtx, userID); err != nil {
			log.Warn("failed to fetch LINE profile", zap.Error(err))
		} else {
			profile.DisplayName = optional(p.DisplayName)
			profile.PictureURL = optional(p.PictureURL)
			profile.StatusMessage = optional(p.StatusMessage)
		}
	}

	if err := h.storage.UpsertLineProfile(ctx, profile); err != nil {
		log.Error("failed to upsert LINE profile", zap.Error(err))
	}
}

func (h *WebhookHandler) writeSuccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"success":true}`))
}
