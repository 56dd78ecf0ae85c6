// Package forwarder relays raw LINE webhook payloads to downstream
// consumers (external automation, message processors) without blocking the
// webhook response. Failures are logged, never surfaced: surfacing them
// would make the LINE platform retry and duplicate-process events.
package forwarder

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	externalTimeout  = 10 * time.Second
	processorTimeout = 30 * time.Second

	// ForwardedFromHeader marks relayed requests so a downstream running
	// this same service does not forward again (loop guard).
	ForwardedFromHeader = "X-Forwarded-From"

	signatureHeader = "X-Line-Signature"
)

// Targets are the downstream URLs for one service's webhook. Empty URLs
// are skipped. The processor target only receives payloads that contain
// message events.
type Targets struct {
	ExternalURL  string
	ProcessorURL string
}

// Forwarder relays webhook bodies in background goroutines.
type Forwarder struct {
	httpClient *http.Client
	source     string
	log        *zap.Logger
}

// New builds a Forwarder; source is the value written to the loop-guard
// header on every relayed request.
func New(source string, log *zap.Logger) *Forwarder {
	return &Forwarder{
		// Per-request timeouts come from the context; the client-level
		// timeout is a backstop.
		httpClient: &http.Client{Timeout: processorTimeout + 5*time.Second},
		source:     source,
		log:        log,
	}
}

// Forward relays the raw body to the configured targets. It returns
// immediately; delivery happens in background goroutines. hasMessageEvent
// gates the processor target.
func (f *Forwarder) Forward(targets Targets, body []byte, signature string, hasMessageEvent bool) {
	if targets.ExternalURL != "" {
		go f.send(targets.ExternalURL, body, signature, externalTimeout)
	}
	if targets.ProcessorURL != "" && hasMessageEvent {
		go f.send(targets.ProcessorURL, body, signature, processorTimeout)
	}
}

func (f *Forwarder) send(url string, body []byte, signature string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		f.log.Error("failed to build forward request", zap.String("url", url), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, signature)
	req.Header.Set(ForwardedFromHeader, f.source)

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.log.Warn("webhook forward failed",
			zap.String("url", url),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		f.log.Warn("webhook forward rejected downstream",
			zap.String("url", url),
			zap.Int("status", resp.StatusCode))
		return
	}

	f.log.Debug("webhook forwarded",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))
}
