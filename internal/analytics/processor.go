package analytics

import (
	"AgencyTrack-Backend/internal/domain"
	"AgencyTrack-Backend/internal/repository"
	"AgencyTrack-Backend/pkg/useragent"
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// VisitData is one redirect click queued for asynchronous bookkeeping.
// The redirect response never waits for any of this.
type VisitData struct {
	Link         *domain.TrackingLink
	VisitorIP    *string
	UserAgent    *string
	Referrer     *string
	SessionToken string
	QueryParams  url.Values
	VisitedAt    time.Time
}

// ProcessorConfig holds configuration for the visit processor.
type ProcessorConfig struct {
	WorkerCount     int           // Number of worker goroutines
	BufferSize      int           // Size of the job queue buffer
	RetryAttempts   int           // Number of retry attempts for failed jobs
	RetryDelay      time.Duration // Base delay between retries
	ShutdownTimeout time.Duration // Time to wait for graceful shutdown
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() ProcessorConfig {
	return ProcessorConfig{
		WorkerCount:     3,
		BufferSize:      1000,
		RetryAttempts:   3,
		RetryDelay:      time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Processor persists visits and sessions off the request path.
type Processor struct {
	config   ProcessorConfig
	storage  repository.Storage
	parser   *useragent.Parser
	log      *zap.Logger
	jobQueue chan *VisitData
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	mu       sync.RWMutex
}

// NewProcessor creates a new visit processor.
func NewProcessor(storage repository.Storage, parser *useragent.Parser, log *zap.Logger, config ProcessorConfig) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		config:   config,
		storage:  storage,
		parser:   parser,
		log:      log,
		jobQueue: make(chan *VisitData, config.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing queued visits.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("processor already started")
	}

	p.log.Info("starting visit processor",
		zap.Int("workers", p.config.WorkerCount),
		zap.Int("buffer_size", p.config.BufferSize),
		zap.Int("retry_attempts", p.config.RetryAttempts),
	)

	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	return nil
}

// Stop gracefully shuts down the processor.
func (p *Processor) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return fmt.Errorf("processor not started")
	}

	p.log.Info("stopping visit processor")

	p.cancel()
	close(p.jobQueue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("visit processor stopped gracefully")
	case <-time.After(p.config.ShutdownTimeout):
		p.log.Warn("visit processor shutdown timeout reached")
		return fmt.Errorf("shutdown timeout reached")
	}

	p.started = false
	return nil
}

// Submit queues a visit for asynchronous processing. A full queue drops the
// visit: bookkeeping must never block or fail the redirect.
func (p *Processor) Submit(visit *VisitData) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started {
		return fmt.Errorf("processor not started")
	}

	select {
	case p.jobQueue <- visit:
		p.log.Debug("visit submitted for processing", zap.String("tracking_code", visit.Link.TrackingCode))
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("processor is shutting down")
	default:
		p.log.Error("visit queue is full, dropping visit",
			zap.String("tracking_code", visit.Link.TrackingCode),
			zap.Int("queue_size", len(p.jobQueue)),
		)
		return fmt.Errorf("visit queue is full")
	}
}

func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.With(zap.Int("worker_id", workerID))
	log.Info("visit worker started")

	for {
		select {
		case visit := <-p.jobQueue:
			if visit == nil {
				log.Info("visit worker stopped")
				return
			}

			p.processWithRetry(log, visit)

		case <-p.ctx.Done():
			log.Info("visit worker received shutdown signal")
			return
		}
	}
}

func (p *Processor) processWithRetry(log *zap.Logger, visit *VisitData) {
	var lastErr error

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(p.ctx, 30*time.Second)
		err := p.process(ctx, log, visit)
		cancel()

		if err == nil {
			if attempt > 1 {
				log.Info("visit processing succeeded after retry",
					zap.String("tracking_code", visit.Link.TrackingCode),
					zap.Int("attempt", attempt),
				)
			}
			return
		}

		lastErr = err
		log.Warn("visit processing failed",
			zap.String("tracking_code", visit.Link.TrackingCode),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.config.RetryAttempts),
			zap.Error(err),
		)

		if attempt == p.config.RetryAttempts {
			break
		}

		// Exponential backoff delay
		delay := p.config.RetryDelay * time.Duration(1<<(attempt-1))

		select {
		case <-time.After(delay):
		case <-p.ctx.Done():
			log.Info("worker shutdown during retry delay")
			return
		}
	}

	log.Error("visit processing failed after all retries",
		zap.String("tracking_code", visit.Link.TrackingCode),
		zap.Int("attempts", p.config.RetryAttempts),
		zap.Error(lastErr),
	)
}

// process writes the Visit row, the parallel Session row, and bumps the
// link counter. A failed Visit write is logged and the Session is still
// attempted; an error is returned (triggering retry) only when both fail.
func (p *Processor) process(ctx context.Context, log *zap.Logger, data *VisitData) error {
	link := data.Link

	var deviceType, browser, os *string
	if data.UserAgent != nil && *data.UserAgent != "" {
		info := p.parser.Parse(*data.UserAgent)
		deviceType = &info.DeviceType
		browser = &info.Browser
		os = &info.OS
	}

	utm := MergeUTM(link, data.QueryParams)
	metadata := domain.JSONMap{}
	for k, v := range utm {
		metadata[k] = v
	}
	for _, key := range []string{"fbclid", "gclid"} {
		if val := data.QueryParams.Get(key); val != "" {
			metadata[key] = val
		}
	}
	if data.Referrer != nil && *data.Referrer != "" {
		metadata["referrer"] = *data.Referrer
	}

	sessionToken := data.SessionToken

	visit := &domain.Visit{
		TrackingLinkID: &link.ID,
		AgencyID:       &link.AgencyID,
		ServiceID:      link.ServiceID,
		VisitorIP:      data.VisitorIP,
		UserAgent:      data.UserAgent,
		Referrer:       data.Referrer,
		DeviceType:     deviceType,
		Browser:        browser,
		OS:             os,
		SessionID:      &sessionToken,
		Metadata:       metadata,
		CreatedAt:      data.VisitedAt,
	}

	visitErr := p.storage.CreateVisit(ctx, visit)
	if visitErr != nil {
		log.Warn("failed to record visit, session write still attempted",
			zap.String("tracking_code", link.TrackingCode),
			zap.Error(visitErr),
		)
	}

	session := &domain.Session{
		SessionToken:   sessionToken,
		AgencyID:       &link.AgencyID,
		TrackingLinkID: &link.ID,
		UserAgent:      data.UserAgent,
		IP:             data.VisitorIP,
		Metadata:       metadata,
		LastActivityAt: data.VisitedAt,
		CreatedAt:      data.VisitedAt,
	}
	if visitErr == nil {
		session.VisitID = &visit.ID
	}
	setUTM(session, utm)

	sessionErr := p.storage.CreateSession(ctx, session)
	if sessionErr != nil {
		log.Warn("failed to record session",
			zap.String("tracking_code", link.TrackingCode),
			zap.Error(sessionErr),
		)
	}

	if visitErr != nil && sessionErr != nil {
		return fmt.Errorf("record visit: %w", visitErr)
	}

	if err := p.storage.IncrementLinkVisits(ctx, link.ID); err != nil {
		log.Warn("failed to increment visit counter",
			zap.String("tracking_link_id", link.ID),
			zap.Error(err),
		)
	}

	log.Debug("visit recorded",
		zap.String("tracking_code", link.TrackingCode),
		zap.String("session_token", sessionToken),
	)
	return nil
}

// GetStats returns processor statistics for the health endpoint.
func (p *Processor) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"started":        p.started,
		"queue_length":   len(p.jobQueue),
		"queue_capacity": cap(p.jobQueue),
		"worker_count":   p.config.WorkerCount,
		"retry_attempts": p.config.RetryAttempts,
	}
}

// MergeUTM combines the link's static UTM fields with query-string
// parameters; query parameters win.
func MergeUTM(link *domain.TrackingLink, query url.Values) map[string]string {
	utm := link.StaticUTM()
	for _, key := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"} {
		if val := query.Get(key); val != "" {
			utm[key] = val
		}
	}
	return utm
}

func setUTM(session *domain.Session, utm map[string]string) {
	set := func(dst **string, key string) {
		if val, ok := utm[key]; ok && val != "" {
			v := val
			*dst = &v
		}
	}
	set(&session.UTMSource, "utm_source")
	set(&session.UTMMedium, "utm_medium")
	set(&session.UTMCampaign, "utm_campaign")
}
