// Package ratelimit is a Redis-backed fixed-window rate limiter for the
// public redirect and webhook endpoints. It fails open: a Redis outage
// must never take down tracking.
package ratelimit

import (
	"AgencyTrack-Backend/internal/config"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Limiter counts requests per client key in fixed windows.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	log    *zap.Logger
}

// NewRedisClient connects to Redis with pooling and verifies the
// connection.
func NewRedisClient(cfg *config.Redis, log *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	log.Info("redis client connected", zap.String("addr", cfg.Addr))
	return client, nil
}

// New builds a limiter allowing limit requests per window for each key.
func New(client *redis.Client, limit int, window time.Duration, prefix string, log *zap.Logger) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
		log:    log,
	}
}

// Allow increments the caller's window counter and reports whether the
// request is within the limit. remaining is how many requests are left in
// the current window.
func (l *Limiter) Allow(ctx context.Context, key string) (allowed bool, remaining int, err error) {
	windowKey := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, key, time.Now().Unix()/int64(l.window.Seconds()))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}

	count := int(incr.Val())
	remaining = l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= l.limit, remaining, nil
}

// Middleware applies the limiter per client IP. On Redis errors the
// request passes through.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)

		allowed, remaining, err := l.Allow(r.Context(), key)
		if err != nil {
			l.log.Warn("rate limiter unavailable, failing open", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			l.log.Info("rate limit exceeded",
				zap.String("client_ip", key),
				zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", strconv.Itoa(int(l.window.Seconds())))
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		// First hop is the client.
		for i := 0; i < len(fwd); i++ {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
