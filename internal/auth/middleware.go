package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// ContextKey is the type for auth values stored in request contexts.
type ContextKey string

const (
	// AgencyIDKey is the context key for the authenticated agency id.
	AgencyIDKey ContextKey = "agency_id"
	// AgencyEmailKey is the context key for the authenticated agency email.
	AgencyEmailKey ContextKey = "agency_email"
)

// Middleware guards the agency API with JWT checks.
type Middleware struct {
	jwtService *JWTService
	log        *zap.Logger
}

func NewMiddleware(jwtService *JWTService, log *zap.Logger) *Middleware {
	return &Middleware{
		jwtService: jwtService,
		log:        log,
	}
}

// RequireAuth rejects requests without a valid agency token.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.log.Debug("missing authorization header")
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}

		tokenString := ExtractTokenFromBearer(authHeader)
		if tokenString == "" {
			m.log.Debug("invalid authorization header format")
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtService.ValidateToken(tokenString)
		if err != nil {
			m.log.Debug("invalid token", zap.Error(err))
			if err == ErrExpiredToken {
				http.Error(w, "Token expired", http.StatusUnauthorized)
			} else {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
			}
			return
		}

		ctx := context.WithValue(r.Context(), AgencyIDKey, claims.AgencyID)
		ctx = context.WithValue(ctx, AgencyEmailKey, claims.Email)

		m.log.Debug("authenticated agency",
			zap.String("agency_id", claims.AgencyID),
			zap.String("email", claims.Email))

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// GetAgencyIDFromContext returns the authenticated agency id.
func GetAgencyIDFromContext(ctx context.Context) (string, bool) {
	agencyID, ok := ctx.Value(AgencyIDKey).(string)
	return agencyID, ok
}

// GetAgencyEmailFromContext returns the authenticated agency email.
func GetAgencyEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(AgencyEmailKey).(string)
	return email, ok
}

// CORS handles cross-origin requests from the agency dashboard.
func (m *Middleware) CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowedOrigins := []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
			"http://localhost:8080",
			"http://127.0.0.1:8080",
		}

		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	}
}
