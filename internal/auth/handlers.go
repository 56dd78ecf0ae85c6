package auth

import (
	"AgencyTrack-Backend/internal/repository"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// AuthHandlers serves the agency login endpoint. Agencies are provisioned
// out of band; there is no public registration.
type AuthHandlers struct {
	storage         repository.Storage
	jwtService      *JWTService
	passwordService *PasswordService
	log             *zap.Logger
}

func NewAuthHandlers(storage repository.Storage, jwtService *JWTService, passwordService *PasswordService, log *zap.Logger) *AuthHandlers {
	return &AuthHandlers{
		storage:         storage,
		jwtService:      jwtService,
		passwordService: passwordService,
		log:             log,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	AgencyID    string `json:"agency_id"`
	AgencyName  string `json:"agency_name"`
	Email       string `json:"email"`
}

// Login authenticates an agency and issues an access token.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid login request", zap.Error(err))
		h.writeError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		h.writeError(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	agency, err := h.storage.GetAgencyByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAgencyNotFound) {
			// Same response as a bad password, no account enumeration.
			h.writeError(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		h.log.Error("failed to look up agency", zap.Error(err))
		h.writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := h.passwordService.VerifyPassword(agency.PasswordHash, req.Password); err != nil {
		h.log.Debug("password mismatch", zap.String("email", req.Email))
		h.writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.jwtService.GenerateAccessToken(agency.ID, agency.Email)
	if err != nil {
		h.log.Error("failed to generate access token", zap.Error(err))
		h.writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.log.Info("agency logged in", zap.String("agency_id", agency.ID))
	h.writeJSON(w, LoginResponse{
		AccessToken: token,
		AgencyID:    agency.ID,
		AgencyName:  agency.Name,
		Email:       agency.Email,
	}, http.StatusOK)
}

func (h *AuthHandlers) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *AuthHandlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
