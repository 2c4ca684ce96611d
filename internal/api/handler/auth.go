package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/studentfund/studentfund/internal/api/middleware"
	"github.com/studentfund/studentfund/internal/api/response"
	"github.com/studentfund/studentfund/internal/api/validation"
	"github.com/studentfund/studentfund/internal/auth"
	"github.com/studentfund/studentfund/internal/metrics"
)

const maxJSONBody = 1 << 20

// AuthService is the account and session backend behind /auth.
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*auth.Account, *auth.IssuedSession, error)
	SignIn(ctx context.Context, email, password string) (*auth.IssuedSession, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.IssuedSession, error)
	SignOut(ctx context.Context, sessionID string) error
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    string       `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         userResponse `json:"user"`
}

type signupResponse struct {
	User    userResponse     `json:"user"`
	Session *sessionResponse `json:"session"`
}

func toSessionResponse(s *auth.IssuedSession) *sessionResponse {
	return &sessionResponse{
		AccessToken:  s.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(s.ExpiresAt).Seconds()),
		ExpiresAt:    s.ExpiresAt.UTC().Format(time.RFC3339),
		RefreshToken: s.RefreshToken,
		User: userResponse{
			ID:    s.Identity.UserID.String(),
			Email: s.Identity.Email,
		},
	}
}

// AuthHandler handles the /auth endpoints.
type AuthHandler struct {
	svc     AuthService
	metrics *metrics.Metrics
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{svc: svc, metrics: m}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be valid JSON", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *AuthHandler) decodeCredentials(w http.ResponseWriter, r *http.Request, signup bool) (credentialsRequest, bool) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req) {
		return req, false
	}
	req.Email = strings.TrimSpace(req.Email)

	fieldErrors := validation.ValidateCredentials(validation.CredentialsRequest{
		Email:    req.Email,
		Password: req.Password,
	}, signup)
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, middleware.GetRequestID(r.Context()))
		return req, false
	}
	return req, true
}

// SignUp handles POST /auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	req, ok := h.decodeCredentials(w, r, true)
	if !ok {
		return
	}

	account, sess, err := h.svc.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			response.Err(w, http.StatusConflict, "EMAIL_TAKEN", "An account with this email already exists", requestID)
			return
		}
		slog.Error("failed to sign up", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create account", requestID)
		return
	}
	h.metrics.Signups.Inc()

	resp := signupResponse{User: userResponse{ID: account.ID.String(), Email: account.Email}}
	if sess != nil {
		resp.Session = toSessionResponse(sess)
	}
	response.Success(w, http.StatusCreated, resp, requestID)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	req, ok := h.decodeCredentials(w, r, false)
	if !ok {
		return
	}

	sess, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.metrics.LoginAttempts.WithLabelValues("invalid_credentials").Inc()
		response.Err(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid login credentials", requestID)
		return
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		h.metrics.LoginAttempts.WithLabelValues("email_not_confirmed").Inc()
		response.Err(w, http.StatusForbidden, "EMAIL_NOT_CONFIRMED", "Email not confirmed", requestID)
		return
	case err != nil:
		h.metrics.LoginAttempts.WithLabelValues("error").Inc()
		slog.Error("failed to sign in", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in", requestID)
		return
	}

	h.metrics.LoginAttempts.WithLabelValues("success").Inc()
	response.Success(w, http.StatusOK, toSessionResponse(sess), requestID)
}

// Refresh handles POST /auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed",
			[]validation.FieldError{{Field: "refresh_token", Message: "refresh_token is required"}}, requestID)
		return
	}

	sess, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrRefreshMismatch) {
			response.Err(w, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or revoked", requestID)
			return
		}
		slog.Error("failed to refresh session", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to refresh session", requestID)
		return
	}

	response.Success(w, http.StatusOK, toSessionResponse(sess), requestID)
}

// Logout handles POST /auth/logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	if err := h.svc.SignOut(r.Context(), identity.SessionID); err != nil {
		slog.Error("failed to sign out", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign out", requestID)
		return
	}

	response.NoContent(w)
}

// User handles GET /auth/user.
func (h *AuthHandler) User(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	response.Success(w, http.StatusOK, userResponse{
		ID:    identity.UserID.String(),
		Email: identity.Email,
	}, middleware.GetRequestID(r.Context()))
}
