package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studentfund/studentfund/internal/api/middleware"
	"github.com/studentfund/studentfund/internal/api/response"
	"github.com/studentfund/studentfund/internal/api/validation"
	"github.com/studentfund/studentfund/internal/metrics"
	"github.com/studentfund/studentfund/internal/profile"
)

const maxListLimit = 500

type createProfileRequest struct {
	ID        string   `json:"id"`
	Username  *string  `json:"username"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	UserType  string   `json:"user_type"`
	AvatarURL *string  `json:"avatar_url"`
	Bio       *string  `json:"bio"`
	Location  *string  `json:"location"`
	Interests []string `json:"interests"`
}

// updateProfileRequest captures user_type only to reject it; a JSON null
// still counts as sent.
type updateProfileRequest struct {
	profile.Update
	UserType json.RawMessage `json:"user_type"`
}

type usernameResponse struct {
	Username  string `json:"username"`
	Available bool   `json:"available"`
}

// ProfileHandler handles profile reads and writes.
type ProfileHandler struct {
	repo    profile.Repository
	metrics *metrics.Metrics
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(repo profile.Repository, m *metrics.Metrics) *ProfileHandler {
	return &ProfileHandler{repo: repo, metrics: m}
}

// UsernameAvailability handles GET /usernames/{username}.
func (h *ProfileHandler) UsernameAvailability(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	username := strings.TrimSpace(chi.URLParam(r, "username"))

	exists, err := h.repo.UsernameExists(r.Context(), username)
	if err != nil {
		slog.Error("failed to check username", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to check username", requestID)
		return
	}

	response.Success(w, http.StatusOK, usernameResponse{Username: username, Available: !exists}, requestID)
}

// Get handles GET /profiles/{id}.
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "Profile ID must be a valid UUID", requestID)
		return
	}

	p, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", requestID)
			return
		}
		slog.Error("failed to get profile", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get profile", requestID)
		return
	}

	response.Success(w, http.StatusOK, p, requestID)
}

// Create handles POST /profiles. A caller can only create its own profile.
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	var req createProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fieldErrors := validation.ValidateCreateProfile(validation.CreateProfileRequest{
		ID:        req.ID,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		UserType:  req.UserType,
	})
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	id, err := uuid.Parse(req.ID)
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "Profile ID must be a valid UUID", requestID)
		return
	}
	if id != identity.UserID {
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "A profile can only be created for the signed-in account", requestID)
		return
	}

	p := &profile.Profile{
		ID:        id,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		UserType:  profile.UserType(req.UserType),
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
		Location:  req.Location,
		Interests: req.Interests,
	}
	if req.Username != nil && strings.TrimSpace(*req.Username) != "" {
		username := strings.TrimSpace(*req.Username)
		p.Username = &username
	}
	if p.Interests == nil {
		p.Interests = []string{}
	}

	if err := h.repo.Create(r.Context(), p); err != nil {
		switch {
		case errors.Is(err, profile.ErrUsernameTaken):
			response.Err(w, http.StatusConflict, "USERNAME_TAKEN", "Username already exists", requestID)
		case errors.Is(err, profile.ErrProfileExists):
			response.Err(w, http.StatusConflict, "PROFILE_EXISTS", "Profile already exists", requestID)
		default:
			slog.Error("failed to create profile", "error", err, "requestId", requestID)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user profile", requestID)
		}
		return
	}
	h.metrics.ProfilesCreated.WithLabelValues(string(p.UserType)).Inc()

	response.Success(w, http.StatusCreated, p, requestID)
}

// Update handles PATCH /profiles/{id}. user_type is rejected.
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	identity := middleware.GetIdentity(r.Context())

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.Err(w, http.StatusBadRequest, "INVALID_ID", "Profile ID must be a valid UUID", requestID)
		return
	}
	if id != identity.UserID {
		response.Err(w, http.StatusForbidden, "FORBIDDEN", "Only the owner can update a profile", requestID)
		return
	}

	var req updateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u := req.Update
	userTypeSent := req.UserType != nil
	if u.Username != nil {
		trimmed := strings.TrimSpace(*u.Username)
		u.Username = &trimmed
	}

	fieldErrors := validation.ValidateUpdateProfile(u, userTypeSent)
	if len(fieldErrors) > 0 {
		response.ErrWithDetails(w, http.StatusBadRequest, "VALIDATION_ERROR", "Input validation failed", fieldErrors, requestID)
		return
	}

	p, err := h.repo.Update(r.Context(), id, u)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrProfileNotFound):
			response.Err(w, http.StatusNotFound, "NOT_FOUND", "Profile not found", requestID)
		case errors.Is(err, profile.ErrUsernameTaken):
			response.Err(w, http.StatusConflict, "USERNAME_TAKEN", "Username already exists", requestID)
		default:
			slog.Error("failed to update profile", "error", err, "requestId", requestID)
			response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update profile", requestID)
		}
		return
	}

	response.Success(w, http.StatusOK, p, requestID)
}

// AdminList handles GET /admin/profiles, the application review listing.
func (h *ProfileHandler) AdminList(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var filter profile.ListFilter
	if v := r.URL.Query().Get("userType"); v != "" {
		t, ok := profile.ParseUserType(v)
		if !ok {
			response.Err(w, http.StatusBadRequest, "INVALID_USER_TYPE", "userType must be \"student\", \"donor\" or \"admin\"", requestID)
			return
		}
		filter.UserType = &t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxListLimit {
			response.Err(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500", requestID)
			return
		}
		filter.Limit = limit
	}

	profiles, err := h.repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list profiles", "error", err, "requestId", requestID)
		response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list profiles", requestID)
		return
	}

	limit := filter.Limit
	if limit == 0 {
		limit = profile.DefaultListLimit
	}
	response.SuccessList(w, http.StatusOK, profiles, len(profiles), limit, requestID)
}
