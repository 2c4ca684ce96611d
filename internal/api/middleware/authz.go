package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/studentfund/studentfund/internal/api/response"
	"github.com/studentfund/studentfund/internal/guard"
	"github.com/studentfund/studentfund/internal/profile"
)

const profileKey contextKey = "profile"

// ProfileLookup loads the caller's profile.
type ProfileLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*profile.Profile, error)
}

// RequireUserType returns middleware that admits only identities whose profile
// has the required user type. It applies the same rule as the client guard: an
// identity without a profile is rejected.
func RequireUserType(profiles ProfileLookup, required profile.UserType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			identity := GetIdentity(r.Context())
			if identity == nil {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token is required", requestID)
				return
			}

			p, err := profiles.GetByID(r.Context(), identity.UserID)
			if err != nil && !errors.Is(err, profile.ErrProfileNotFound) {
				slog.Error("failed to load caller profile", "error", err, "requestId", requestID)
				response.Err(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Authorization failed", requestID)
				return
			}

			decision := guard.Decide(guard.Input{
				Authenticated: true,
				Profile:       p,
				Required:      required,
			})
			if decision != guard.Allow {
				response.Err(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions", requestID)
				return
			}

			ctx := context.WithValue(r.Context(), profileKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetProfile retrieves the profile loaded by RequireUserType.
func GetProfile(ctx context.Context) *profile.Profile {
	if p, ok := ctx.Value(profileKey).(*profile.Profile); ok {
		return p
	}
	return nil
}
