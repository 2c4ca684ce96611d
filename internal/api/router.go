package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/studentfund/studentfund/internal/api/handler"
	"github.com/studentfund/studentfund/internal/api/middleware"
	"github.com/studentfund/studentfund/internal/metrics"
	"github.com/studentfund/studentfund/internal/profile"
	"github.com/studentfund/studentfund/internal/storage"
)

// AuthBackend is the account service the /auth routes and bearer middleware use.
type AuthBackend interface {
	handler.AuthService
	middleware.Authenticator
}

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	DBPinger       handler.Pinger
	SessionPinger  handler.Pinger
	Version        string
	OpenAPISpec    []byte
	APIKey         string
	AllowedOrigins []string
	Auth           AuthBackend
	Profiles       profile.Repository
	Store          *storage.FileStore
	Buckets        *storage.Registry
	PublicBaseURL  string
	Metrics        *metrics.Metrics
}

// withCORS lets the browser client call the API with bearer and apikey headers.
func withCORS(allowedOrigins []string) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", middleware.APIKeyHeader, "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})
	return c.Handler
}

// NewRouter creates and configures a Chi router with all middleware and routes.
func NewRouter(deps RouterDeps) *chi.Mux {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Logger)
	if len(deps.AllowedOrigins) > 0 {
		r.Use(withCORS(deps.AllowedOrigins))
	}

	healthHandler := handler.NewHealthHandler(deps.DBPinger, deps.SessionPinger, deps.Version)
	r.Get("/health", healthHandler.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	if len(deps.OpenAPISpec) > 0 {
		openapiHandler := handler.NewOpenAPIHandler(deps.OpenAPISpec)
		r.Get("/openapi.json", openapiHandler.ServeHTTP)
	}

	var storageHandler *handler.StorageHandler
	if deps.Store != nil && deps.Buckets != nil {
		storageHandler = handler.NewStorageHandler(deps.Store, deps.Buckets, deps.PublicBaseURL, deps.Metrics)
		r.Get("/storage/public/{bucket}/*", storageHandler.Public)
	}

	if deps.Auth == nil || deps.Profiles == nil {
		return r
	}

	authHandler := handler.NewAuthHandler(deps.Auth, deps.Metrics)
	profileHandler := handler.NewProfileHandler(deps.Profiles, deps.Metrics)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKey(deps.APIKey))

		r.Post("/auth/signup", authHandler.SignUp)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Get("/usernames/{username}", profileHandler.UsernameAvailability)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Auth))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/user", authHandler.User)

			r.Post("/profiles", profileHandler.Create)
			r.Get("/profiles/{id}", profileHandler.Get)
			r.Patch("/profiles/{id}", profileHandler.Update)

			r.With(middleware.RequireUserType(deps.Profiles, profile.Admin)).
				Get("/admin/profiles", profileHandler.AdminList)

			if storageHandler != nil {
				r.Put("/storage/{bucket}/{userID}/{name}", storageHandler.Upload)
				r.Get("/storage/{bucket}", storageHandler.List)
				r.Delete("/storage/{bucket}", storageHandler.Delete)
			}
		})
	})

	return r
}
