package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/kiranshivaraju/dealerdial/internal/api/middleware"
	"github.com/kiranshivaraju/dealerdial/internal/api/response"
)

// ScopeAnalyze and ScopeAdmin are the API-key scopes the router checks.
const (
	ScopeAnalyze = "analyze"
	ScopeAdmin   = "admin"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler    http.HandlerFunc
	TriggerAnalyze   http.HandlerFunc
	AnalyzeStatus    http.HandlerFunc
	CancelAnalyze    http.HandlerFunc
	TelephonyEvents  http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Provider callbacks authenticate with a shared secret, not an API key.
	r.Post("/api/v1/telephony/events", orNotImplemented(deps.TelephonyEvents))

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(ScopeAnalyze))

			r.With(deps.RateLimit.AnalyzeQuota).
				Post("/api/v1/sessions/{sessionID}/analyze", orNotImplemented(deps.TriggerAnalyze))
			r.Get("/api/v1/sessions/{sessionID}/analyze", orNotImplemented(deps.AnalyzeStatus))
			r.Delete("/api/v1/sessions/{sessionID}/analyze", orNotImplemented(deps.CancelAnalyze))
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
