package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/auth"
	"github.com/ayush/personal-library/internal/books"
	"github.com/ayush/personal-library/internal/middleware"
	"github.com/ayush/personal-library/internal/response"
	"github.com/ayush/personal-library/internal/telemetry"
)

// RouterDeps are the handlers and guards mounted by NewRouter. Revocations and
// Limiter may be nil. TrustProxy takes the client address from X-Forwarded-For and
// X-Real-IP; leave it off unless a proxy in front of the service sets them.
type RouterDeps struct {
	Auth           *auth.Handler
	Books          *books.Handler
	Tokens         middleware.TokenVerifier
	Revocations    middleware.RevocationChecker
	Limiter        *middleware.RateLimiter
	AllowedOrigins []string
	TrustProxy     bool
	Log            *zap.Logger
}

// NewRouter builds the HTTP surface of the library API.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if d.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(telemetry.Middleware)
	r.Use(middleware.RequestLogger(d.Log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{"X-Trace-ID", "Retry-After"},
		MaxAge:         300,
	}))
	if d.Limiter != nil {
		r.Use(d.Limiter.Handler)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(d.Tokens, d.Revocations, d.Log)

	// Auth routes
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", d.Auth.Register)
		r.Post("/login", d.Auth.Login)
		r.With(requireAuth).Post("/logout", d.Auth.Logout)
		r.With(requireAuth).Get("/me", d.Auth.Me)
	})

	// Book routes (protected)
	r.Route("/api/books", func(r chi.Router) {
		r.Use(requireAuth)
		d.Books.Routes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Fail(w, http.StatusNotFound, response.CodeNotFound, "route not found")
	})
	return r
}
