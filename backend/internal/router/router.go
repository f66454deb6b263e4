package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itchan-dev/accounts/backend/internal/setup"
	mw "github.com/itchan-dev/accounts/shared/middleware"
	"github.com/itchan-dev/accounts/shared/middleware/metrics"
)

// New builds the chi router with every route of the service.
// Limiters attached with Use count requests of all routes in that group together.
func New(deps *setup.Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Compress(5, "application/json"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Public.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.SecurityHeaders(deps.Config.Public.SecureCookies))

	h := deps.Handler
	limits := deps.RateLimiters

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/account", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit(limits.RegisterPerIP, mw.GetIP))
			r.Use(mw.RateLimit(limits.RegisterPerEmail, mw.GetEmailFromBody))
			r.Post("/register", h.Register)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit(limits.LoginPerIP, mw.GetIP))
			r.Post("/login", h.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit(limits.ConfirmPerEmail, mw.GetEmailFromBody))
			r.Post("/confirm-email", h.ConfirmEmail)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RateLimit(limits.ResendPerIP, mw.GetIP))
			r.Use(mw.RateLimit(limits.ResendPerEmail, mw.GetEmailFromBody))
			r.Post("/resend-email-confirmation-link", h.ResendConfirmation)
		})

		r.Post("/logout", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.NeedAuth())
			r.Get("/refresh-user-token", h.RefreshUserToken)
		})
	})

	return r
}
