package routes

import (
	"net/http"

	"github.com/AnshRaj112/somnia-backend/internal/handlers"
	"github.com/AnshRaj112/somnia-backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every endpoint. otpLimit wraps the routes that send
// or check codes; pass nil to leave them unlimited.
func SetupRoutes(r chi.Router, h *handlers.Handler, otpLimit func(http.Handler) http.Handler) {
	if otpLimit == nil {
		otpLimit = func(next http.Handler) http.Handler { return next }
	}
	requireAuth := middleware.RequireAuth(h.Auth())

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/guest", h.GuestLogin)

		// Password recovery (anonymous)
		r.With(otpLimit).Post("/password/forgot", h.ForgotPassword)
		r.With(otpLimit).Post("/password/verify", h.VerifyResetCode)
		r.Post("/password/reset", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/logout", h.Logout)
			r.Get("/me", h.Me)

			r.With(otpLimit).Post("/email/update/request", h.RequestEmailUpdate)
			r.With(otpLimit).Post("/email/update/confirm", h.ConfirmEmailUpdate)
			r.With(otpLimit).Post("/email/verify/request", h.RequestEmailVerification)
			r.With(otpLimit).Post("/email/verify/confirm", h.ConfirmEmailVerification)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/api/dreams", h.CreateDream)
		r.Get("/api/dreams", h.ListDreams)
		r.Get("/api/tags", h.ListTags)
	})
}
