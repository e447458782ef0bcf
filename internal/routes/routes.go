package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/kdlacuna/kainan/internal/handlers"
	"github.com/kdlacuna/kainan/internal/middleware"
)

// RegisterRoutes registers both login flows. Each flow exposes the same
// operations wired to its own handler instance.
func RegisterRoutes(router chi.Router, staffLogin, studentLogin *handlers.LoginHandler) {
	rateLimitConfig := middleware.DefaultLoginRateLimit()

	router.Route("/auth/staff", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/login", staffLogin.SubmitCredentials)
		r.Post("/verify", staffLogin.SubmitCode)
		r.Post("/resend", staffLogin.ResendCode)
		r.Post("/logout", staffLogin.Logout)
	})

	router.Route("/auth/student", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/login", studentLogin.SubmitCredentials)
		r.Post("/verify", studentLogin.SubmitCode)
		r.Post("/resend", studentLogin.ResendCode)
		r.Post("/logout", studentLogin.Logout)
	})
}
