package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/medicalq/backend/internal/api/auth"
	"github.com/medicalq/backend/internal/api/community"
)

// Config contains dependencies needed for the router setup.
type Config struct {
	AuthHandler      *auth.AuthHandler
	CommunityHandler *community.CommunityHandler
	AuthMiddleware   *auth.Middleware
	AllowedOrigins   []string
}

// SetupRouter initializes and configures the main application router.
// Server-wide middleware (logger, requestID, recoverer) are applied
// before mounting this router in main.go.
func SetupRouter(cfg *Config) chi.Router {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public auth routes.
		r.Group(func(r chi.Router) {
			r.Post("/auth/register", cfg.AuthHandler.Register)
			r.Post("/auth/login", cfg.AuthHandler.Login)
		})

		// Routes requiring a valid bearer token and an active local record.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.Authenticate)

			r.Get("/auth/profile", cfg.AuthHandler.GetProfile)
			r.Put("/auth/profile", cfg.AuthHandler.UpdateProfile)
			r.Put("/auth/change-password", cfg.AuthHandler.ChangePassword)
			r.Post("/auth/logout", cfg.AuthHandler.Logout)
			r.Delete("/auth/account", cfg.AuthHandler.DeleteAccount)

			r.Post("/community/questions", cfg.CommunityHandler.CreateQuestion)

			// Answering carries medical weight; only verified doctors pass.
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireVerifiedDoctor())
				r.Post("/community/questions/{questionID}/answers", cfg.CommunityHandler.CreateAnswer)
			})
		})

		// Browsing is public but personalizes when a token is supplied
		// (?mine=true filtering).
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.OptionalAuthenticate)

			r.Get("/community/questions", cfg.CommunityHandler.ListQuestions)
			r.Get("/community/questions/{questionID}", cfg.CommunityHandler.GetQuestion)
		})

		// Admin routes.
		r.Group(func(r chi.Router) {
			r.Use(cfg.AuthMiddleware.Authenticate)
			r.Use(auth.RequireAdmin())

			r.Put("/auth/verify-doctor/{doctorID}", cfg.AuthHandler.VerifyDoctor)
		})
	})

	return r
}
