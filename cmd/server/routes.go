package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/HugoP8/whazaaa/internal/controller"
	"github.com/HugoP8/whazaaa/internal/metrics"
)

type routes struct {
	JWTSecret  string
	CORSOrigin string
	RateLimit  *controller.RateLimiter
	Campaigns  *controller.CampaignController
	WhatsApp   *controller.WhatsAppController
	Events     http.Handler
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{rt.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", metrics.Handler())

	auth := controller.AuthMiddleware(rt.JWTSecret)

	// The socket is long-lived, so it stays out of the request timeout.
	r.With(auth).Get("/ws", rt.Events.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Use(rt.RateLimit.Middleware)
		r.Use(middleware.Timeout(60 * time.Second))

		r.Get("/health", controller.Health)

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Route("/campaigns", func(r chi.Router) {
				r.Post("/", rt.Campaigns.CreateCampaign)
				r.Get("/", rt.Campaigns.ListCampaigns)
				r.Get("/{id}", rt.Campaigns.GetCampaignDetails)
			})

			r.Route("/whatsapp", func(r chi.Router) {
				r.Post("/connect", rt.WhatsApp.Connect)
				r.Get("/status", rt.WhatsApp.Status)
				r.Post("/logout", rt.WhatsApp.Logout)
				r.Get("/groups", rt.WhatsApp.Groups)
				r.Get("/contacts", rt.WhatsApp.Contacts)
				r.Post("/send", rt.WhatsApp.Send)
			})
		})
	})

	return r
}
