package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes configures all simscan API routes.
func SetupRoutes(r chi.Router, h *SIMHandler) {
	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ports", h.ListPorts)

		// Scans
		r.Post("/scan", h.RunScan)
		r.Get("/data", h.GetData)
		r.Post("/reset", h.ResetData)

		// SMS storage
		r.Route("/sms", func(r chi.Router) {
			r.Post("/delete", h.DeleteSMS)
			r.Post("/count", h.CountSMS)
			r.Post("/last", h.LastSMS)
		})

		// Credentials
		r.Post("/sims", h.AddSIM)
		r.Post("/sims/bulk", h.BulkAddSIMs)

		r.Get("/modemmanager", h.GetModemManagerStatus)
	})
}
