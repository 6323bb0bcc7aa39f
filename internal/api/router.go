package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coinfolio/taxledger-backend/internal/api/handlers"
	custommiddleware "github.com/coinfolio/taxledger-backend/internal/api/middleware"
	"github.com/coinfolio/taxledger-backend/internal/config"
	"github.com/coinfolio/taxledger-backend/internal/credentials"
	"github.com/coinfolio/taxledger-backend/internal/model"
	"github.com/coinfolio/taxledger-backend/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	reportService *service.ReportService,
	vault *credentials.Vault,
	defaultPolicy model.TaxPolicy,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		r.Route("/report", func(r chi.Router) {
			reportHandler := handlers.NewReportHandler(reportService, defaultPolicy)
			r.Get("/", reportHandler.AllReports)
			r.Post("/", reportHandler.CreateReport)

			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Get("/", reportHandler.ReportStatus)
				r.Post("/cancel", reportHandler.CancelReport)
				r.Get("/result", reportHandler.ReportResult)
			})
		})

		r.Route("/credentials", func(r chi.Router) {
			credentialHandler := handlers.NewCredentialHandler(vault)
			r.Get("/", credentialHandler.Locations)
			r.Put("/{location}", credentialHandler.SetCredential)
			r.Delete("/{location}", credentialHandler.DeleteCredential)
		})
	})

	return r
}
