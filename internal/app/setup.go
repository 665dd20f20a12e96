// Package app contains the application setup for the storefront service.
package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/popuplink/popuplink/internal/checkout"
	"github.com/popuplink/popuplink/internal/config"
	"github.com/popuplink/popuplink/internal/payment"
	"github.com/popuplink/popuplink/internal/service"
	"github.com/popuplink/popuplink/internal/store"
	"github.com/popuplink/popuplink/internal/transport/rest"
	"github.com/popuplink/popuplink/pkg/messaging"
	"github.com/popuplink/popuplink/pkg/server"
)

type Dependencies struct {
	Store             store.StorefrontStore
	StorefrontService service.StorefrontService
	Sessions          *payment.SessionManager
	Checkouts         *checkout.Manager
	Logger            *slog.Logger
}

// SetupDependencies wires the storefront service, payment session manager and
// checkout manager over the given store, provider and publisher.
func SetupDependencies(st store.StorefrontStore, provider payment.Provider,
	publisher messaging.Publisher, cfg *config.Config, logger *slog.Logger) *Dependencies {

	svc := service.NewService(st)
	sessions := payment.NewSessionManager(provider, cfg.Payment.ConnectTimeout, logger)
	checkouts := checkout.NewManager(svc, sessions, publisher, checkout.Config{
		Currency:      cfg.Payment.Currency,
		TTL:           cfg.Checkout.TTL,
		SweepInterval: cfg.Checkout.SweepInterval,
	}, logger)

	return &Dependencies{
		Store:             st,
		StorefrontService: svc,
		Sessions:          sessions,
		Checkouts:         checkouts,
		Logger:            logger,
	}
}

// SetupHttpHandler initializes the HTTP routes for the storefront service.
// Used by handler tests to set up the full router.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the storefront service.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.StorefrontService, deps.Checkouts, deps.Sessions, deps.Store, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures an HTTP server for the storefront service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
