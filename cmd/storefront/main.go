// Package main implements the pop-up storefront HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "net/http/pprof"

	"github.com/popuplink/popuplink/internal/app"
	"github.com/popuplink/popuplink/internal/config"
	"github.com/popuplink/popuplink/internal/payment"
	"github.com/popuplink/popuplink/internal/store"
	"github.com/popuplink/popuplink/pkg/bootstrap"
	pkgconfig "github.com/popuplink/popuplink/pkg/config"
	"github.com/popuplink/popuplink/pkg/config/configloader"
	"github.com/popuplink/popuplink/pkg/messaging"
	"github.com/popuplink/popuplink/pkg/nats"
	"golang.org/x/sync/errgroup"
)

const serviceName = "storefront"

func main() {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run initializes the application and starts the HTTP and pprof servers plus
// the checkout session janitor.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName)
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	st, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return err
	}

	provider := payment.NewSimProvider(cfg.Payment.WalletSupported)
	deps := app.SetupDependencies(st, provider, publisher, cfg, logger)

	// A credential saved in a previous run starts session establishment
	// immediately; until it completes, checkout entry reports the provider as
	// unavailable.
	if credential, err := st.FindCredential(ctx); err != nil {
		return fmt.Errorf("failed to load payment credential: %w", err)
	} else if credential != "" {
		deps.Sessions.SetCredential(credential)
	}

	httpServer := app.SetupHttpServer(deps, cfg)
	pprofServer := &http.Server{
		Addr: cfg.PProf.Addr,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Sweep abandoned checkout sessions
	g.Go(func() error {
		if err := deps.Checkouts.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("checkout janitor failed: %w", err)
		}
		return nil
	})

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// newStore selects the storefront store backend from configuration.
func newStore(ctx context.Context, cfg *config.Config) (store.StorefrontStore, error) {
	switch cfg.Store.Backend {
	case pkgconfig.StoreBackendPostgres:
		dbPool, err := bootstrap.NewDbPool(ctx, cfg.Database.URL, cfg.Database.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create database connection pool: %w", err)
		}
		return store.NewPgStore(dbPool), nil
	default:
		return store.NewInMemoryStore(), nil
	}
}

// newPublisher connects to NATS when enabled and falls back to a no-op
// publisher otherwise.
func newPublisher(cfg *config.Config, logger *slog.Logger) (messaging.Publisher, error) {
	if !cfg.Nats.Enabled {
		return messaging.NoopPublisher{}, nil
	}
	nc, err := nats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := nats.NewJetStreamContext(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	logger.Info("Connected to NATS", slog.String("url", cfg.Nats.Url))
	return nats.NewNatsPublisher(js), nil
}
