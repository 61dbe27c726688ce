package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"notegate/internal/bindings"
	"notegate/internal/config"
	"notegate/internal/infrastructure"
	customMiddleware "notegate/internal/middleware"
	"notegate/internal/notes"
	"notegate/internal/security"
	"notegate/internal/services"
	handlers "notegate/internal/transport/http"
)

// Version is the build version, overridable at link time.
var Version = "dev"

// Application owns the configured dependencies and the HTTP server.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	telemetry *infrastructure.TelemetryProviders

	relayService  services.RelayService
	healthService *services.HealthService
}

// NewApplication loads configuration and wires the service graph.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &Application{Config: cfg, Logger: logger}

	if cfg.Telemetry.Enabled {
		providers, err := infrastructure.InitializeTelemetry("notegate", Version, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.telemetry = providers
	}

	if err := a.wireServices(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Application) wireServices() error {
	cfg := a.Config

	token := cfg.Store.Token
	if cfg.Store.TokenEncrypted != "" {
		decrypted, err := security.DecryptToken(cfg.Store.TokenEncrypted, cfg.Store.TokenPassphrase)
		if err != nil {
			return fmt.Errorf("failed to decrypt store token: %w", err)
		}
		token = decrypted
	}

	store := bindings.NewGitHubStore(bindings.GitHubStoreConfig{
		Repo:    cfg.Store.Repo,
		Path:    cfg.Store.Path,
		Branch:  cfg.Store.Branch,
		Token:   token,
		Timeout: cfg.Store.Timeout,
	}, a.Logger)

	validator := bindings.NewValidator(store, cfg.Store.WriteRetries, a.Logger)
	if cfg.Store.UseRawMirror {
		validator = validator.WithFastReader(store)
	}
	issuer := bindings.NewIssuer(store, cfg.Store.WriteRetries, a.Logger)

	extractor := notes.NewExtractor(notes.ExtractorConfig{
		UserAgent: cfg.Extractor.UserAgent,
		Timeout:   cfg.Extractor.Timeout,
	}, a.Logger)

	var metrics *services.RelayMetrics
	if a.telemetry != nil {
		m, err := services.NewRelayMetrics(a.telemetry.Meter)
		if err != nil {
			return fmt.Errorf("failed to create relay metrics: %w", err)
		}
		metrics = m
	}

	a.relayService = services.NewRelayService(validator, issuer, extractor, metrics, a.Logger)
	a.healthService = services.NewHealthService(store, Version, a.Logger)
	return nil
}

// setupRouter assembles the chi router with the middleware chain and all
// handler mounts.
func (a *Application) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.RateLimit.Enabled {
		limiter := customMiddleware.NewRateLimiter(
			a.Config.RateLimit.RPS,
			a.Config.RateLimit.Burst,
			a.Logger,
		)
		r.Use(limiter.Handler)
	}

	relayHandler := handlers.NewRelayHandler(a.relayService, a.Config.Admin.Password, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.healthService, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout))

		r.Get("/health", healthHandler.HealthCheck)
		r.Get("/health/ready", healthHandler.ReadinessCheck)
		r.Get("/version", healthHandler.Version)

		r.Post("/generate_key", relayHandler.GenerateKey)
		r.Get("/parse", relayHandler.Parse)
	})

	if a.Config.Telemetry.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/", healthHandler.Live)

	return r
}

// Run starts the HTTP server and blocks until shutdown completes.
func (a *Application) Run() error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.setupRouter(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("server starting", slog.Int("port", a.Config.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		if a.telemetry != nil {
			if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
				a.Logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
			}
		}
		infrastructure.CloseLogFile()
		return nil
	})

	return g.Wait()
}
