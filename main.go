package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"stash-api/internal/config"
	"stash-api/internal/container"
	"stash-api/internal/gate"
	"stash-api/internal/handler"
	"stash-api/internal/middleware"
	"stash-api/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	container   *container.Container
	server      *http.Server
	stopSweeper context.CancelFunc
	log         *logger.Logger
	mu          sync.Mutex
	closed      bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errors []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errors = append(errors, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	if r.stopSweeper != nil {
		r.stopSweeper()
	}

	// Flush queued analytics while the database is still open
	r.log.Info("Stopping analytics service...")
	if err := r.container.GetAnalyticsService().Stop(ctx); err != nil {
		r.log.WithError(err).Error("Failed to stop analytics service")
		errors = append(errors, fmt.Errorf("analytics shutdown: %w", err))
	} else {
		r.log.Info("Analytics service stopped successfully")
	}

	r.container.Close()
	r.log.Info("Connections closed")

	if len(errors) > 0 {
		r.log.WithField("error_count", len(errors)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errors), errors)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"gate_mode":   cfg.GateMode,
	}).Info("Starting stash-api server")

	ctx := context.Background()

	// Create dependency injection container
	c, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	if err := c.GetAnalyticsService().Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start analytics service")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin)
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go sweepIdle(sweepCtx, limiter, c.GetGateService(), log)

	router := setupRouter(c, limiter)

	// WriteTimeout stays zero: gate streams are long-lived and every other
	// route is bounded by the Timeout middleware
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	server.RegisterOnShutdown(c.Hub.CloseAll)

	resources := &Resources{
		container:   c,
		server:      server,
		stopSweeper: stopSweeper,
		log:         log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container, limiter *middleware.RateLimiter) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	authService := c.GetAuthService()
	analytics := c.GetAnalyticsService()
	gates := c.GetGateService()
	secure := !cfg.IsDevelopment()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))

	healthHandler := handler.NewHealthHandler(c)
	assetHandler := handler.NewAssetHandler(c.GetAssetService(), gates, analytics, log)
	gateHandler := handler.NewGateHandler(gates, c.AuthBroker, c.Hub, analytics, log)
	authHandler := handler.NewAuthHandler(authService, c.AuthBroker, gates, analytics, secure, log)
	analyticsHandler := handler.NewAnalyticsHandler(analytics, log)

	r.Get("/health", healthHandler.Check)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Visitor(middleware.VisitorConfig{Secure: secure}, log))

		// Shared-cacheable catalog reads
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(30 * time.Second))
			r.Get("/assets", assetHandler.List)
			r.Get("/assets/{id}", assetHandler.Get)
			r.Get("/designs", assetHandler.StaticPaths)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(authService, log))

			// Held open for the life of the page
			r.Get("/gate/stream", gateHandler.Stream)

			r.Group(func(r chi.Router) {
				r.Use(chiMiddleware.Timeout(30 * time.Second))

				r.Get("/gallery", assetHandler.Gallery)
				r.Get("/designs/{slug}", assetHandler.Design)

				r.Route("/gate", func(r chi.Router) {
					r.Get("/check", gateHandler.Check)
					r.Post("/views", gateHandler.RecordView)
					r.Get("/counts", gateHandler.Counts)
					r.Delete("/", gateHandler.Reset)
					r.Post("/suppress", gateHandler.Suppress)
					r.Delete("/suppress", gateHandler.ClearSuppression)
					r.Post("/modal", gateHandler.ShowModal)
					r.Delete("/modal", gateHandler.HideModal)
				})

				r.Post("/auth/session", authHandler.CreateSession)
				r.Delete("/auth/session", authHandler.DeleteSession)

				// Writes are limited per visitor
				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimit(limiter, log))
					r.Post("/views", assetHandler.RecordView)
					r.Post("/submit", assetHandler.Submit)
					r.Post("/analytics", analyticsHandler.Track)
				})
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(authService, log))
			r.Get("/user/profile", authHandler.GetProfile)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":{"type":"not_found","message":"Endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}

// sweepIdle drops idle visitors from the limiter and from in-process
// quota storage once a minute
func sweepIdle(ctx context.Context, limiter *middleware.RateLimiter, gates *gate.Service, log *logger.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := limiter.Sweep(); removed > 0 {
				log.WithField("removed", removed).Debug("Rate limiter swept")
			}
			if removed := gates.SweepStorage(); removed > 0 {
				log.WithField("removed", removed).Debug("Quota storage swept")
			}
		}
	}
}
