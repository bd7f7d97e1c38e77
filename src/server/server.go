package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"rentalops/src/handler"
	"rentalops/src/middleware"
	"rentalops/src/monitoring"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"
)

// NewRouter mounts the property API, the monitoring API and the Prometheus
// endpoint behind the error middleware.
func NewRouter(a *App) http.Handler {
	eh := a.Errors

	// Router with middleware
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CaptureBody)
	r.Use(eh.Recoverer)

	r.NotFound(eh.NotFound)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})
	r.Handle("/metrics", a.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(a.Limiter.Middleware(eh.HandleError))

		if a.Properties != nil {
			r.Get("/properties", eh.Wrap(handler.ListPropertiesHandler(a.Properties)))
			r.Post("/properties", eh.Wrap(handler.CreatePropertyHandler(a.Properties)))
			r.Get("/properties/{id}", eh.Wrap(handler.GetPropertyHandler(a.Properties)))
		}

		api := monitoring.New(a.Tracker, a.Logger, a.Dispatcher, eh,
			monitoring.WithBreakers(eh.Breaker()),
			monitoring.WithAllowedOrigins(a.dashboardURL),
		)
		r.Mount("/monitoring", api.Routes())
	})

	return r
}

// StartServer serves until SIGINT or SIGTERM, then drains in-flight requests
// and stops the maintenance jobs.
func StartServer(cfg *Config, a *App) {
	// Graceful server
	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(a),
	}

	a.Scheduler.Start()

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
	a.Scheduler.Stop(ctx)
	if err := a.Close(); err != nil {
		logger.WithError(err).Error("Failed to release resources")
	}
}
