package server

import (
	"fmt"
	"time"

	"rentalops/src/database"
	"rentalops/src/handler"
	"rentalops/src/logging"
	"rentalops/src/maintenance"
	"rentalops/src/metrics"
	"rentalops/src/middleware"
	"rentalops/src/notification"
	"rentalops/src/recovery"
	"rentalops/src/repository"
	"rentalops/src/tracker"

	logger "github.com/sirupsen/logrus"
)

// App is the wired error pipeline plus the property storage it guards.
type App struct {
	Metrics    *metrics.Collector
	Logger     *logging.ErrorLogger
	Tracker    *tracker.Tracker
	Dispatcher *notification.Dispatcher
	Recovery   *recovery.Registry
	Errors     *middleware.ErrorHandler
	Limiter    *handler.RateLimiter
	Properties *repository.PropertyRepository
	Scheduler  *maintenance.Scheduler

	conn         *database.Connection
	dashboardURL string
}

// NewApp builds every component from s. conn backs the property repository
// and the database recovery strategy.
func NewApp(s Settings, conn *database.Connection) (*App, error) {
	collector := metrics.New()

	rules := notification.SeedRules()
	if s.Notification.RulesFile != "" {
		extra, err := notification.LoadRulesFile(s.Notification.RulesFile)
		if err != nil {
			return nil, err
		}
		rules = notification.MergeRules(rules, extra)
		logger.WithFields(map[string]interface{}{
			"file":  s.Notification.RulesFile,
			"rules": len(extra),
		}).Info("Loaded notification rules")
	}
	dispatcher := notification.NewDispatcher(s.Notification,
		notification.WithRules(rules),
		notification.WithObserver(collector),
	)

	errLog := logging.New(s.Logging, logging.WithNotifier(dispatcher))
	track := tracker.New(tracker.WithObserver(collector))
	registry := recovery.Defaults(s.Recovery, conn, recovery.WithObserver(collector))
	breaker := middleware.NewCircuitBreaker(time.Now, collector)
	limiter := handler.NewRateLimiter(s.Handler, time.Now, handler.WithMaxWait(s.Recovery.MaxBackoff))

	app := &App{
		Metrics:      collector,
		Logger:       errLog,
		Tracker:      track,
		Dispatcher:   dispatcher,
		Recovery:     registry,
		Errors:       middleware.NewErrorHandler(s.Middleware, errLog, track, dispatcher, registry, breaker),
		Limiter:      limiter,
		conn:         conn,
		dashboardURL: s.Notification.DashboardURL,
	}
	if conn != nil && conn.DB() != nil {
		app.Properties = repository.NewPropertyRepository(conn.DB())
	}

	scheduler, err := maintenance.New(maintenance.Targets{
		Logger:     errLog,
		Tracker:    track,
		Breaker:    breaker,
		Budget:     registry.Budget(),
		Limiter:    limiter,
		Dispatcher: dispatcher,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule maintenance jobs: %w", err)
	}
	app.Scheduler = scheduler
	return app, nil
}

// Close flushes pending notifications and releases the log file and the
// database connection.
func (a *App) Close() error {
	if err := a.Logger.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close error log")
	}
	return a.conn.Close()
}
