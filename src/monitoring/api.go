// Package monitoring is the admin surface over the error pipeline: stats,
// health, alerts, metrics, trends, export, a synthetic error injector and
// reset. It holds no state of its own.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/logging"
	"rentalops/src/middleware"
	"rentalops/src/model"
	"rentalops/src/notification"
	"rentalops/src/tracker"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

type errorTracker interface {
	Track(err error, ec *model.ErrorContext)
	Summary() tracker.Summary
	Alerts(unacknowledgedOnly bool) []tracker.Alert
	AcknowledgeAlert(id string) bool
	AcknowledgeAll() int
	Trends() []tracker.TrendPoint
	Export() tracker.Export
	Reset()
	Subscribe() (<-chan tracker.Alert, func())
}

type errorLogger interface {
	LogError(err error, ec *model.ErrorContext, opts ...logging.LogOption) logging.Severity
	Statistics() logging.Stats
	HealthCheck() logging.Health
	ResetCounters()
}

type notifier interface {
	Stats() notification.Stats
	HealthCheck() notification.Health
	TestNotification(ctx context.Context, channel string) []notification.ChannelResult
	ResetHistory()
}

type breakerSnapshotter interface {
	Snapshot() []middleware.BreakerState
}

type handlerWrapper interface {
	Wrap(fn middleware.HandlerFunc) http.HandlerFunc
}

type API struct {
	tracker  errorTracker
	log      errorLogger
	notifier notifier
	breakers breakerSnapshotter
	errors   handlerWrapper
	origins  map[string]struct{}
	now      func() time.Time
	started  time.Time
}

type Option func(*API)

func WithClock(now func() time.Time) Option {
	return func(a *API) { a.now = now }
}

func WithBreakers(b breakerSnapshotter) Option {
	return func(a *API) { a.breakers = b }
}

// WithAllowedOrigins lets browser pages from these origins open the alert
// stream. Invalid entries are ignored.
func WithAllowedOrigins(origins ...string) Option {
	return func(a *API) {
		for _, o := range origins {
			if u, err := url.Parse(strings.TrimSpace(o)); err == nil && u.Host != "" {
				a.origins[normalizeOrigin(u)] = struct{}{}
			}
		}
	}
}

func New(t errorTracker, l errorLogger, n notifier, errs handlerWrapper, opts ...Option) *API {
	a := &API{tracker: t, log: l, notifier: n, errors: errs, now: time.Now, origins: make(map[string]struct{})}
	for _, opt := range opts {
		opt(a)
	}
	a.started = a.now()
	return a
}

// Routes mounts under /api/monitoring.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stats", a.errors.Wrap(a.stats))
	r.Get("/health", a.errors.Wrap(a.health))
	r.Get("/alerts", a.errors.Wrap(a.alerts))
	r.Get("/alerts/stream", a.streamAlerts)
	r.Post("/alerts/{id}/acknowledge", a.errors.Wrap(a.acknowledge))
	r.Get("/metrics", a.errors.Wrap(a.metrics))
	r.Get("/trends", a.errors.Wrap(a.trends))
	r.Post("/test", a.errors.Wrap(a.test))
	r.Get("/export", a.errors.Wrap(a.export))
	r.Post("/reset", a.errors.Wrap(a.reset))
	if a.breakers != nil {
		r.Get("/breakers", a.errors.Wrap(a.listBreakers))
	}
	return r
}

type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func (a *API) respond(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Timestamp: a.now()}); err != nil {
		logger.WithError(err).Warn("Failed to write monitoring response")
	}
	return nil
}

func invalidParam(field, value string) error {
	return apperrors.NewValidationError("invalid query parameter "+field,
		[]apperrors.FieldViolation{apperrors.InvalidFormat(field, value)})
}

func (a *API) stats(w http.ResponseWriter, _ *http.Request) error {
	data := map[string]interface{}{
		"tracker":       a.tracker.Summary(),
		"logger":        a.log.Statistics(),
		"notifications": a.notifier.Stats(),
	}
	if a.breakers != nil {
		open := 0
		for _, b := range a.breakers.Snapshot() {
			if b.Open {
				open++
			}
		}
		data["openCircuits"] = open
	}
	return a.respond(w, http.StatusOK, data)
}

type componentHealth struct {
	Status               string `json:"status"`
	TotalErrors          int    `json:"totalErrors"`
	UnacknowledgedAlerts int    `json:"unacknowledgedAlerts"`
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) error {
	logHealth := a.log.HealthCheck()
	notifyHealth := a.notifier.HealthCheck()
	summary := a.tracker.Summary()

	status := "healthy"
	if notifyHealth.Status != "healthy" {
		status = "degraded"
	}
	if logHealth.Status != "healthy" {
		status = "unhealthy"
	}
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	return a.respond(w, code, map[string]interface{}{
		"status": status,
		"uptime": a.now().Sub(a.started).Round(time.Second).String(),
		"components": map[string]interface{}{
			"logger": logHealth,
			"tracker": componentHealth{
				Status:               "healthy",
				TotalErrors:          summary.TotalErrors,
				UnacknowledgedAlerts: summary.UnacknowledgedAlerts,
			},
			"notifications": notifyHealth,
		},
	})
}

func (a *API) alerts(w http.ResponseWriter, r *http.Request) error {
	unack := false
	if raw := r.URL.Query().Get("unacknowledged"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return invalidParam("unacknowledged", raw)
		}
		unack = v
	}
	alerts := a.tracker.Alerts(unack)
	return a.respond(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (a *API) acknowledge(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	if !a.tracker.AcknowledgeAlert(id) {
		return apperrors.NewNotFoundError("Alert", id)
	}
	return a.respond(w, http.StatusOK, map[string]interface{}{"id": id, "acknowledged": true})
}

func (a *API) metrics(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "24h"
	}
	window, err := parseWindow(timeframe, 24*time.Hour)
	if err != nil {
		return invalidParam("timeframe", timeframe)
	}
	now := a.now()
	filter := metricsFilter{
		Since:    now.Add(-window),
		Code:     q.Get("errorType"),
		Endpoint: q.Get("endpoint"),
		User:     q.Get("user"),
	}
	if raw := q.Get("statusCode"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			return invalidParam("statusCode", raw)
		}
		filter.Status = status
	}

	report := buildMetricsReport(filter.apply(a.tracker.Trends()), timeframe, now)
	switch format := strings.ToLower(q.Get("format")); format {
	case "", formatJSON:
		return a.respond(w, http.StatusOK, report)
	case formatCSV:
		writeTrendsCSV(w, "", report.Trends)
		return nil
	case formatXML:
		writeXML(w, "", report)
		return nil
	default:
		return invalidParam("format", format)
	}
}

func (a *API) trends(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	period, err := parseWindow(q.Get("period"), 24*time.Hour)
	if err != nil {
		return invalidParam("period", q.Get("period"))
	}
	granularity, err := parseGranularity(q.Get("granularity"))
	if err != nil || granularity > period || period/granularity > maxTrendBuckets {
		return invalidParam("granularity", q.Get("granularity"))
	}
	var codes []string
	for _, c := range strings.Split(q.Get("errorTypes"), ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return a.respond(w, http.StatusOK, AnalyzeTrends(a.tracker.Trends(), a.now(), period, granularity, codes))
}

type testRequest struct {
	Type              string `json:"type"`
	TestNotifications bool   `json:"testNotifications"`
	Channel           string `json:"channel"`
}

// syntheticError builds the injected error for a test run.
func syntheticError(kind string) (*apperrors.AppError, bool) {
	mark := apperrors.WithContext("synthetic", true)
	switch kind {
	case "database":
		return apperrors.NewDatabaseError("Synthetic database failure", nil, "SELECT 1", false, mark), true
	case "validation":
		return apperrors.NewValidationError("Synthetic validation failure",
			[]apperrors.FieldViolation{apperrors.RequiredField("test_field")}, mark), true
	case "notfound", "not_found":
		return apperrors.NewNotFoundError("TestResource", "test-123", mark), true
	case "authentication":
		return apperrors.NewAuthenticationError("Synthetic authentication failure", mark), true
	case "ratelimit", "rate_limit":
		return apperrors.NewRateLimitError(60, mark), true
	case "external":
		return apperrors.NewExternalServiceError("TestService", "Synthetic external service failure", nil, mark), true
	case "", "generic":
		return apperrors.NewAppError("Synthetic application error", http.StatusInternalServerError, "TEST_ERROR", mark), true
	default:
		return nil, false
	}
}

// test runs a synthetic error through the logger and the tracker and,
// optionally, a diagnostic send on the notification channels.
func (a *API) test(w http.ResponseWriter, r *http.Request) error {
	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError("request body must be a JSON object",
			[]apperrors.FieldViolation{apperrors.InvalidFormat("body", nil)})
	}
	q := r.URL.Query()
	if req.Type == "" {
		req.Type = q.Get("type")
	}
	if raw := q.Get("testNotifications"); raw != "" && !req.TestNotifications {
		req.TestNotifications, _ = strconv.ParseBool(raw)
	}

	appErr, ok := syntheticError(strings.ToLower(req.Type))
	if !ok {
		return invalidParam("type", req.Type)
	}

	ec := middleware.BuildContext(r)
	severity := a.log.LogError(appErr, ec, logging.SkipNotify())
	a.tracker.Track(appErr, ec)

	components := map[string]string{
		"logger":        "tested",
		"tracker":       "tested",
		"notifications": "skipped",
	}
	data := map[string]interface{}{
		"errorType":  req.Type,
		"error":      appErr.Serialize(),
		"severity":   severity,
		"components": components,
	}
	if req.TestNotifications {
		results := a.notifier.TestNotification(context.WithoutCancel(r.Context()), req.Channel)
		components["notifications"] = "tested"
		data["notificationResults"] = results
	}
	return a.respond(w, http.StatusOK, data)
}

func boolParam(q map[string][]string, name string, fallback bool) (bool, error) {
	vals := q[name]
	if len(vals) == 0 || vals[0] == "" {
		return fallback, nil
	}
	return strconv.ParseBool(vals[0])
}

func (a *API) export(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()
	var opts exportOptions
	var err error
	if opts.Start, err = parseDate(q.Get("startDate"), false); err != nil {
		return invalidParam("startDate", q.Get("startDate"))
	}
	if opts.End, err = parseDate(q.Get("endDate"), true); err != nil {
		return invalidParam("endDate", q.Get("endDate"))
	}
	if opts.IncludeStack, err = boolParam(q, "includeStack", false); err != nil {
		return invalidParam("includeStack", q.Get("includeStack"))
	}
	if opts.IncludeSensitive, err = boolParam(q, "includeSensitive", false); err != nil {
		return invalidParam("includeSensitive", q.Get("includeSensitive"))
	}

	report := buildExport(a.tracker.Export(), opts)
	now := a.now()
	switch format := strings.ToLower(q.Get("format")); format {
	case "", formatJSON:
		writeAttachmentJSON(w, exportFilename(now, formatJSON), report)
	case formatCSV:
		writeTrendsCSV(w, exportFilename(now, formatCSV), report.Trends)
	case formatXML:
		writeXML(w, exportFilename(now, formatXML), report)
	default:
		return invalidParam("format", format)
	}
	logger.WithFields(logger.Fields{
		"format":           q.Get("format"),
		"includeSensitive": opts.IncludeSensitive,
	}).Info("Error data exported")
	return nil
}

type resetRequest struct {
	ResetMetrics       *bool `json:"resetMetrics"`
	ResetAlerts        *bool `json:"resetAlerts"`
	ResetNotifications *bool `json:"resetNotifications"`
	ConfirmReset       *bool `json:"confirmReset"`
}

// reset is guarded by confirmReset=true, from the query or a JSON body.
// Metrics are reset unless resetMetrics=false.
func (a *API) reset(w http.ResponseWriter, r *http.Request) error {
	var body resetRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewValidationError("request body must be a JSON object",
			[]apperrors.FieldViolation{apperrors.InvalidFormat("body", nil)})
	}
	q := r.URL.Query()
	flag := func(v *bool, name string, fallback bool) (bool, error) {
		if v != nil {
			return *v, nil
		}
		return boolParam(q, name, fallback)
	}

	confirm, err := flag(body.ConfirmReset, "confirmReset", false)
	if err != nil || !confirm {
		return apperrors.NewValidationError("reset must be confirmed with confirmReset=true",
			[]apperrors.FieldViolation{apperrors.RequiredField("confirmReset")})
	}
	resetMetrics, err := flag(body.ResetMetrics, "resetMetrics", true)
	if err != nil {
		return invalidParam("resetMetrics", q.Get("resetMetrics"))
	}
	resetAlerts, err := flag(body.ResetAlerts, "resetAlerts", false)
	if err != nil {
		return invalidParam("resetAlerts", q.Get("resetAlerts"))
	}
	resetNotifications, err := flag(body.ResetNotifications, "resetNotifications", false)
	if err != nil {
		return invalidParam("resetNotifications", q.Get("resetNotifications"))
	}

	result := map[string]interface{}{
		"metricsReset":       false,
		"alertsAcknowledged": 0,
		"notificationsReset": false,
	}
	// Alerts first: a metrics reset acknowledges them as well.
	if resetAlerts {
		result["alertsAcknowledged"] = a.tracker.AcknowledgeAll()
	}
	if resetMetrics {
		a.tracker.Reset()
		a.log.ResetCounters()
		result["metricsReset"] = true
	}
	if resetNotifications {
		a.notifier.ResetHistory()
		result["notificationsReset"] = true
	}
	logger.WithFields(logger.Fields(result)).Warn("Monitoring data reset")
	return a.respond(w, http.StatusOK, result)
}

func (a *API) listBreakers(w http.ResponseWriter, _ *http.Request) error {
	states := a.breakers.Snapshot()
	return a.respond(w, http.StatusOK, map[string]interface{}{
		"breakers": states,
		"count":    len(states),
	})
}
