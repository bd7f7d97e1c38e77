// Package middleware turns errors raised by request handlers into HTTP
// responses. Every error is logged, tracked and matched against the
// notification rules; recoverable errors get a bounded recovery attempt and
// repeated server failures on a route trip a circuit breaker.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/logging"
	"rentalops/src/model"
	"rentalops/src/recovery"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

type errorLogger interface {
	LogError(err error, ec *model.ErrorContext, opts ...logging.LogOption) logging.Severity
}

type errorTracker interface {
	Track(err error, ec *model.ErrorContext)
}

type errorNotifier interface {
	ProcessError(ctx context.Context, err error, ec *model.ErrorContext) int
}

type errorRecoverer interface {
	Attempt(ctx context.Context, err error, ec *model.ErrorContext) recovery.Result
}

// HandlerFunc is an http handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ErrorHandler is the only place where errors become responses.
type ErrorHandler struct {
	cfg      Config
	env      model.Environment
	log      errorLogger
	tracker  errorTracker
	notifier errorNotifier
	recovery errorRecoverer
	breaker  *CircuitBreaker
}

func NewErrorHandler(cfg Config, log errorLogger, tracker errorTracker, notifier errorNotifier,
	rec errorRecoverer, breaker *CircuitBreaker) *ErrorHandler {
	if breaker == nil {
		breaker = NewCircuitBreaker(time.Now, nil)
	}
	return &ErrorHandler{
		cfg:      cfg,
		env:      model.Environment(cfg.Environment),
		log:      log,
		tracker:  tracker,
		notifier: notifier,
		recovery: rec,
		breaker:  breaker,
	}
}

func (h *ErrorHandler) Breaker() *CircuitBreaker {
	return h.breaker
}

// Wrap adapts a HandlerFunc to http.HandlerFunc.
func (h *ErrorHandler) Wrap(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			h.HandleError(w, r, err)
		}
	}
}

// Recoverer converts handler panics into non-operational internal errors.
func (h *ErrorHandler) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				var cause error
				if e, ok := p.(error); ok {
					cause = fmt.Errorf("panic: %w", e)
				} else {
					cause = fmt.Errorf("panic: %v", p)
				}
				h.HandleError(w, r, apperrors.NewInternalError(cause))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// BreakerKey is the circuit breaker key of code on path.
func BreakerKey(code, path string) string {
	return code + "-" + path
}

// HandleError runs the error pipeline and writes the response.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	ec := BuildContext(r)
	ensureRequestID(w, ec.RequestID)

	// The pipeline runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	if h.log != nil {
		h.log.LogError(err, ec, logging.SkipNotify())
	}
	if h.tracker != nil {
		h.tracker.Track(err, ec)
	}

	code := apperrors.CodeOf(err)
	key := BreakerKey(code, ec.Endpoint())
	if h.breaker.Record(key, apperrors.StatusOf(err)) {
		h.renderCircuitOpen(w, ec, code)
		return
	}

	if h.notifier != nil {
		h.notifier.ProcessError(ctx, err, ec)
	}

	var rec recovery.Result
	if h.recovery != nil {
		rec = h.recovery.Attempt(ctx, err, ec)
	}
	if rec.Successful {
		h.breaker.Reset(key)
		h.renderRecovered(w, ec, rec)
		return
	}

	resp, out := h.buildResponse(err, ec, rec)
	if out.retryAfter != nil {
		setRetryAfter(w, *out.retryAfter)
	}
	writeJSON(w, out.status, resp)
}

func ensureRequestID(w http.ResponseWriter, id string) {
	if w.Header().Get(RequestIDHeader) == "" {
		w.Header().Set(RequestIDHeader, id)
	}
}

func (h *ErrorHandler) renderCircuitOpen(w http.ResponseWriter, ec *model.ErrorContext, code string) {
	logger.WithFields(logger.Fields{"code": code, "endpoint": ec.Endpoint()}).Warn("Circuit breaker open, short-circuiting request")

	retry := int(BreakerCooldown.Seconds())
	msg, _ := apperrors.LookupMessage(apperrors.CodeCircuitOpen)
	resp := ErrorResponse{
		Error: ErrorBody{
			Message:          msg.English,
			MessageLocalized: msg.Portuguese,
			Code:             apperrors.CodeCircuitOpen,
			Details:          map[string]string{"originalCode": code, "endpoint": ec.Endpoint()},
			RequestID:        ec.RequestID,
			Timestamp:        time.Now(),
			StatusCode:       http.StatusServiceUnavailable,
			CorrelationID:    ec.CorrelationID,
			RetryAfter:       &retry,
			SupportContact:   h.cfg.SupportContact,
			ErrorID:          newErrorID(),
		},
		Performance: performance(ec),
		Recovery: &RecoveryInfo{
			Suggestion: "This operation is failing repeatedly and has been paused. Try again in a minute.",
			NextSteps:  []string{"Wait 60 seconds", "Retry the request"},
		},
		Metadata: h.metadata(),
	}
	setRetryAfter(w, retry)
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

func (h *ErrorHandler) renderRecovered(w http.ResponseWriter, ec *model.ErrorContext, rec recovery.Result) {
	ok := true
	writeJSON(w, http.StatusOK, RecoveredResponse{
		Success:          true,
		Message:          fmt.Sprintf("The request hit a temporary problem and was recovered using %s.", rec.Strategy),
		MessageLocalized: fmt.Sprintf("A requisição encontrou um problema temporário e foi recuperada usando %s.", rec.Strategy),
		Recovery: RecoveryInfo{
			Attempted:  true,
			Successful: &ok,
			Strategy:   rec.Strategy,
			Suggestion: "Retry the request to get fresh data.",
			NextSteps:  []string{"Retry the request"},
		},
		RequestID:     ec.RequestID,
		CorrelationID: ec.CorrelationID,
		Timestamp:     time.Now(),
		Performance:   performance(ec),
	})
}

// KnownEndpoints are listed in 404 responses.
var KnownEndpoints = []string{
	"GET /healthcheck",
	"GET /api/properties",
	"POST /api/properties",
	"GET /api/properties/{id}",
	"GET /api/monitoring/stats",
	"GET /api/monitoring/health",
}

// NotFound answers unmatched routes with the standard error envelope.
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	ec := BuildContext(r)
	ensureRequestID(w, ec.RequestID)

	err := apperrors.NewAppError(
		fmt.Sprintf("Route %s %s not found", r.Method, r.URL.Path),
		http.StatusNotFound, apperrors.CodeRouteNotFound,
		apperrors.WithContext("method", r.Method),
		apperrors.WithContext("path", r.URL.Path),
		apperrors.WithContext("availableEndpoints", KnownEndpoints),
	)
	if h.log != nil {
		h.log.LogError(err, ec, logging.SkipNotify())
	}
	if h.tracker != nil {
		h.tracker.Track(err, ec)
	}
	resp, out := h.buildResponse(err, ec, recovery.Result{})
	resp.Recovery.Suggestion = "Check the URL and HTTP method."
	resp.Recovery.NextSteps = KnownEndpoints
	writeJSON(w, out.status, resp)
}

func newErrorID() string {
	return fmt.Sprintf("ERR-%d-%s", time.Now().UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}
