package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/logging"
	"rentalops/src/model"
	"rentalops/src/recovery"
	"rentalops/src/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *fakeNotifier) ProcessError(context.Context, error, *model.ErrorContext) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return 0
}

type fakeRecoverer struct {
	calls  int
	result recovery.Result
}

func (f *fakeRecoverer) Attempt(context.Context, error, *model.ErrorContext) recovery.Result {
	f.calls++
	return f.result
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type harness struct {
	handler  *ErrorHandler
	tracker  *tracker.Tracker
	notifier *fakeNotifier
	clock    *time.Time
}

func newHarness(env string, rec errorRecoverer) *harness {
	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	h := &harness{
		tracker:  tracker.New(),
		notifier: &fakeNotifier{},
		clock:    &now,
	}
	log := logging.New(logging.Config{Environment: env, AppName: "rentalops", Version: "1.0.0"}, logging.WithOutput(io.Discard))
	breaker := NewCircuitBreaker(func() time.Time { return *h.clock }, nil)
	h.handler = NewErrorHandler(Config{Environment: env, Version: "1.0.0", SupportContact: "help@rentalops.test"},
		log, h.tracker, h.notifier, rec, breaker)
	return h
}

func (h *harness) serve(t *testing.T, method, path string, err error) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	handler := RequestID(h.handler.Wrap(func(http.ResponseWriter, *http.Request) error { return err }))
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

func errorBlock(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	block, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "response has no error block: %v", body)
	return block
}

func TestHandleError_ValidationScenario(t *testing.T) {
	h := newHarness("test", nil)
	err := apperrors.NewValidationError("invalid property", []apperrors.FieldViolation{
		apperrors.RequiredField("name"),
		apperrors.InvalidFormat("nightly_rate", "abc"),
	})

	rr, body := h.serve(t, http.MethodPost, "/api/properties", err)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, false, body["success"])
	block := errorBlock(t, body)
	assert.Equal(t, apperrors.CodeValidation, block["code"])
	details := block["details"].(map[string]interface{})
	assert.Equal(t, float64(2), details["totalErrors"])
	fields := details["fields"].([]interface{})
	require.Len(t, fields, 2)
	assert.Equal(t, "name", fields[0].(map[string]interface{})["field"])
	assert.Equal(t, "nightly_rate", fields[1].(map[string]interface{})["field"])
	assert.Contains(t, details["summary"], "name, nightly_rate")
}

func TestHandleError_NotFoundScenario(t *testing.T) {
	h := newHarness("test", nil)
	rr, body := h.serve(t, http.MethodGet, "/api/properties/123", apperrors.PropertyNotFound("123"))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	details := errorBlock(t, body)["details"].(map[string]interface{})
	assert.Equal(t, "Property", details["resource"])
	assert.Equal(t, "123", details["resourceId"])
	assert.NotEmpty(t, details["suggestions"])
}

func TestHandleError_RateLimitScenario(t *testing.T) {
	registry := recovery.NewRegistry()
	registry.Register(recovery.NewBackoffStrategy(5 * time.Second))
	h := newHarness("test", registry)

	rr, body := h.serve(t, http.MethodGet, "/api/properties", apperrors.NewRateLimitError(120))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "120", rr.Header().Get("Retry-After"))
	block := errorBlock(t, body)
	assert.Equal(t, float64(120), block["retryAfter"])
	assert.Equal(t, "2 minutes", block["details"].(map[string]interface{})["retryAfterHuman"])
	assert.Equal(t, false, body["recovery"].(map[string]interface{})["attempted"])
}

func TestHandleError_EnvelopeShape(t *testing.T) {
	h := newHarness("development", nil)
	handler := RequestID(h.handler.Wrap(func(http.ResponseWriter, *http.Request) error {
		return apperrors.DatabaseConnectionFailed(errors.New("dial tcp: connection refused"))
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/properties", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "req-abc", rr.Header().Get(RequestIDHeader))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "req-abc", resp.Error.RequestID)
	assert.NotEmpty(t, resp.Error.CorrelationID)
	assert.True(t, strings.HasPrefix(resp.Error.ErrorID, "ERR-"))
	assert.Equal(t, "help@rentalops.test", resp.Error.SupportContact)
	assert.Equal(t, "development", resp.Metadata.Environment)
	assert.NotEmpty(t, resp.Metadata.RuntimeVersion)
	assert.NotEmpty(t, resp.Metadata.Platform)
	assert.NotEmpty(t, resp.Stack)
	require.NotNil(t, resp.Recovery)
	assert.NotEmpty(t, resp.Recovery.NextSteps)

	details := resp.Error.Details.(map[string]interface{})
	assert.Equal(t, "dial tcp: connection refused", details["originalError"])
}

func TestHandleError_DatabaseDetailsHiddenInProduction(t *testing.T) {
	h := newHarness("production", nil)
	rr, body := h.serve(t, http.MethodGet, "/api/properties",
		apperrors.QueryFailed(errors.New("relation missing"), "SELECT * FROM properties"))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	block := errorBlock(t, body)
	assert.Equal(t, "A database error occurred. Please try again later.", block["message"])
	assert.Nil(t, block["details"])
	assert.Nil(t, body["stack"])
}

func TestHandleError_UnknownError(t *testing.T) {
	prod := newHarness("production", nil)
	rr, body := prod.serve(t, http.MethodGet, "/x", errors.New("nil map write"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	block := errorBlock(t, body)
	assert.Equal(t, apperrors.CodeInternal, block["code"])
	assert.Equal(t, "Internal server error", block["message"])
	assert.Nil(t, block["details"])

	dev := newHarness("development", nil)
	_, body = dev.serve(t, http.MethodGet, "/x", errors.New("nil map write"))
	details := errorBlock(t, body)["details"].(map[string]interface{})
	assert.Equal(t, "nil map write", details["message"])
}

func TestHandleError_KindStatuses(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.InvalidToken(), http.StatusUnauthorized},
		{apperrors.InsufficientPermissions("delete property"), http.StatusForbidden},
		{apperrors.FileTooLarge("contract.pdf", 20<<20, 10<<20), http.StatusBadRequest},
		{apperrors.GeminiAPIError(errors.New("quota")), http.StatusServiceUnavailable},
		{apperrors.NewAppError("teapot", http.StatusTeapot, "TEAPOT"), http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(apperrors.CodeOf(tt.err), func(t *testing.T) {
			h := newHarness("test", nil)
			rr, body := h.serve(t, http.MethodGet, "/api/x", tt.err)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, float64(tt.status), errorBlock(t, body)["statusCode"])
		})
	}
}

func TestHandleError_SerializeRoundTrip(t *testing.T) {
	originals := []*apperrors.AppError{
		apperrors.PropertyNotFound("7"),
		apperrors.NewRateLimitError(3),
		apperrors.TokenExpired(),
		apperrors.NewAppError("conflict", http.StatusConflict, "RESERVATION_CONFLICT"),
	}
	for _, original := range originals {
		rebuilt := apperrors.FromSerialized(original.Serialize())
		h := newHarness("test", nil)
		rr, body := h.serve(t, http.MethodGet, "/api/roundtrip", rebuilt)

		assert.Equal(t, original.StatusCode, rr.Code)
		assert.Equal(t, original.Code, errorBlock(t, body)["code"])
	}
}

func TestHandleError_TracksAndNotifies(t *testing.T) {
	h := newHarness("test", nil)
	h.serve(t, http.MethodGet, "/api/properties/1", apperrors.PropertyNotFound("1"))

	exp := h.tracker.Export()
	assert.Equal(t, 1, exp.ErrorsByEndpoint["/api/properties/1"])
	assert.Equal(t, 1, h.notifier.calls)
}

func TestHandleError_CircuitBreaker(t *testing.T) {
	rec := &fakeRecoverer{}
	h := newHarness("test", rec)
	err := apperrors.DatabaseConnectionFailed(nil)

	for i := 0; i < BreakerThreshold-1; i++ {
		rr, _ := h.serve(t, http.MethodGet, "/api/properties", err)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	}
	assert.Equal(t, BreakerThreshold-1, h.notifier.calls)
	assert.Equal(t, BreakerThreshold-1, rec.calls)

	rr, body := h.serve(t, http.MethodGet, "/api/properties", err)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, apperrors.CodeCircuitOpen, errorBlock(t, body)["code"])

	rr, _ = h.serve(t, http.MethodGet, "/api/properties", err)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, BreakerThreshold-1, h.notifier.calls)
	assert.Equal(t, BreakerThreshold-1, rec.calls)

	other, _ := h.serve(t, http.MethodGet, "/api/owners", err)
	assert.Equal(t, http.StatusInternalServerError, other.Code)

	*h.clock = h.clock.Add(BreakerCooldown + time.Second)
	rr, _ = h.serve(t, http.MethodGet, "/api/properties", err)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, BreakerThreshold+1, h.notifier.calls)
}

func TestHandleError_RecoveryBudget(t *testing.T) {
	registry := recovery.NewRegistry()
	registry.Register(recovery.NewDatabaseStrategy(fakePinger{err: errors.New("still down")}))
	h := newHarness("test", registry)
	err := apperrors.DatabaseConnectionFailed(nil)

	for i := 0; i < recovery.MaxAttempts; i++ {
		_, body := h.serve(t, http.MethodGet, "/api/properties", err)
		rec := body["recovery"].(map[string]interface{})
		assert.Equal(t, true, rec["attempted"])
		assert.Equal(t, false, rec["successful"])
		assert.Equal(t, recovery.StrategyDatabase, rec["strategy"])
	}

	rr, body := h.serve(t, http.MethodGet, "/api/properties", err)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	rec := body["recovery"].(map[string]interface{})
	assert.Equal(t, false, rec["attempted"])
	_, hasSuccessful := rec["successful"]
	assert.False(t, hasSuccessful)
}

func TestHandleError_SuccessfulRecovery(t *testing.T) {
	registry := recovery.NewRegistry()
	registry.Register(recovery.NewDatabaseStrategy(fakePinger{}))
	h := newHarness("test", registry)

	for i := 0; i < BreakerThreshold-2; i++ {
		h.handler.Breaker().Record(BreakerKey(apperrors.CodeQueryFailed, "/api/properties"), 500)
	}
	rr, body := h.serve(t, http.MethodGet, "/api/properties", apperrors.QueryFailed(errors.New("conn reset"), "SELECT 1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	rec := body["recovery"].(map[string]interface{})
	assert.Equal(t, recovery.StrategyDatabase, rec["strategy"])
	assert.Equal(t, true, rec["successful"])
	assert.Empty(t, h.handler.Breaker().Snapshot())
}

func TestRecoverer_ConvertsPanics(t *testing.T) {
	h := newHarness("production", nil)
	handler := RequestID(h.handler.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		var m map[string]int
		m["boom"]++
	})))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.CodeInternal, resp.Error.Code)
	assert.Empty(t, resp.Stack)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestNotFound(t *testing.T) {
	h := newHarness("test", nil)
	rr := httptest.NewRecorder()
	h.handler.NotFound(rr, httptest.NewRequest(http.MethodGet, "/api/nowhere", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, apperrors.CodeRouteNotFound, resp.Error.Code)
	details := resp.Error.Details.(map[string]interface{})
	assert.Len(t, details["availableEndpoints"], len(KnownEndpoints))
	assert.Equal(t, KnownEndpoints, resp.Recovery.NextSteps)
}
