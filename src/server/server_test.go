package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rentalops/src/database"
	"rentalops/src/handler"
	"rentalops/src/logging"
	"rentalops/src/middleware"
	"rentalops/src/notification"
	"rentalops/src/recovery"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings(t *testing.T) Settings {
	return Settings{
		Middleware:   middleware.Config{Environment: "test", Version: "1.0.0", SupportContact: "suporte@rentalops.com.br"},
		Logging:      logging.Config{Environment: "test", AppName: "rentalops", Version: "1.0.0", LogDir: t.TempDir()},
		Notification: notification.Config{Environment: "test", AppName: "rentalops", Version: "1.0.0"},
		Recovery:     recovery.Config{},
		Handler:      handler.Config{RateLimitRPS: 100, RateLimitBurst: 100},
	}
}

func newTestApp(t *testing.T, s Settings) *App {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := database.Open(database.Config{SQLiteDSN: dsn, GormLogLevel: 1})
	require.NoError(t, err)

	app, err := NewApp(s, database.NewConnection(db))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func call(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var out map[string]interface{}
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	}
	return rr, out
}

func TestRouter_Healthcheck(t *testing.T) {
	router := NewRouter(newTestApp(t, testSettings(t)))

	rr, _ := call(t, router, http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_PropertyLifecycle(t *testing.T) {
	router := NewRouter(newTestApp(t, testSettings(t)))

	rr, out := call(t, router, http.MethodPost, "/api/properties",
		`{"owner_id":3,"name":"Casa de Praia","city":"Natal","nightly_rate":"420.00","max_guests":6}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	data := out["data"].(map[string]interface{})
	id := int(data["id"].(float64))
	require.NotZero(t, id)

	rr, out = call(t, router, http.MethodGet, fmt.Sprintf("/api/properties/%d", id), "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Casa de Praia", out["data"].(map[string]interface{})["name"])

	rr, out = call(t, router, http.MethodGet, "/api/properties?ownerId=3&city=Natal", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, out["data"], 1)

	rr, out = call(t, router, http.MethodGet, "/api/properties/9999", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "PROPERTY_NOT_FOUND", out["error"].(map[string]interface{})["code"])
}

func TestRouter_ValidationErrorIsTracked(t *testing.T) {
	app := newTestApp(t, testSettings(t))
	router := NewRouter(app)

	rr, out := call(t, router, http.MethodPost, "/api/properties", `{"name":""}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", out["error"].(map[string]interface{})["code"])

	summary := app.Tracker.Summary()
	assert.Equal(t, 1, summary.TotalErrors)

	rr, _ = call(t, router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `rentalops_errors_total{code="VALIDATION_ERROR",status="400"} 1`)
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := NewRouter(newTestApp(t, testSettings(t)))

	rr, out := call(t, router, http.MethodGet, "/api/nope", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "ROUTE_NOT_FOUND", out["error"].(map[string]interface{})["code"])
}

func TestRouter_MonitoringIsMounted(t *testing.T) {
	router := NewRouter(newTestApp(t, testSettings(t)))
	call(t, router, http.MethodGet, "/api/properties/777", "")

	rr, out := call(t, router, http.MethodGet, "/api/monitoring/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, out["success"])
	stats := out["data"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["tracker"].(map[string]interface{})["totalErrors"])
	assert.Contains(t, stats, "openCircuits")

	rr, _ = call(t, router, http.MethodGet, "/api/monitoring/breakers", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_ThrottledWriteIsStoredOrRejected(t *testing.T) {
	s := testSettings(t)
	s.Handler = handler.Config{RateLimitRPS: 10, RateLimitBurst: 1}
	s.Recovery = recovery.Config{MaxBackoff: 5 * time.Second}
	router := NewRouter(newTestApp(t, s))

	body := `{"owner_id":5,"name":"Chalé","city":"Gramado","nightly_rate":"310.00","max_guests":4}`
	for i := 0; i < 2; i++ {
		rr, out := call(t, router, http.MethodPost, "/api/properties", body)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.NotNil(t, out["data"])
	}

	rr, out := call(t, router, http.MethodGet, "/api/properties?ownerId=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), out["count"])
}

func TestRouter_RateLimited(t *testing.T) {
	s := testSettings(t)
	s.Handler = handler.Config{RateLimitRPS: 0.01, RateLimitBurst: 1}
	s.Recovery = recovery.Config{MaxBackoff: 5 * time.Second}
	router := NewRouter(newTestApp(t, s))

	rr, _ := call(t, router, http.MethodGet, "/api/properties", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr, out := call(t, router, http.MethodGet, "/api/properties", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", out["error"].(map[string]interface{})["code"])
}

func TestNewApp_LoadsRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[[rules]]
id = "reservation-conflicts"
name = "Reservation conflicts"
enabled = true
channels = ["console"]

  [rules.conditions]
  status_codes = [409]
`), 0o600))

	s := testSettings(t)
	s.Notification.RulesFile = path
	app := newTestApp(t, s)

	ids := make([]string, 0)
	for _, r := range app.Dispatcher.Rules() {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, "reservation-conflicts")
	assert.Contains(t, ids, "critical-database")
	assert.Equal(t, 7, app.Scheduler.Entries())
}

func TestNewApp_BadRulesFile(t *testing.T) {
	s := testSettings(t)
	s.Notification.RulesFile = filepath.Join(t.TempDir(), "missing.toml")
	_, err := NewApp(s, nil)
	assert.Error(t, err)
}
