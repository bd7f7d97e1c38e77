package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []error
	panic bool
}

func (n *recordingNotifier) ProcessError(_ context.Context, err error, _ *model.ErrorContext) int {
	n.mu.Lock()
	n.calls = append(n.calls, err)
	n.mu.Unlock()
	if n.panic {
		panic("channel exploded")
	}
	return 1
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func testConfig(env string) Config {
	return Config{Environment: env, AppName: "rentalops", Version: "1.2.3", LogDir: "unused"}
}

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"server error", apperrors.NewAppError("x", 502, "UPSTREAM"), SeverityCritical},
		{"critical code", apperrors.New(apperrors.KindApp, "x", apperrors.WithCode(apperrors.CodeQueryFailed), apperrors.WithStatus(400)), SeverityCritical},
		{"non operational", apperrors.New(apperrors.KindValidation, "x", apperrors.NonOperational()), SeverityCritical},
		{"foreign", errors.New("plain"), SeverityCritical},
		{"unauthorized", apperrors.InvalidToken(), SeverityHigh},
		{"forbidden", apperrors.InsufficientPermissions("delete"), SeverityHigh},
		{"rate limit", apperrors.NewRateLimitError(10), SeverityHigh},
		{"not found", apperrors.PropertyNotFound("1"), SeverityMedium},
		{"informational", apperrors.NewAppError("x", 302, "MOVED"), SeverityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySeverity(tt.err))
		})
	}
}

func TestLogError_WritesJSONRecord(t *testing.T) {
	out := &syncBuffer{}
	l := New(testConfig("development"), WithOutput(out))

	ec := &model.ErrorContext{RequestID: "req-1", Method: "GET", URL: "/api/properties/9"}
	severity := l.LogError(apperrors.PropertyNotFound("9"), ec)
	assert.Equal(t, SeverityMedium, severity)

	lines := out.lines()
	require.Len(t, lines, 1)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "warning", record["level"])
	assert.Equal(t, "medium", record["severity"])
	assert.Equal(t, "development", record["environment"])
	assert.Equal(t, "1.2.3", record["version"])

	errBlock, ok := record["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, apperrors.CodePropertyNotFound, errBlock["code"])
	assert.Equal(t, float64(404), errBlock["statusCode"])
	assert.NotEmpty(t, errBlock["stack"])

	ctxBlock, ok := record["context"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "req-1", ctxBlock["requestId"])
}

func TestLogError_OmitsStackInProduction(t *testing.T) {
	out := &syncBuffer{}
	l := New(testConfig("production"), WithOutput(out))

	l.LogError(apperrors.NewValidationError("bad", nil), nil)

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out.lines()[0]), &record))
	errBlock := record["error"].(map[string]interface{})
	_, hasStack := errBlock["stack"]
	assert.False(t, hasStack)
}

func TestLogError_CountsPerCode(t *testing.T) {
	l := New(testConfig("test"), WithOutput(&syncBuffer{}))

	l.LogError(apperrors.PropertyNotFound("1"), nil)
	l.LogError(apperrors.PropertyNotFound("2"), nil)
	l.LogError(errors.New("boom"), nil)

	stats := l.Statistics()
	assert.Equal(t, 2, stats.ErrorCounts[apperrors.CodePropertyNotFound])
	assert.Equal(t, 1, stats.ErrorCounts[apperrors.CodeInternal])
	assert.Equal(t, 3, stats.TotalErrors)
}

func TestResetCounters(t *testing.T) {
	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	l := New(testConfig("test"), WithOutput(&syncBuffer{}), WithClock(func() time.Time { return current }))
	l.LogError(apperrors.InvalidToken(), nil)

	current = current.Add(time.Hour)
	l.ResetCounters()

	stats := l.Statistics()
	assert.Empty(t, stats.ErrorCounts)
	assert.Equal(t, current, stats.LastReset)
}

func TestLogError_NotifiesCriticalAndDefectsOnly(t *testing.T) {
	notifier := &recordingNotifier{}
	l := New(testConfig("test"), WithOutput(&syncBuffer{}), WithNotifier(notifier))

	l.LogError(apperrors.PropertyNotFound("1"), nil)
	l.LogError(apperrors.DatabaseConnectionFailed(nil), nil)
	l.LogError(apperrors.New(apperrors.KindValidation, "x", apperrors.NonOperational()), nil)
	l.LogError(apperrors.DatabaseConnectionFailed(nil), nil, SkipNotify())
	l.Wait()

	assert.Equal(t, 2, notifier.count())
}

func TestLogError_NotifierPanicIsContained(t *testing.T) {
	out := &syncBuffer{}
	notifier := &recordingNotifier{panic: true}
	l := New(testConfig("test"), WithOutput(out), WithNotifier(notifier))

	assert.NotPanics(t, func() {
		l.LogError(errors.New("nil pointer"), nil)
		l.Wait()
	})
	assert.Equal(t, 1, notifier.count())
	assert.Contains(t, strings.Join(out.lines(), "\n"), "Notification dispatch panicked")
}

func TestHealthCheck(t *testing.T) {
	healthy := New(testConfig("test"), WithOutput(&syncBuffer{}))
	assert.Equal(t, "healthy", healthy.HealthCheck().Status)

	broken := New(testConfig("test"), WithOutput(failingWriter{}))
	h := broken.HealthCheck()
	assert.Equal(t, "unhealthy", h.Status)
	assert.Equal(t, "disk full", h.Message)
}
