// Package logging is the single ingestion point for error records. Each
// entry is one JSON object carrying the error, its request context and the
// deployment metadata.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"

	logger "github.com/sirupsen/logrus"
)

const notifyTimeout = 30 * time.Second

// Notifier receives critical errors out of band.
type Notifier interface {
	ProcessError(ctx context.Context, err error, ec *model.ErrorContext) int
}

// Stats is the frequency counter snapshot.
type Stats struct {
	ErrorCounts map[string]int `json:"errorCounts"`
	TotalErrors int            `json:"totalErrors"`
	LastReset   time.Time      `json:"lastReset"`
}

// Health is the sink status.
type Health struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

type ErrorLogger struct {
	log  *logger.Logger
	out  *trackedWriter
	file *dailyFileWriter
	env  model.Environment
	cfg  Config
	now  func() time.Time

	mu        sync.Mutex
	counts    map[string]int
	lastReset time.Time
	notifier  Notifier
	pending   sync.WaitGroup
}

type Option func(*ErrorLogger)

// WithOutput replaces every sink with w.
func WithOutput(w io.Writer) Option {
	return func(l *ErrorLogger) { l.out = &trackedWriter{w: w} }
}

func WithNotifier(n Notifier) Option {
	return func(l *ErrorLogger) { l.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(l *ErrorLogger) { l.now = now }
}

// New builds the logger. Outside development-like environments entries are
// also appended to a daily file under cfg.LogDir.
func New(cfg Config, opts ...Option) *ErrorLogger {
	l := &ErrorLogger{
		env:    model.Environment(cfg.Environment),
		cfg:    cfg,
		now:    time.Now,
		counts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastReset = l.now()

	if l.out == nil {
		var w io.Writer = os.Stdout
		if !l.env.IsDevelopment() {
			file, err := newDailyFileWriter(cfg.LogDir, "errors", l.now)
			if err != nil {
				logger.WithError(err).Warn("Error log file sink disabled")
			} else {
				l.file = file
				w = io.MultiWriter(os.Stdout, file)
			}
		}
		l.out = &trackedWriter{w: w}
	}

	l.log = logger.New()
	l.log.SetOutput(l.out)
	l.log.SetLevel(logger.DebugLevel)
	l.log.SetFormatter(&logger.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return l
}

// SetNotifier attaches the out-of-band notifier after construction.
func (l *ErrorLogger) SetNotifier(n Notifier) {
	l.mu.Lock()
	l.notifier = n
	l.mu.Unlock()
}

type logOptions struct {
	skipNotify bool
}

type LogOption func(*logOptions)

// SkipNotify suppresses the asynchronous notification for callers that
// dispatch notifications themselves.
func SkipNotify() LogOption {
	return func(o *logOptions) { o.skipNotify = true }
}

// LogError records err, bumps its frequency counter and, for critical or
// non-operational errors, notifies in the background. It returns the tier used.
func (l *ErrorLogger) LogError(err error, ec *model.ErrorContext, opts ...LogOption) Severity {
	if err == nil {
		return SeverityLow
	}
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}

	severity := ClassifySeverity(err)
	code := apperrors.CodeOf(err)

	l.mu.Lock()
	l.counts[code]++
	notifier := l.notifier
	l.mu.Unlock()

	fields := l.baseFields()
	fields["severity"] = string(severity)
	fields["error"] = l.errorFields(err)
	if ec != nil {
		fields["context"] = ec
	}
	l.log.WithFields(fields).Log(severity.Level(), err.Error())

	if o.skipNotify || notifier == nil {
		return severity
	}
	if severity == SeverityCritical || !apperrors.IsOperationalError(err) {
		l.notifyAsync(notifier, err, ec)
	}
	return severity
}

func (l *ErrorLogger) notifyAsync(n Notifier, err error, ec *model.ErrorContext) {
	l.pending.Add(1)
	go func() {
		defer l.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				l.log.WithFields(l.baseFields()).WithField("panic", fmt.Sprintf("%v", r)).
					Error("Notification dispatch panicked")
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		n.ProcessError(ctx, err, ec)
	}()
}

// Wait blocks until background notifications started so far have finished.
func (l *ErrorLogger) Wait() {
	l.pending.Wait()
}

func (l *ErrorLogger) LogWarning(message string, fields map[string]interface{}) {
	l.logMessage(logger.WarnLevel, message, fields)
}

func (l *ErrorLogger) LogInfo(message string, fields map[string]interface{}) {
	l.logMessage(logger.InfoLevel, message, fields)
}

func (l *ErrorLogger) LogDebug(message string, fields map[string]interface{}) {
	l.logMessage(logger.DebugLevel, message, fields)
}

func (l *ErrorLogger) logMessage(level logger.Level, message string, extra map[string]interface{}) {
	fields := l.baseFields()
	for k, v := range extra {
		fields[k] = v
	}
	l.log.WithFields(fields).Log(level, message)
}

func (l *ErrorLogger) baseFields() logger.Fields {
	return logger.Fields{
		"service":     l.cfg.AppName,
		"environment": l.env.String(),
		"version":     l.cfg.Version,
	}
}

func (l *ErrorLogger) errorFields(err error) map[string]interface{} {
	out := map[string]interface{}{"message": err.Error()}
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		out["name"] = fmt.Sprintf("%T", err)
		out["code"] = apperrors.CodeInternal
		out["statusCode"] = apperrors.StatusOf(err)
		if !l.env.IsProduction() {
			out["stack"] = fmt.Sprintf("%+v", err)
		}
		return out
	}
	out["name"] = appErr.Name()
	out["code"] = appErr.Code
	out["statusCode"] = appErr.StatusCode
	out["messagePortuguese"] = appErr.MessageLocalized
	out["operational"] = appErr.Operational
	if len(appErr.Context) > 0 {
		out["details"] = appErr.Context
	}
	if cause := appErr.Cause(); cause != nil {
		out["cause"] = cause.Error()
	}
	if !l.env.IsProduction() {
		out["stack"] = appErr.Stack()
	}
	return out
}

// Statistics returns a copy of the per-code counters.
func (l *ErrorLogger) Statistics() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[string]int, len(l.counts))
	total := 0
	for code, n := range l.counts {
		counts[code] = n
		total += n
	}
	return Stats{ErrorCounts: counts, TotalErrors: total, LastReset: l.lastReset}
}

// ResetCounters clears the frequency counters. Runs hourly.
func (l *ErrorLogger) ResetCounters() {
	l.mu.Lock()
	l.counts = make(map[string]int)
	l.lastReset = l.now()
	l.mu.Unlock()
	l.LogDebug("Error frequency counters reset", nil)
}

// HealthCheck writes a probe entry and reports whether the sink accepted it.
func (l *ErrorLogger) HealthCheck() Health {
	checkedAt := l.now()
	l.log.WithFields(l.baseFields()).Info("Logger health check")
	if err := l.out.lastError(); err != nil {
		return Health{Status: "unhealthy", Message: err.Error(), CheckedAt: checkedAt}
	}
	return Health{Status: "healthy", CheckedAt: checkedAt}
}

// Close releases the file sink, if any, after pending notifications finish.
func (l *ErrorLogger) Close() error {
	l.pending.Wait()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// trackedWriter remembers the outcome of the most recent write.
type trackedWriter struct {
	w io.Writer

	mu  sync.Mutex
	err error
}

func (t *trackedWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	return n, err
}

func (t *trackedWriter) lastError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
