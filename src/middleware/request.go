package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxCapturedBody = 64 << 10
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	startTimeKey
	bodyKey
)

// RequestID echoes the inbound X-Request-ID or generates one, and records
// the request start time.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx = context.WithValue(ctx, startTimeKey, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

func startTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(startTimeKey).(time.Time)
	return t, ok
}

// CaptureBody keeps a copy of up to 64KB of the request body so the error
// pipeline can log it. Handlers still read the full body.
func CaptureBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		head, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
		r.Body = struct {
			io.Reader
			io.Closer
		}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
		if err != nil {
			// the handler replays what was read and then hits the same error
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), bodyKey, head)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func capturedBody(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyKey).([]byte)
	return b
}
