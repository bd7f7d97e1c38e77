package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"rentalops/src/auth"
	"rentalops/src/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// BuildContext captures the request state attached to every log, track and
// notify call for one error. Sensitive fields are redacted.
func BuildContext(r *http.Request) *model.ErrorContext {
	now := time.Now()
	ctx := r.Context()

	requestID, ok := GetRequestID(ctx)
	if !ok {
		requestID = r.Header.Get(RequestIDHeader)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start, ok := startTime(ctx)
	if !ok {
		start = now
	}

	ec := &model.ErrorContext{
		UserID:        auth.UserIDOrAnonymous(ctx),
		RequestID:     requestID,
		CorrelationID: uuid.NewString(),
		UserAgent:     r.UserAgent(),
		IP:            clientIP(r),
		Method:        r.Method,
		URL:           r.URL.Path,
		Headers:       headerMap(r.Header),
		Query:         queryMap(r),
		Params:        routeParams(r),
		StartTime:     start,
		Duration:      now.Sub(start).Milliseconds(),
		Memory:        model.CaptureMemory(),
	}
	if body := capturedBody(ctx); len(body) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(body, &decoded); err == nil {
			ec.Body = Sanitize(decoded)
		}
	}
	return ec
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func headerMap(h http.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for k, v := range h {
		out[k] = strings.Join(v, ", ")
	}
	return SanitizeMap(out)
}

func queryMap(r *http.Request) map[string]interface{} {
	q := r.URL.Query()
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(q))
	for k, v := range q {
		if len(v) == 1 {
			out[k] = v[0]
		} else {
			out[k] = v
		}
	}
	return SanitizeMap(out)
}

func routeParams(r *http.Request) map[string]interface{} {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || len(rctx.URLParams.Keys) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		if k == "*" || i >= len(rctx.URLParams.Values) {
			continue
		}
		out[k] = rctx.URLParams.Values[i]
	}
	return SanitizeMap(out)
}
