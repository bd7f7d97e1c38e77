package model

import (
	"runtime"
	"time"
)

// MemorySnapshot is the process memory state captured when an error is handled.
type MemorySnapshot struct {
	HeapAlloc  uint64 `json:"heapAlloc"`
	HeapSys    uint64 `json:"heapSys"`
	Sys        uint64 `json:"sys"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

// CaptureMemory reads the current runtime memory statistics.
func CaptureMemory() MemorySnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemorySnapshot{
		HeapAlloc:  m.HeapAlloc,
		HeapSys:    m.HeapSys,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
}

// ErrorContext describes the request during which an error occurred.
// It is built once per request and discarded after the response is written.
type ErrorContext struct {
	UserID        string                 `json:"userId"`
	RequestID     string                 `json:"requestId"`
	CorrelationID string                 `json:"correlationId"`
	UserAgent     string                 `json:"userAgent,omitempty"`
	IP            string                 `json:"ip,omitempty"`
	Method        string                 `json:"method,omitempty"`
	URL           string                 `json:"url,omitempty"`
	Body          interface{}            `json:"body,omitempty"`
	Headers       map[string]interface{} `json:"headers,omitempty"`
	Query         map[string]interface{} `json:"query,omitempty"`
	Params        map[string]interface{} `json:"params,omitempty"`
	StartTime     time.Time              `json:"startTime"`
	Duration      int64                  `json:"duration"` // milliseconds
	Memory        MemorySnapshot         `json:"memory"`
}

// Endpoint is the URL used as the metrics key, "unknown" when absent.
func (c *ErrorContext) Endpoint() string {
	if c == nil || c.URL == "" {
		return "unknown"
	}
	return c.URL
}

// MethodOrUnknown returns the HTTP method, "unknown" when absent.
func (c *ErrorContext) MethodOrUnknown() string {
	if c == nil || c.Method == "" {
		return "unknown"
	}
	return c.Method
}

// User returns the user id, "anonymous" when absent.
func (c *ErrorContext) User() string {
	if c == nil || c.UserID == "" {
		return "anonymous"
	}
	return c.UserID
}
