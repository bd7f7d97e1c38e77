package monitoring

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"rentalops/src/model"
	"rentalops/src/tracker"

	logger "github.com/sirupsen/logrus"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
	formatXML  = "xml"
)

// metricsFilter selects trend points. Zero fields match everything.
type metricsFilter struct {
	Since    time.Time
	Until    time.Time
	Code     string
	Status   int
	Endpoint string
	User     string
}

func (f metricsFilter) match(p tracker.TrendPoint) bool {
	switch {
	case !f.Since.IsZero() && p.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && p.Timestamp.After(f.Until):
		return false
	case f.Code != "" && p.Code != f.Code:
		return false
	case f.Status != 0 && p.Status != f.Status:
		return false
	case f.Endpoint != "" && p.Endpoint != f.Endpoint:
		return false
	case f.User != "" && p.User != f.User:
		return false
	}
	return true
}

func (f metricsFilter) apply(points []tracker.TrendPoint) []tracker.TrendPoint {
	out := make([]tracker.TrendPoint, 0, len(points))
	for _, p := range points {
		if f.match(p) {
			out = append(out, p)
		}
	}
	return out
}

type countRow struct {
	Key   string `json:"key" xml:"key,attr"`
	Count int    `json:"count" xml:"count,attr"`
}

type trendRow struct {
	Timestamp time.Time `json:"timestamp" xml:"timestamp,attr"`
	Code      string    `json:"code" xml:"code,attr"`
	Status    int       `json:"status" xml:"status,attr"`
	Endpoint  string    `json:"endpoint" xml:"endpoint,attr"`
	User      string    `json:"user,omitempty" xml:"user,attr,omitempty"`
	Count     int       `json:"count" xml:"count,attr"`
}

type patternRow struct {
	Key       string               `json:"key" xml:"key,attr"`
	Code      string               `json:"code" xml:"code,attr"`
	Method    string               `json:"method" xml:"method,attr"`
	Endpoint  string               `json:"endpoint" xml:"endpoint,attr"`
	Count     int                  `json:"count" xml:"count,attr"`
	FirstSeen time.Time            `json:"firstSeen" xml:"firstSeen,attr"`
	LastSeen  time.Time            `json:"lastSeen" xml:"lastSeen,attr"`
	Contexts  []model.ErrorContext `json:"contexts,omitempty" xml:"-"`
}

type alertRow struct {
	ID           string                 `json:"id" xml:"id,attr"`
	Timestamp    time.Time              `json:"timestamp" xml:"timestamp,attr"`
	Type         string                 `json:"type" xml:"type,attr"`
	Acknowledged bool                   `json:"acknowledged" xml:"acknowledged,attr"`
	Message      string                 `json:"message" xml:",chardata"`
	Details      map[string]interface{} `json:"details,omitempty" xml:"-"`
}

// metricsReport is the /metrics payload.
type metricsReport struct {
	XMLName     xml.Name   `json:"-" xml:"metrics"`
	GeneratedAt time.Time  `json:"generatedAt" xml:"generatedAt,attr"`
	Timeframe   string     `json:"timeframe" xml:"timeframe,attr"`
	Total       int        `json:"total" xml:"total"`
	ByType      []countRow `json:"errorsByType" xml:"errorsByType>entry"`
	ByStatus    []countRow `json:"errorsByStatusCode" xml:"errorsByStatusCode>entry"`
	ByEndpoint  []countRow `json:"errorsByEndpoint" xml:"errorsByEndpoint>entry"`
	ByUser      []countRow `json:"errorsByUser" xml:"errorsByUser>entry"`
	Trends      []trendRow `json:"trends" xml:"trends>point"`
}

func buildMetricsReport(points []tracker.TrendPoint, timeframe string, now time.Time) metricsReport {
	byType := map[string]int{}
	byStatus := map[string]int{}
	byEndpoint := map[string]int{}
	byUser := map[string]int{}
	for _, p := range points {
		byType[p.Code]++
		byStatus[strconv.Itoa(p.Status)]++
		byEndpoint[p.Endpoint]++
		byUser[p.User]++
	}
	return metricsReport{
		GeneratedAt: now,
		Timeframe:   timeframe,
		Total:       len(points),
		ByType:      sortedCounts(byType),
		ByStatus:    sortedCounts(byStatus),
		ByEndpoint:  sortedCounts(byEndpoint),
		ByUser:      sortedCounts(byUser),
		Trends:      trendRows(points, true),
	}
}

// exportReport is the full offline-analysis dump.
type exportReport struct {
	XMLName          xml.Name     `json:"-" xml:"export"`
	ExportedAt       time.Time    `json:"exportedAt" xml:"exportedAt,attr"`
	Start            *time.Time   `json:"startDate,omitempty" xml:"startDate,attr,omitempty"`
	End              *time.Time   `json:"endDate,omitempty" xml:"endDate,attr,omitempty"`
	IncludeSensitive bool         `json:"includeSensitive" xml:"includeSensitive,attr"`
	IncludeStack     bool         `json:"includeStack" xml:"includeStack,attr"`
	StackNote        string       `json:"stackNote,omitempty" xml:"stackNote,omitempty"`
	LastReset        time.Time    `json:"lastReset" xml:"lastReset"`
	TotalErrors      int          `json:"totalErrors" xml:"totalErrors"`
	ErrorsByType     []countRow   `json:"errorsByType" xml:"errorsByType>entry"`
	ErrorsByStatus   []countRow   `json:"errorsByStatusCode" xml:"errorsByStatusCode>entry"`
	ErrorsByEndpoint []countRow   `json:"errorsByEndpoint" xml:"errorsByEndpoint>entry"`
	ErrorsByUser     []countRow   `json:"errorsByUser,omitempty" xml:"errorsByUser>entry,omitempty"`
	Trends           []trendRow   `json:"trends" xml:"trends>point"`
	Patterns         []patternRow `json:"patterns" xml:"patterns>pattern"`
	Alerts           []alertRow   `json:"alerts" xml:"alerts>alert"`
}

type exportOptions struct {
	Start            time.Time
	End              time.Time
	IncludeStack     bool
	IncludeSensitive bool
}

func inRange(ts time.Time, opts exportOptions) bool {
	if !opts.Start.IsZero() && ts.Before(opts.Start) {
		return false
	}
	if !opts.End.IsZero() && ts.After(opts.End) {
		return false
	}
	return true
}

func buildExport(e tracker.Export, opts exportOptions) exportReport {
	r := exportReport{
		ExportedAt:       e.ExportedAt,
		IncludeSensitive: opts.IncludeSensitive,
		IncludeStack:     opts.IncludeStack,
		LastReset:        e.LastReset,
		TotalErrors:      e.TotalErrors,
		ErrorsByType:     sortedCounts(e.ErrorsByType),
		ErrorsByStatus:   sortedCounts(e.ErrorsByStatus),
		ErrorsByEndpoint: sortedCounts(e.ErrorsByEndpoint),
	}
	if !opts.Start.IsZero() {
		start := opts.Start
		r.Start = &start
	}
	if !opts.End.IsZero() {
		end := opts.End
		r.End = &end
	}
	if opts.IncludeStack {
		r.StackNote = "stack traces are written to the error log files only"
	}
	if opts.IncludeSensitive {
		r.ErrorsByUser = sortedCounts(e.ErrorsByUser)
	}

	var trends []tracker.TrendPoint
	for _, p := range e.Trends {
		if inRange(p.Timestamp, opts) {
			trends = append(trends, p)
		}
	}
	r.Trends = trendRows(trends, opts.IncludeSensitive)

	for _, p := range e.Patterns {
		if !inRange(p.LastSeen, opts) {
			continue
		}
		row := patternRow{
			Key: p.Key, Code: p.Code, Method: p.Method, Endpoint: p.Endpoint,
			Count: p.Count, FirstSeen: p.FirstSeen, LastSeen: p.LastSeen,
		}
		if opts.IncludeSensitive {
			row.Contexts = p.Contexts
		}
		r.Patterns = append(r.Patterns, row)
	}
	for _, a := range e.Alerts {
		if !inRange(a.Timestamp, opts) {
			continue
		}
		r.Alerts = append(r.Alerts, alertRow{
			ID: a.ID, Timestamp: a.Timestamp, Type: string(a.Type),
			Acknowledged: a.Acknowledged, Message: a.Message, Details: a.Details,
		})
	}
	return r
}

func sortedCounts(m map[string]int) []countRow {
	rows := make([]countRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, countRow{Key: k, Count: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	return rows
}

func trendRows(points []tracker.TrendPoint, withUser bool) []trendRow {
	rows := make([]trendRow, 0, len(points))
	for _, p := range points {
		row := trendRow{Timestamp: p.Timestamp, Code: p.Code, Status: p.Status, Endpoint: p.Endpoint, Count: p.Count}
		if withUser {
			row.User = p.User
		}
		rows = append(rows, row)
	}
	return rows
}

var trendHeader = []string{"timestamp", "code", "status", "endpoint", "user", "count"}

func writeTrendsCSV(w http.ResponseWriter, filename string, rows []trendRow) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(trendHeader)
	for _, r := range rows {
		_ = cw.Write([]string{
			r.Timestamp.UTC().Format(time.RFC3339),
			r.Code,
			strconv.Itoa(r.Status),
			r.Endpoint,
			r.User,
			strconv.Itoa(r.Count),
		})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		logger.WithError(err).Warn("Failed to write CSV response")
	}
}

func writeXML(w http.ResponseWriter, filename string, doc interface{}) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		logger.WithError(err).Warn("Failed to write XML response")
	}
}

func writeAttachmentJSON(w http.ResponseWriter, filename string, doc interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logger.WithError(err).Warn("Failed to write export")
	}
}

func exportFilename(now time.Time, format string) string {
	return fmt.Sprintf("error-export-%s.%s", now.UTC().Format("20060102-150405"), format)
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
