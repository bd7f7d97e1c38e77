package tracker

import (
	"time"

	"rentalops/src/model"
)

const (
	PatternAlertThreshold   = 5
	FrequencyAlertThreshold = 10
	CriticalAlertThreshold  = 25

	MaxAlerts          = 50
	MaxTrends          = 100
	MaxPatternContexts = 10

	PatternStaleAfter = time.Hour
	PatternMinCount   = 3
)

type AlertType string

const (
	AlertFrequency AlertType = "frequency"
	AlertCritical  AlertType = "critical"
	AlertPattern   AlertType = "pattern"
)

type Alert struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	Type         AlertType              `json:"type"`
	Message      string                 `json:"message"`
	Details      map[string]interface{} `json:"details"`
	Acknowledged bool                   `json:"acknowledged"`
}

// TrendPoint is one tracked occurrence on the timeline. Count is the running
// total for the code at the time it was recorded.
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Code      string    `json:"code"`
	Endpoint  string    `json:"endpoint"`
	User      string    `json:"user"`
	Status    int       `json:"status"`
	Count     int       `json:"count"`
}

// Pattern is a recurring code:method:endpoint signature.
type Pattern struct {
	Key       string               `json:"key"`
	Code      string               `json:"code"`
	Method    string               `json:"method"`
	Endpoint  string               `json:"endpoint"`
	Count     int                  `json:"count"`
	FirstSeen time.Time            `json:"firstSeen"`
	LastSeen  time.Time            `json:"lastSeen"`
	Contexts  []model.ErrorContext `json:"contexts"`
}

type metrics struct {
	total      int
	byCode     map[string]int
	byStatus   map[int]int
	byEndpoint map[string]int
	byUser     map[string]int
	trends     []TrendPoint
	lastReset  time.Time
}

func newMetrics(now time.Time) metrics {
	return metrics{
		byCode:     make(map[string]int),
		byStatus:   make(map[int]int),
		byEndpoint: make(map[string]int),
		byUser:     make(map[string]int),
		lastReset:  now,
	}
}

// CountEntry is a ranked key/count pair.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type TimeRange struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration string    `json:"duration"`
}

type Summary struct {
	TotalErrors          int               `json:"totalErrors"`
	RecentErrors         int               `json:"recentErrors"`
	TopErrorTypes        []CountEntry      `json:"topErrorTypes"`
	TopEndpoints         []CountEntry      `json:"topEndpoints"`
	AlertsByType         map[AlertType]int `json:"alertsByType"`
	TotalAlerts          int               `json:"totalAlerts"`
	UnacknowledgedAlerts int               `json:"unacknowledgedAlerts"`
	ActivePatterns       int               `json:"activePatterns"`
	TimeRange            TimeRange         `json:"timeRange"`
}

// Export is the flattened, serialization-ready form of all tracker state.
type Export struct {
	TotalErrors      int            `json:"totalErrors"`
	ErrorsByType     map[string]int `json:"errorsByType"`
	ErrorsByStatus   map[string]int `json:"errorsByStatusCode"`
	ErrorsByEndpoint map[string]int `json:"errorsByEndpoint"`
	ErrorsByUser     map[string]int `json:"errorsByUser"`
	Trends           []TrendPoint   `json:"errorTrends"`
	Patterns         []Pattern      `json:"patterns"`
	Alerts           []Alert        `json:"alerts"`
	LastReset        time.Time      `json:"lastReset"`
	ExportedAt       time.Time      `json:"exportedAt"`
}
