package notification

import (
	"context"
	"net/http"
	"strings"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// SeverityOf derives the notification severity from the status code bands.
func SeverityOf(err error) Severity {
	status := apperrors.StatusOf(err)
	switch {
	case status >= http.StatusInternalServerError:
		return SeverityCritical
	case status >= http.StatusBadRequest:
		return SeverityError
	case strings.Contains(apperrors.CodeOf(err), "WARNING"):
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Frequency arms a rule only once it matched Count times within Window.
type Frequency struct {
	Count  int           `toml:"count" json:"count"`
	Window time.Duration `toml:"window" json:"window"`
}

// Conditions are ANDed. Empty lists match everything.
type Conditions struct {
	ErrorCodes  []string   `toml:"error_codes" json:"errorCodes,omitempty"`
	StatusCodes []int      `toml:"status_codes" json:"statusCodes,omitempty"`
	Severities  []Severity `toml:"severities" json:"severities,omitempty"`
	Patterns    []string   `toml:"patterns" json:"patterns,omitempty"`
	Frequency   *Frequency `toml:"frequency" json:"frequency,omitempty"`
}

// Throttling caps sends per rolling hour and day. Zero means unlimited.
type Throttling struct {
	MaxPerHour int `toml:"max_per_hour" json:"maxPerHour"`
	MaxPerDay  int `toml:"max_per_day" json:"maxPerDay"`
}

type Template struct {
	Title            string `toml:"title" json:"title"`
	TitleLocalized   string `toml:"title_pt" json:"titlePortuguese"`
	Message          string `toml:"message" json:"message"`
	MessageLocalized string `toml:"message_pt" json:"messagePortuguese"`
}

type Rule struct {
	ID         string     `toml:"id" json:"id"`
	Name       string     `toml:"name" json:"name"`
	Enabled    bool       `toml:"enabled" json:"enabled"`
	Conditions Conditions `toml:"conditions" json:"conditions"`
	Channels   []string   `toml:"channels" json:"channels"`
	Throttling Throttling `toml:"throttling" json:"throttling"`
	Template   *Template  `toml:"template" json:"template,omitempty"`
}

type Action struct {
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
	Kind  string `json:"kind"`
}

type Metadata struct {
	Environment   string `json:"environment"`
	Service       string `json:"service"`
	Version       string `json:"version"`
	CorrelationID string `json:"correlationId,omitempty"`
	RuleID        string `json:"ruleId,omitempty"`
}

// Notification is built per rule firing and handed to every channel of the rule.
type Notification struct {
	ID               string                `json:"id"`
	Timestamp        time.Time             `json:"timestamp"`
	Severity         Severity              `json:"severity"`
	Title            string                `json:"title"`
	TitleLocalized   string                `json:"titlePortuguese"`
	Message          string                `json:"message"`
	MessageLocalized string                `json:"messagePortuguese"`
	Error            *apperrors.Serialized `json:"error,omitempty"`
	Context          *model.ErrorContext   `json:"context,omitempty"`
	Metadata         Metadata              `json:"metadata"`
	Actions          []Action              `json:"actions,omitempty"`
}

// Channel delivers notifications. Send never returns transport errors; it
// logs them and reports false.
type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, n Notification) bool
}
