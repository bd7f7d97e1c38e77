package logging

import (
	"net/http"

	"rentalops/src/apperrors"

	logger "github.com/sirupsen/logrus"
)

// Severity is the log tier assigned to an error.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// ClassifySeverity picks the tier for err. Errors outside the taxonomy are
// treated as defects and are always critical.
func ClassifySeverity(err error) Severity {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return SeverityCritical
	}
	status := appErr.StatusCode
	switch {
	case status >= http.StatusInternalServerError,
		apperrors.IsCriticalCode(appErr.Code),
		!appErr.Operational:
		return SeverityCritical
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusTooManyRequests:
		return SeverityHigh
	case status >= http.StatusBadRequest:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Level maps the tier onto a logrus level.
func (s Severity) Level() logger.Level {
	switch s {
	case SeverityCritical, SeverityHigh:
		return logger.ErrorLevel
	case SeverityMedium:
		return logger.WarnLevel
	default:
		return logger.InfoLevel
	}
}
