package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"rentalops/src/apperrors"
	"rentalops/src/model"
	"rentalops/src/recovery"

	logger "github.com/sirupsen/logrus"
)

type ErrorBody struct {
	Message          string      `json:"message"`
	MessageLocalized string      `json:"messagePortuguese"`
	Code             string      `json:"code"`
	Details          interface{} `json:"details,omitempty"`
	RequestID        string      `json:"requestId"`
	Timestamp        time.Time   `json:"timestamp"`
	StatusCode       int         `json:"statusCode"`
	CorrelationID    string      `json:"correlationId"`
	RetryAfter       *int        `json:"retryAfter,omitempty"`
	SupportContact   string      `json:"supportContact,omitempty"`
	ErrorID          string      `json:"errorId"`
}

// Performance reports the handling time in milliseconds.
type Performance struct {
	Duration    int64                `json:"duration"`
	MemoryUsage model.MemorySnapshot `json:"memoryUsage"`
}

type RecoveryInfo struct {
	Attempted  bool     `json:"attempted"`
	Successful *bool    `json:"successful,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
	Suggestion string   `json:"suggestion"`
	NextSteps  []string `json:"nextSteps"`
}

type Metadata struct {
	Environment    string `json:"environment"`
	Version        string `json:"version"`
	RuntimeVersion string `json:"runtimeVersion"`
	Platform       string `json:"platform"`
}

type ErrorResponse struct {
	Success     bool          `json:"success"`
	Error       ErrorBody     `json:"error"`
	Performance Performance   `json:"performance"`
	Recovery    *RecoveryInfo `json:"recovery,omitempty"`
	Metadata    Metadata      `json:"metadata"`
	Stack       string        `json:"stack,omitempty"`
}

// RecoveredResponse replaces the error when a strategy succeeded.
type RecoveredResponse struct {
	Success          bool         `json:"success"`
	Message          string       `json:"message"`
	MessageLocalized string       `json:"messagePortuguese"`
	Recovery         RecoveryInfo `json:"recovery"`
	RequestID        string       `json:"requestId"`
	CorrelationID    string       `json:"correlationId"`
	Timestamp        time.Time    `json:"timestamp"`
	Performance      Performance  `json:"performance"`
}

// ValidationDetails lists every failed field.
type ValidationDetails struct {
	Fields      []apperrors.FieldViolation `json:"fields"`
	TotalErrors int                        `json:"totalErrors"`
	Summary     string                     `json:"summary"`
}

type NotFoundDetails struct {
	Resource    string   `json:"resource"`
	ResourceID  string   `json:"resourceId"`
	Suggestions []string `json:"suggestions"`
}

type RateLimitDetails struct {
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
	RetryAfterHuman   string `json:"retryAfterHuman"`
}

type FileDetails struct {
	FileName     string   `json:"fileName"`
	FileSize     int64    `json:"fileSize,omitempty"`
	FileType     string   `json:"fileType,omitempty"`
	AllowedTypes []string `json:"allowedTypes"`
	MaxFileSize  string   `json:"maxFileSize"`
}

var allowedFileTypes = []string{"application/pdf", "image/jpeg", "image/png"}

const maxFileSizeHuman = "10MB"

var notFoundSuggestions = map[string][]string{
	"Property": {
		"Check that the property id is correct",
		"The property may have been removed; list properties at /api/properties",
	},
	"Owner": {
		"Check that the owner id is correct",
		"The owner may have been deactivated; list owners at /api/owners",
	},
	"Reservation": {
		"Check that the reservation id is correct",
		"The reservation may have been cancelled; list reservations at /api/reservations",
	},
}

var defaultNotFoundSuggestions = []string{
	"Check the identifier in the request",
	"Make sure the resource still exists",
}

// rendered is the kind-specific part of an error response.
type rendered struct {
	status     int
	message    string
	localized  string
	code       string
	details    interface{}
	retryAfter *int
	suggestion string
	nextSteps  []string
	stack      string
}

// renderKind selects the response shape from the error's kind.
func (h *ErrorHandler) renderKind(err error) rendered {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return h.renderUnknown(err)
	}
	out := rendered{
		status:    appErr.StatusCode,
		message:   appErr.Message,
		localized: appErr.MessageLocalized,
		code:      appErr.Code,
	}
	if !h.env.IsProduction() {
		out.stack = appErr.Stack()
	}

	switch appErr.Kind {
	case apperrors.KindValidation:
		out.status = http.StatusBadRequest
		names := make([]string, 0, len(appErr.Fields))
		for _, f := range appErr.Fields {
			names = append(names, f.Field)
		}
		out.details = ValidationDetails{
			Fields:      appErr.Fields,
			TotalErrors: len(appErr.Fields),
			Summary:     validationSummary(names),
		}
		out.suggestion = "Correct the listed fields and submit the request again."
		out.nextSteps = []string{"Review each field error", "Resubmit the corrected data"}

	case apperrors.KindDatabase:
		out.status = http.StatusInternalServerError
		if h.env.IsDevelopment() {
			details := map[string]interface{}{}
			if appErr.Database != nil && appErr.Database.Query != "" {
				details["query"] = appErr.Database.Query
			}
			if cause := appErr.Cause(); cause != nil {
				details["originalError"] = cause.Error()
			}
			if len(details) > 0 {
				out.details = details
			}
		} else {
			out.message = "A database error occurred. Please try again later."
			out.localized = "Ocorreu um erro no banco de dados. Tente novamente mais tarde."
		}
		out.suggestion = "This is a temporary problem on our side. Try again in a few moments."
		out.nextSteps = []string{"Wait a few moments", "Retry the request", "Contact support if the problem persists"}

	case apperrors.KindNotFound:
		out.status = http.StatusNotFound
		d := NotFoundDetails{Suggestions: defaultNotFoundSuggestions}
		if appErr.NotFound != nil {
			d.Resource = appErr.NotFound.Resource
			d.ResourceID = appErr.NotFound.ResourceID
			if s, ok := notFoundSuggestions[d.Resource]; ok {
				d.Suggestions = s
			}
		}
		out.details = d
		out.suggestion = "Verify the identifier and try again."
		out.nextSteps = d.Suggestions

	case apperrors.KindAuthentication:
		out.status = http.StatusUnauthorized
		out.details = map[string]string{
			"loginUrl":   "/api/auth/login",
			"refreshUrl": "/api/auth/refresh",
		}
		out.suggestion = "Sign in again to continue."
		out.nextSteps = []string{"Refresh your session token", "Log in again if the refresh fails"}

	case apperrors.KindAuthorization:
		out.status = http.StatusForbidden
		if action, ok := appErr.Context["action"]; ok {
			out.details = map[string]interface{}{"action": action}
		}
		out.suggestion = "You do not have permission for this action."
		out.nextSteps = []string{"Ask an administrator for access"}

	case apperrors.KindRateLimit:
		out.status = http.StatusTooManyRequests
		wait := appErr.RetryAfterSeconds
		out.retryAfter = &wait
		out.details = RateLimitDetails{RetryAfterSeconds: wait, RetryAfterHuman: humanSeconds(wait)}
		out.suggestion = fmt.Sprintf("Wait %s before trying again.", humanSeconds(wait))
		out.nextSteps = []string{"Wait for the retry period", "Reduce the request rate"}

	case apperrors.KindFileProcessing:
		out.status = http.StatusBadRequest
		d := FileDetails{AllowedTypes: allowedFileTypes, MaxFileSize: maxFileSizeHuman}
		if appErr.File != nil {
			d.FileName = appErr.File.FileName
			d.FileSize = appErr.File.FileSize
			d.FileType = appErr.File.FileType
		}
		out.details = d
		out.suggestion = fmt.Sprintf("Upload a PDF, JPEG or PNG file up to %s.", maxFileSizeHuman)
		out.nextSteps = []string{"Check the file type and size", "Upload the file again"}

	case apperrors.KindExternalService:
		out.status = http.StatusServiceUnavailable
		details := map[string]interface{}{"service": appErr.ServiceName}
		if h.env.IsDevelopment() {
			if cause := appErr.Cause(); cause != nil {
				details["originalError"] = cause.Error()
			}
		}
		out.details = details
		out.suggestion = fmt.Sprintf("%s is temporarily unavailable. Try again shortly.", appErr.ServiceName)
		out.nextSteps = []string{"Retry in a few minutes", "Contact support if the problem persists"}

	default:
		if len(appErr.Context) > 0 {
			out.details = appErr.Context
		}
		out.suggestion = "Try again. If the problem continues, contact support."
		out.nextSteps = []string{"Retry the request"}
	}
	return out
}

func (h *ErrorHandler) renderUnknown(err error) rendered {
	out := rendered{
		status:     http.StatusInternalServerError,
		message:    "Internal server error",
		localized:  "Erro interno do servidor",
		code:       apperrors.CodeInternal,
		suggestion: "Something went wrong on our side. Contact support with the correlation id.",
		nextSteps:  []string{"Retry the request", "Contact support with the correlation id"},
	}
	if h.env.IsDevelopment() {
		out.details = map[string]string{"message": err.Error()}
		out.stack = fmt.Sprintf("%+v", err)
	}
	return out
}

func validationSummary(fields []string) string {
	switch len(fields) {
	case 0:
		return "The request failed validation."
	case 1:
		return fmt.Sprintf("1 field failed validation: %s.", fields[0])
	default:
		return fmt.Sprintf("%d fields failed validation: %s.", len(fields), strings.Join(fields, ", "))
	}
}

func humanSeconds(s int) string {
	switch {
	case s < 60:
		if s == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", s)
	case s%60 == 0:
		if s == 60 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", s/60)
	default:
		return fmt.Sprintf("%dm%ds", s/60, s%60)
	}
}

func (h *ErrorHandler) metadata() Metadata {
	return Metadata{
		Environment:    h.env.String(),
		Version:        h.cfg.Version,
		RuntimeVersion: runtime.Version(),
		Platform:       runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func performance(ec *model.ErrorContext) Performance {
	return Performance{
		Duration:    time.Since(ec.StartTime).Milliseconds(),
		MemoryUsage: ec.Memory,
	}
}

func (h *ErrorHandler) buildResponse(err error, ec *model.ErrorContext, rec recovery.Result) (ErrorResponse, rendered) {
	out := h.renderKind(err)
	body := ErrorBody{
		Message:          out.message,
		MessageLocalized: out.localized,
		Code:             out.code,
		Details:          out.details,
		RequestID:        ec.RequestID,
		Timestamp:        time.Now(),
		StatusCode:       out.status,
		CorrelationID:    ec.CorrelationID,
		RetryAfter:       out.retryAfter,
		ErrorID:          newErrorID(),
	}
	if out.status >= http.StatusInternalServerError {
		body.SupportContact = h.cfg.SupportContact
	}

	info := &RecoveryInfo{
		Attempted:  rec.Attempted,
		Strategy:   rec.Strategy,
		Suggestion: out.suggestion,
		NextSteps:  out.nextSteps,
	}
	if rec.Attempted {
		ok := rec.Successful
		info.Successful = &ok
	}
	return ErrorResponse{
		Success:     false,
		Error:       body,
		Performance: performance(ec),
		Recovery:    info,
		Metadata:    h.metadata(),
		Stack:       out.stack,
	}, out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Error("Failed to write error response")
	}
}

func setRetryAfter(w http.ResponseWriter, seconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}
