// Package apperrors defines the typed errors raised by request handlers and
// services. Every error carries a stable code, an HTTP status, a bilingual
// message and an operational flag so the middleware can pick a response
// without parsing message text.
package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
)

// Kind tags the concrete variant of an AppError.
type Kind int

const (
	KindApp Kind = iota
	KindValidation
	KindDatabase
	KindNotFound
	KindAuthentication
	KindAuthorization
	KindRateLimit
	KindFileProcessing
	KindExternalService
)

var kindNames = map[Kind]string{
	KindApp:             "AppError",
	KindValidation:      "ValidationError",
	KindDatabase:        "DatabaseError",
	KindNotFound:        "NotFoundError",
	KindAuthentication:  "AuthenticationError",
	KindAuthorization:   "AuthorizationError",
	KindRateLimit:       "RateLimitError",
	KindFileProcessing:  "FileProcessingError",
	KindExternalService: "ExternalServiceError",
}

// Name returns the variant name used in serialized output.
func (k Kind) Name() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindApp]
}

// KindFromName is the inverse of Name. Unknown names map to KindApp.
func KindFromName(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindApp
}

func (k Kind) defaultCode() string {
	switch k {
	case KindValidation:
		return CodeValidation
	case KindDatabase:
		return CodeDatabase
	case KindNotFound:
		return CodeNotFound
	case KindAuthentication:
		return CodeAuthentication
	case KindAuthorization:
		return CodeAuthorization
	case KindRateLimit:
		return CodeRateLimit
	case KindFileProcessing:
		return CodeFileProcessing
	case KindExternalService:
		return CodeExternalService
	default:
		return CodeApplication
	}
}

func (k Kind) defaultStatus() int {
	switch k {
	case KindValidation, KindFileProcessing:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FieldViolation is a single field-level validation failure.
type FieldViolation struct {
	Field            string      `json:"field"`
	Message          string      `json:"message"`
	LocalizedMessage string      `json:"messagePortuguese"`
	Value            interface{} `json:"value,omitempty"`
}

// DatabaseDetail is the payload of KindDatabase errors.
type DatabaseDetail struct {
	Query      string
	CanRecover bool
	// Recover, when set, is tried by the database recovery strategy before
	// falling back to a connection ping.
	Recover func(ctx context.Context) error
}

// NotFoundDetail is the payload of KindNotFound errors.
type NotFoundDetail struct {
	Resource   string
	ResourceID string
}

// FileDetail is the payload of KindFileProcessing errors.
type FileDetail struct {
	FileName string
	FileSize int64
	FileType string
}

// AppError is the single concrete error type of the taxonomy. Kind selects
// which of the payload fields is populated. Values are built once at the
// raise site and must not be mutated afterwards.
type AppError struct {
	Kind             Kind
	Message          string
	MessageLocalized string
	Code             string
	StatusCode       int
	Operational      bool
	Timestamp        time.Time
	Context          map[string]interface{}

	Fields            []FieldViolation
	Database          *DatabaseDetail
	NotFound          *NotFoundDetail
	RetryAfterSeconds int
	File              *FileDetail
	ServiceName       string

	cause error
	stack error
}

// Option customizes an AppError during construction.
type Option func(*AppError)

// WithCode overrides the kind-derived code.
func WithCode(code string) Option {
	return func(e *AppError) { e.Code = code }
}

// WithStatus overrides the kind-derived status code.
func WithStatus(status int) Option {
	return func(e *AppError) { e.StatusCode = status }
}

// WithLocalized sets the Portuguese message explicitly.
func WithLocalized(msg string) Option {
	return func(e *AppError) { e.MessageLocalized = msg }
}

// WithContext adds a key to the free-form context bag.
func WithContext(key string, value interface{}) Option {
	return func(e *AppError) {
		if e.Context == nil {
			e.Context = make(map[string]interface{})
		}
		e.Context[key] = value
	}
}

// WithCause records the originating error.
func WithCause(err error) Option {
	return func(e *AppError) { e.cause = err }
}

// NonOperational marks the error as a programming defect.
func NonOperational() Option {
	return func(e *AppError) { e.Operational = false }
}

// New builds an AppError of the given kind. Code, status and the localized
// message default from the kind and the code table.
func New(kind Kind, message string, opts ...Option) *AppError {
	e := &AppError{
		Kind:        kind,
		Message:     message,
		Operational: true,
		Timestamp:   time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.Code == "" {
		e.Code = kind.defaultCode()
	}
	if e.StatusCode == 0 {
		e.StatusCode = kind.defaultStatus()
	}
	if e.Message == "" {
		if msg, ok := LookupMessage(e.Code); ok {
			e.Message = msg.English
		}
	}
	if e.MessageLocalized == "" {
		if msg, ok := LookupMessage(e.Code); ok {
			e.MessageLocalized = msg.Portuguese
		} else {
			e.MessageLocalized = e.Message
		}
	}
	e.stack = pkgerrors.WithStack(errors.New(e.Message))
	return e
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the originating error, if any.
func (e *AppError) Unwrap() error {
	return e.cause
}

// Cause is the originating low-level error, or nil.
func (e *AppError) Cause() error {
	return e.cause
}

// Name is the variant name, e.g. "ValidationError".
func (e *AppError) Name() string {
	return e.Kind.Name()
}

// Stack renders the stack captured at construction.
func (e *AppError) Stack() string {
	if e.stack == nil {
		return ""
	}
	return fmt.Sprintf("%+v", e.stack)
}

// Recoverable reports whether the error kind is eligible for a recovery attempt.
func (e *AppError) Recoverable() bool {
	switch e.Kind {
	case KindDatabase:
		return e.Database != nil && e.Database.CanRecover
	case KindExternalService, KindRateLimit:
		return true
	default:
		return false
	}
}

// Serialized is the wire form of an AppError.
type Serialized struct {
	Name             string                 `json:"name"`
	Message          string                 `json:"message"`
	MessageLocalized string                 `json:"messagePortuguese"`
	Code             string                 `json:"code"`
	StatusCode       int                    `json:"statusCode"`
	Timestamp        time.Time              `json:"timestamp"`
	Context          map[string]interface{} `json:"context,omitempty"`
}

// Serialize returns the API representation of the error.
func (e *AppError) Serialize() Serialized {
	return Serialized{
		Name:             e.Name(),
		Message:          e.Message,
		MessageLocalized: e.MessageLocalized,
		Code:             e.Code,
		StatusCode:       e.StatusCode,
		Timestamp:        e.Timestamp,
		Context:          e.Context,
	}
}

// FromSerialized rebuilds an operational AppError from its wire form.
func FromSerialized(s Serialized) *AppError {
	e := New(KindFromName(s.Name), s.Message,
		WithCode(s.Code),
		WithStatus(s.StatusCode),
		WithLocalized(s.MessageLocalized),
	)
	if !s.Timestamp.IsZero() {
		e.Timestamp = s.Timestamp
	}
	e.Context = s.Context
	return e
}

// AsAppError unwraps err to an *AppError.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsOperationalError reports whether err is an expected failure that is safe
// to show to clients. Anything that is not an AppError is a defect.
func IsOperationalError(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Operational
	}
	return false
}

// CodeOf returns the error code. Errors outside the taxonomy report
// INTERNAL_SERVER_ERROR.
func CodeOf(err error) string {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	if err == nil {
		return ""
	}
	return CodeInternal
}

// StatusOf returns the HTTP status the error maps to.
func StatusOf(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
