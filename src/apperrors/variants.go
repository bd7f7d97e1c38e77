package apperrors

import (
	"fmt"
	"net/http"
	"strings"
)

// NewAppError builds a generic application error with an explicit status.
func NewAppError(message string, statusCode int, code string, opts ...Option) *AppError {
	opts = append([]Option{WithStatus(statusCode), WithCode(code)}, opts...)
	return New(KindApp, message, opts...)
}

// NewInternalError wraps an unexpected failure as a non-operational error.
func NewInternalError(cause error) *AppError {
	msg := "internal server error"
	if cause != nil {
		msg = cause.Error()
	}
	return New(KindApp, msg, WithCode(CodeInternal), WithStatus(http.StatusInternalServerError),
		WithCause(cause), NonOperational())
}

// NewValidationError carries the ordered list of field violations.
func NewValidationError(message string, fields []FieldViolation, opts ...Option) *AppError {
	e := New(KindValidation, message, opts...)
	e.Fields = append([]FieldViolation(nil), fields...)
	return e
}

// RequiredField is the violation for a missing field.
func RequiredField(field string) FieldViolation {
	return FieldViolation{
		Field:            field,
		Message:          fmt.Sprintf("%s is required", field),
		LocalizedMessage: fmt.Sprintf("%s é obrigatório", field),
	}
}

// InvalidFormat is the violation for a malformed value.
func InvalidFormat(field string, value interface{}) FieldViolation {
	return FieldViolation{
		Field:            field,
		Message:          fmt.Sprintf("%s has an invalid format", field),
		LocalizedMessage: fmt.Sprintf("%s possui formato inválido", field),
		Value:            value,
	}
}

// NewDatabaseError wraps a storage failure.
func NewDatabaseError(message string, cause error, query string, canRecover bool, opts ...Option) *AppError {
	opts = append([]Option{WithCause(cause)}, opts...)
	e := New(KindDatabase, message, opts...)
	e.Database = &DatabaseDetail{Query: query, CanRecover: canRecover}
	return e
}

// DatabaseFromLowLevel classifies a driver error by its message.
func DatabaseFromLowLevel(original error, query string) *AppError {
	if original == nil {
		return NewDatabaseError("", nil, query, false)
	}
	msg := strings.ToLower(original.Error())
	switch {
	case strings.Contains(msg, "duplicate key"):
		return NewDatabaseError("", original, query, false, WithCode(CodeDuplicateEntry))
	case strings.Contains(msg, "foreign key constraint"):
		return NewDatabaseError("", original, query, false, WithCode(CodeForeignKey))
	case strings.Contains(msg, "connection"):
		return NewDatabaseError("", original, query, true, WithCode(CodeDatabaseConn))
	default:
		return NewDatabaseError("", original, query, false)
	}
}

// DatabaseConnectionFailed is the recoverable connection-loss case.
func DatabaseConnectionFailed(cause error) *AppError {
	return NewDatabaseError("", cause, "", true, WithCode(CodeDatabaseConn))
}

// QueryFailed marks a failed statement that may succeed on a fresh connection.
func QueryFailed(cause error, query string) *AppError {
	return NewDatabaseError("", cause, query, true, WithCode(CodeQueryFailed))
}

// NewNotFoundError reports a missing resource.
func NewNotFoundError(resource, resourceID string, opts ...Option) *AppError {
	msg := fmt.Sprintf("%s not found", resource)
	if resourceID != "" {
		msg = fmt.Sprintf("%s with id %s not found", resource, resourceID)
	}
	e := New(KindNotFound, msg, opts...)
	e.NotFound = &NotFoundDetail{Resource: resource, ResourceID: resourceID}
	return e
}

func PropertyNotFound(id string) *AppError {
	return NewNotFoundError("Property", id, WithCode(CodePropertyNotFound),
		WithLocalized(fmt.Sprintf("Propriedade %s não encontrada", id)))
}

func OwnerNotFound(id string) *AppError {
	return NewNotFoundError("Owner", id, WithCode(CodeOwnerNotFound),
		WithLocalized(fmt.Sprintf("Proprietário %s não encontrado", id)))
}

func ReservationNotFound(id string) *AppError {
	return NewNotFoundError("Reservation", id, WithCode(CodeReservationNF),
		WithLocalized(fmt.Sprintf("Reserva %s não encontrada", id)))
}

// NewAuthenticationError reports a missing or bad credential.
func NewAuthenticationError(message string, opts ...Option) *AppError {
	return New(KindAuthentication, message, opts...)
}

func InvalidToken() *AppError {
	return NewAuthenticationError("", WithCode(CodeInvalidToken))
}

func TokenExpired() *AppError {
	return NewAuthenticationError("", WithCode(CodeTokenExpired))
}

// NewAuthorizationError reports a permission failure.
func NewAuthorizationError(message string, opts ...Option) *AppError {
	return New(KindAuthorization, message, opts...)
}

func InsufficientPermissions(action string) *AppError {
	return NewAuthorizationError(fmt.Sprintf("insufficient permissions to %s", action),
		WithCode(CodeInsufficientPerm), WithContext("action", action))
}

// NewRateLimitError asks the client to retry after the given delay.
func NewRateLimitError(retryAfterSeconds int, opts ...Option) *AppError {
	e := New(KindRateLimit, "", opts...)
	e.RetryAfterSeconds = retryAfterSeconds
	return e
}

// NewFileProcessingError reports a failure on an uploaded file.
func NewFileProcessingError(message, fileName string, fileSize int64, fileType string, opts ...Option) *AppError {
	e := New(KindFileProcessing, message, opts...)
	e.File = &FileDetail{FileName: fileName, FileSize: fileSize, FileType: fileType}
	return e
}

func FileTooLarge(fileName string, fileSize, maxSize int64) *AppError {
	return NewFileProcessingError(
		fmt.Sprintf("file %s exceeds the maximum size of %d bytes", fileName, maxSize),
		fileName, fileSize, "", WithCode(CodeFileTooLarge), WithContext("maxSize", maxSize))
}

func InvalidFileType(fileName, fileType string) *AppError {
	return NewFileProcessingError(
		fmt.Sprintf("file type %s is not allowed", fileType),
		fileName, 0, fileType, WithCode(CodeInvalidFileType))
}

func PDFExtractionFailed(fileName string, cause error) *AppError {
	return NewFileProcessingError("", fileName, 0, "application/pdf",
		WithCode(CodePDFExtraction), WithCause(cause))
}

// NewExternalServiceError wraps a failure of a third-party dependency.
func NewExternalServiceError(serviceName, message string, cause error, opts ...Option) *AppError {
	if message == "" {
		message = fmt.Sprintf("%s request failed", serviceName)
	}
	opts = append([]Option{WithCause(cause)}, opts...)
	e := New(KindExternalService, message, opts...)
	e.ServiceName = serviceName
	return e
}

// GeminiAPIError is the AI extraction API failure.
func GeminiAPIError(cause error) *AppError {
	return NewExternalServiceError("Gemini", "Gemini API request failed", cause, WithCode(CodeGeminiAPI))
}

func ExternalServiceTimeout(serviceName string) *AppError {
	return NewExternalServiceError(serviceName, fmt.Sprintf("%s did not respond in time", serviceName), nil,
		WithCode(CodeExternalTimeout))
}
