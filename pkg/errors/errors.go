package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeAppError   = "APP_ERROR"
	CodeAPIError   = "API_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeCache      = "CACHE_ERROR"
	CodeService    = "SERVICE_ERROR"
	CodeParse      = "PARSE_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(message, code string, statusCode int, context map[string]any) *AppError {
	return &AppError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// APIError is returned when a remote endpoint answers with a non-2xx status
// or cannot be reached at all (StatusCode 0).
type APIError struct {
	*AppError
}

func NewAPIError(message string, statusCode int, context map[string]any) *APIError {
	return &APIError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context:    context,
		},
	}
}

func (e *APIError) WithCause(cause error) *APIError {
	e.Cause = cause
	return e
}

// Retryable reports whether a caller may retry the request that produced e.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type ValidationError struct {
	*AppError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: http.StatusBadRequest,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*AppError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeService,
			StatusCode: http.StatusInternalServerError,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

// ParseError marks a payload that could not be turned into a domain value.
// Field names the first offending field, if known.
type ParseError struct {
	*AppError
	Field string
}

func NewParseError(message, field string, cause error) *ParseError {
	return &ParseError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeParse,
			StatusCode: http.StatusBadGateway,
			Context: map[string]any{
				"field": field,
			},
			Cause: cause,
		},
		Field: field,
	}
}

func NewNotFoundError(resource, id string) *AppError {
	return NewAppError(
		fmt.Sprintf("%s not found", resource),
		CodeNotFound,
		http.StatusNotFound,
		map[string]any{"resource": resource, "id": id},
	)
}

// StatusCode extracts the HTTP status carried by err, or 500.
func StatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) && appErr.StatusCode > 0 {
		return appErr.StatusCode
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return apiErr.StatusCode
	}
	var valErr *ValidationError
	if stderrors.As(err, &valErr) {
		return valErr.StatusCode
	}
	var parseErr *ParseError
	if stderrors.As(err, &parseErr) {
		return parseErr.StatusCode
	}
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr.StatusCode
	}
	return http.StatusInternalServerError
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
