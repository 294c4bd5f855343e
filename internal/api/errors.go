package api

import (
	"errors"
	"net/http"
)

// Stable machine-readable error codes. Clients branch on these, never on
// the human-readable message.
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeInternal            = "INTERNAL"
	CodeRateLimited         = "RATE_LIMITED"
	CodeAnonymousDailyLimit = "ANONYMOUS_DAILY_LIMIT_EXCEEDED"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
)

type AppError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest         = &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: "bad request"}
	ErrUnauthorized       = &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "unauthorized"}
	ErrForbidden          = &AppError{Status: http.StatusForbidden, Code: CodeForbidden, Message: "forbidden"}
	ErrNotFound           = &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: "not found"}
	ErrConflict           = &AppError{Status: http.StatusConflict, Code: CodeConflict, Message: "conflict"}
	ErrInternalServer     = &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error"}
	ErrInvalidCredentials = &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "invalid email or password"}
	ErrEmailAlreadyExists = &AppError{Status: http.StatusConflict, Code: CodeConflict, Message: "email already registered"}
	ErrInvalidToken       = &AppError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: "invalid or expired token"}
)

func NewValidationError(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeValidation, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: msg}
}

// NewThrottledError builds a 429 with the given gate code and the
// remaining/reset details the client needs for a user-facing message.
func NewThrottledError(code, msg string, details any) *AppError {
	return &AppError{Status: http.StatusTooManyRequests, Code: code, Message: msg, Details: details}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		JSONAppError(w, appErr)
		return
	}
	JSONAppError(w, ErrInternalServer)
}
