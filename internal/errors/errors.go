package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeNotFound       ErrCode = "NOT_FOUND"
	ErrCodeUnauthorized   ErrCode = "UNAUTHORIZED"
	ErrCodeRateLimited    ErrCode = "RATE_LIMITED"
	ErrCodeInternal       ErrCode = "INTERNAL_ERROR"
	ErrCodeBadRequest     ErrCode = "BAD_REQUEST"
	ErrCodeForbidden      ErrCode = "FORBIDDEN"
	ErrCodeInvalidConfig  ErrCode = "INVALID_CONFIG"
	ErrCodeConfigMismatch ErrCode = "CONFIG_MISMATCH"
	ErrCodeCorruptState   ErrCode = "CORRUPT_STATE"
	ErrCodeAlreadyExists  ErrCode = "ALREADY_EXISTS"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// NewRateLimitedError creates a new rate limited error
func NewRateLimitedError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRateLimited,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeBadRequest,
		Message: message,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeForbidden,
		Message: message,
	}
}

// NewInvalidConfigError creates a new configuration error
func NewInvalidConfigError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidConfig,
		Message: message,
		Err:     err,
	}
}

// NewConfigMismatchError reports that persisted progress belongs to other search settings
func NewConfigMismatchError(stored, current string) *AppError {
	return &AppError{
		Code: ErrCodeConfigMismatch,
		Message: fmt.Sprintf("progress was recorded with config %s but current config is %s; "+
			"use a different DATA_DIR and RESULTS_DIR for new search settings", short(stored), short(current)),
	}
}

// NewCorruptStateError creates a new corrupt state error
func NewCorruptStateError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeCorruptState,
		Message: message,
		Err:     err,
	}
}

// NewAlreadyExistsError creates a new already exists error
func NewAlreadyExistsError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUnauthorized checks if the error is an unauthorized error
func IsUnauthorized(err error) bool {
	return hasCode(err, ErrCodeUnauthorized)
}

// IsForbidden checks if the error is a forbidden error
func IsForbidden(err error) bool {
	return hasCode(err, ErrCodeForbidden)
}

// IsRateLimited checks if the error is a rate limited error
func IsRateLimited(err error) bool {
	return hasCode(err, ErrCodeRateLimited)
}

// IsInvalidConfig checks if the error is a configuration error
func IsInvalidConfig(err error) bool {
	return hasCode(err, ErrCodeInvalidConfig)
}

// IsConfigMismatch checks if the error is a config mismatch error
func IsConfigMismatch(err error) bool {
	return hasCode(err, ErrCodeConfigMismatch)
}

// IsCorruptState checks if the error is a corrupt state error
func IsCorruptState(err error) bool {
	return hasCode(err, ErrCodeCorruptState)
}

// IsAlreadyExists checks if the error is an already exists error
func IsAlreadyExists(err error) bool {
	return hasCode(err, ErrCodeAlreadyExists)
}

func hasCode(err error, code ErrCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
