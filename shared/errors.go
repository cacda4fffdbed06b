package shared

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the record store contract.
var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrSerialization = errors.New("value cannot be serialized")
	ErrIO            = errors.New("storage io failure")
)

// UsageLimitExceededError is returned when a user exhausts the daily quota.
type UsageLimitExceededError struct {
	Limit int
}

func (e *UsageLimitExceededError) Error() string {
	return fmt.Sprintf("daily usage limit (%d) exceeded", e.Limit)
}

func IsUsageLimitExceeded(err error) bool {
	var e *UsageLimitExceededError
	return errors.As(err, &e)
}

type AppError struct {
	StatusCode int         `json:"status_code"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Err        error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithData(data interface{}) *AppError {
	e.Data = data
	return e
}

func NewBadRequestError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusBadRequest, Message: message, Err: err}
}

func NewUnauthorizedError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusUnauthorized, Message: message, Err: err}
}

func NewForbiddenError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusForbidden, Message: message, Err: err}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusNotFound, Message: message, Err: err}
}

func NewTooManyRequestsError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusTooManyRequests, Message: message, Err: err}
}

func NewInternalError(err error, message string) *AppError {
	return &AppError{StatusCode: http.StatusInternalServerError, Message: message, Err: err}
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
