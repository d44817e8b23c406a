package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeStateConflict    Code = "STATE_CONFLICT"
	CodeResourceBusy     Code = "RESOURCE_BUSY"
	CodeNotFound         Code = "NOT_FOUND"
	CodeCapacityExceeded Code = "CAPACITY_EXCEEDED"
	CodeTimeout          Code = "TIMEOUT"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeStateConflict, CodeResourceBusy:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeCapacityExceeded:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed engine error. Two errors match under errors.Is when their
// codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrPermissionDenied = &Error{Code: CodePermissionDenied}
	ErrStateConflict    = &Error{Code: CodeStateConflict}
	ErrResourceBusy     = &Error{Code: CodeResourceBusy}
	ErrNotFound         = &Error{Code: CodeNotFound}
	ErrCapacityExceeded = &Error{Code: CodeCapacityExceeded}
	ErrTimeout          = &Error{Code: CodeTimeout}
	ErrUnavailable      = &Error{Code: CodeUnavailable}
	ErrInvalidArgument  = &Error{Code: CodeInvalidArgument}
)

// Errorf builds a typed error with a formatted message.
func Errorf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code of err, CodeUnknown when err is not typed.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
