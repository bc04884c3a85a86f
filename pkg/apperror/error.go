// Package apperror defines the typed error taxonomy shared by all services
// and its mapping to the HTTP error envelope.
package apperror

import (
	"fmt"
	"net/http"
	"strconv"
)

// Error is an application error carrying an HTTP status and a stable code.
// Services return these directly; the HTTP layer serializes them into the
// {errors:[...]} envelope without further interpretation.
type Error struct {
	Status int
	Code   string
	Title  string
	Detail string
	Meta   map[string]any
	Err    error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Detail, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Title)
}

// Unwrap returns the wrapped cause
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of the error with a human-readable detail
func (e *Error) WithDetail(format string, args ...any) *Error {
	clone := *e
	clone.Detail = fmt.Sprintf(format, args...)
	return &clone
}

// WithMeta returns a copy of the error with metadata attached
func (e *Error) WithMeta(meta map[string]any) *Error {
	clone := *e
	clone.Meta = meta
	return &clone
}

// WithErr returns a copy of the error with an internal cause attached.
// The cause is logged but never serialized to clients.
func (e *Error) WithErr(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

// New creates a new application error
func New(status int, code, title string) *Error {
	return &Error{Status: status, Code: code, Title: title}
}

// Error taxonomy. Every failure a caller can observe maps to one of these.
var (
	ErrValidation    = New(http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed")
	ErrTaskNotFound  = New(http.StatusNotFound, "TASK_NOT_FOUND", "Task not found")
	ErrInvalidStatus = New(http.StatusBadRequest, "INVALID_STATUS", "Operation not allowed for current task status")
	ErrConflict      = New(http.StatusConflict, "CONFLICT", "Task is already queued")
	ErrInvalidPath   = New(http.StatusBadRequest, "INVALID_PATH", "Repository path is invalid")
	ErrDatabase      = New(http.StatusServiceUnavailable, "DB_ERROR", "Database operation failed")
	ErrProvider      = New(http.StatusBadGateway, "OPENAI_ERROR", "Embedding provider request failed")
	ErrInternal      = New(http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
)

// Envelope renders any error into the HTTP status and {errors:[...]} body.
// Unknown errors collapse to INTERNAL_ERROR with no detail leaked.
func Envelope(err error) (int, map[string]any) {
	appErr, ok := err.(*Error)
	if !ok {
		appErr = ErrInternal
	}

	errObj := map[string]any{
		"status": strconv.Itoa(appErr.Status),
		"code":   appErr.Code,
		"title":  appErr.Title,
	}
	if appErr.Detail != "" && appErr.Status < 500 {
		errObj["detail"] = appErr.Detail
	}
	if len(appErr.Meta) > 0 {
		errObj["meta"] = appErr.Meta
	}

	return appErr.Status, map[string]any{
		"errors": []map[string]any{errObj},
	}
}
