package domain // export_service/domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound indicates that no job record exists for the given id.
	ErrJobNotFound = errors.New("export job not found")
	// ErrInvalidTransition indicates that a job is no longer running and cannot change status.
	ErrInvalidTransition = errors.New("export job status transition not allowed")
)

// ErrorKind classifies export failures for the transport layer.
type ErrorKind string

const (
	KindRequestNotValid         ErrorKind = "request_not_valid"
	KindOperationNotImplemented ErrorKind = "operation_not_implemented"
	KindJobNotCreated           ErrorKind = "job_not_created"
	KindJobNotFound             ErrorKind = "job_not_found"
	KindServiceUnavailable      ErrorKind = "service_unavailable"
)

// ExportError is returned by the gate and the export service. Message is safe to show to clients.
type ExportError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ExportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExportError) Unwrap() error { return e.Err }

func NewRequestNotValidError(format string, args ...any) *ExportError {
	return &ExportError{Kind: KindRequestNotValid, Message: fmt.Sprintf(format, args...)}
}

func NewOperationNotImplementedError(operation string) *ExportError {
	return &ExportError{Kind: KindOperationNotImplemented, Message: fmt.Sprintf("The requested %q operation is not implemented.", operation)}
}

func NewJobNotCreatedError(err error) *ExportError {
	return &ExportError{Kind: KindJobNotCreated, Message: "An internal error occurred and the export job was not created.", Err: err}
}

func NewJobNotFoundError(id string) *ExportError {
	return &ExportError{Kind: KindJobNotFound, Message: fmt.Sprintf("The requested job %q was not found.", id), Err: ErrJobNotFound}
}

func NewServiceUnavailableError(err error) *ExportError {
	return &ExportError{Kind: KindServiceUnavailable, Message: "The service is currently unavailable.", Err: err}
}

// KindOf returns the kind of err if it is an *ExportError, and "" otherwise.
func KindOf(err error) ErrorKind {
	var exportErr *ExportError
	if errors.As(err, &exportErr) {
		return exportErr.Kind
	}
	return ""
}

// NewExportDisabledError is returned whenever an export is requested while the feature is switched off.
func NewExportDisabledError() *ExportError {
	return NewRequestNotValidError("The requested %q operation is not supported.", OperationExport)
}
