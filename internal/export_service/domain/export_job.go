package domain // export_service/domain

import (
	"encoding/json"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an export job.
type JobStatus string

const (
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ExportJobRecord is the persisted unit of work for one admitted export request.
type ExportJobRecord struct {
	ID                          uuid.UUID       `json:"id"`
	RequestURI                  string          `json:"request_uri"`
	DestinationType             string          `json:"destination_type"`
	DestinationConnectionString string          `json:"destination_connection_string"`
	Status                      JobStatus       `json:"status"`
	Result                      json.RawMessage `json:"result,omitempty"` // Only set when completed
	ErrorMessage                string          `json:"error_message,omitempty"`
	CreatedAt                   time.Time       `json:"created_at"`
	UpdatedAt                   time.Time       `json:"updated_at"`
	CompletedAt                 *time.Time      `json:"completed_at,omitempty"`
}

// NewExportJobRecord creates a running job record from an admitted request.
func NewExportJobRecord(id uuid.UUID, req *CreateExportRequest) *ExportJobRecord {
	now := time.Now().UTC()
	return &ExportJobRecord{
		ID:                          id,
		RequestURI:                  RedactRequestURI(req.RequestURI),
		DestinationType:             req.DestinationType,
		DestinationConnectionString: req.DestinationConnectionString,
		Status:                      StatusRunning,
		CreatedAt:                   now,
		UpdatedAt:                   now,
	}
}

// RedactRequestURI renders u without the destination connection settings parameter.
// The result is what gets stored, logged and published in place of the raw request URI.
func RedactRequestURI(u *url.URL) string {
	if u == nil {
		return ""
	}
	redacted := *u
	redacted.User = nil
	if q := u.Query(); q.Has(QueryDestinationConnectionString) {
		q.Del(QueryDestinationConnectionString)
		redacted.RawQuery = q.Encode()
	}
	return redacted.String()
}

// CreateExportRequest carries the parameters of an admitted export request to the service.
type CreateExportRequest struct {
	RequestURI                  *url.URL `validate:"required"`
	DestinationType             string   `validate:"required,notblank"`
	DestinationConnectionString string   `validate:"required,notblank"`
}

// CreateExportResponse reports whether a job was persisted and under which id.
type CreateExportResponse struct {
	JobCreated bool
	ID         string
}

// GetExportStatusResponse describes a job as seen by a poll.
type GetExportStatusResponse struct {
	JobExists bool
	Completed bool
	Status    JobStatus
	Result    json.RawMessage
}
