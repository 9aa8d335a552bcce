package domain // export_service/domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	NATSExportJobCreatedV1   = "export.job.created.v1"
	NATSExportJobCompletedV1 = "export.job.completed.v1"
	NATSExportJobFailedV1    = "export.job.failed.v1"
)

// JobCreatedEvent is published once a job record is durably stored.
// RequestURI is redacted and the connection string is not carried on the wire; the engine reads it back from the store.
type JobCreatedEvent struct {
	JobID           uuid.UUID `json:"job_id"`
	RequestURI      string    `json:"request_uri"`
	DestinationType string    `json:"destination_type"`
}

// JobCompletedEvent is published by the execution engine when an export finishes.
type JobCompletedEvent struct {
	JobID  uuid.UUID       `json:"job_id"`
	Result json.RawMessage `json:"result"`
}

// JobFailedEvent is published by the execution engine when an export cannot finish.
type JobFailedEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	ErrorMessage string    `json:"error_message"`
}
