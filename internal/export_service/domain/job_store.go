package domain // export_service/domain

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// UpsertOutcome is the store's acknowledgement for an Upsert call.
type UpsertOutcome int

const (
	UpsertError UpsertOutcome = iota
	UpsertCreated
	UpsertConflict
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertCreated:
		return "created"
	case UpsertConflict:
		return "conflict"
	default:
		return "error"
	}
}

// JobStore persists export job records.
// Implementations must make Upsert an atomic insert-if-absent: a record is either fully stored or not at all.
type JobStore interface {
	Upsert(ctx context.Context, job *ExportJobRecord) (UpsertOutcome, error)
	// Lookup returns ErrJobNotFound when no record exists for id.
	Lookup(ctx context.Context, id uuid.UUID) (*ExportJobRecord, error)
}

// JobStatusWriter applies execution-engine transitions. Only running jobs may move,
// and only to completed or failed.
type JobStatusWriter interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status JobStatus, result json.RawMessage, errorMessage string) error
}

// JobRepository is implemented by every store backend.
type JobRepository interface {
	JobStore
	JobStatusWriter
}

// ValidateTransition checks a requested status change against the job state machine.
func ValidateTransition(from, to JobStatus) error {
	if from != StatusRunning || !to.IsTerminal() {
		return ErrInvalidTransition
	}
	return nil
}
