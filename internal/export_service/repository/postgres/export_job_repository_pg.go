package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	"github.com/aradsms/bulk_export/internal/platform/secrets"
)

// Querier is the subset of pgxpool.Pool the repository uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

type PgExportJobRepository struct {
	db     Querier
	box    *secrets.Box
	logger *slog.Logger
}

func NewPgExportJobRepository(db Querier, box *secrets.Box, logger *slog.Logger) *PgExportJobRepository {
	return &PgExportJobRepository{db: db, box: box, logger: logger.With("component", "export_job_repository_pg")}
}

// Upsert inserts job unless a row with the same id already exists. The single statement keeps the insert atomic.
func (r *PgExportJobRepository) Upsert(ctx context.Context, job *exportDomain.ExportJobRecord) (exportDomain.UpsertOutcome, error) {
	sealed, err := r.box.Seal(job.DestinationConnectionString)
	if err != nil {
		return exportDomain.UpsertError, fmt.Errorf("sealing connection string: %w", err)
	}

	query := `
		INSERT INTO export_jobs (id, request_uri, destination_type, destination_connection_string, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		job.ID, job.RequestURI, job.DestinationType, sealed, job.Status, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error inserting export job", "error", err, "job_id", job.ID)
		return exportDomain.UpsertError, fmt.Errorf("inserting export job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Export job id already exists", "job_id", job.ID)
		return exportDomain.UpsertConflict, nil
	}
	r.logger.InfoContext(ctx, "Export job created", "job_id", job.ID)
	return exportDomain.UpsertCreated, nil
}

func (r *PgExportJobRepository) Lookup(ctx context.Context, id uuid.UUID) (*exportDomain.ExportJobRecord, error) {
	query := `
		SELECT id, request_uri, destination_type, destination_connection_string, status, result,
		       COALESCE(error_message, ''), created_at, updated_at, completed_at
		FROM export_jobs
		WHERE id = $1
	`
	job := &exportDomain.ExportJobRecord{}
	var result []byte
	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.RequestURI, &job.DestinationType, &job.DestinationConnectionString, &job.Status, &result,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, exportDomain.ErrJobNotFound
		}
		r.logger.ErrorContext(ctx, "Error getting export job by ID", "error", err, "job_id", id)
		return nil, fmt.Errorf("querying export job: %w", err)
	}
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if job.DestinationConnectionString, err = r.box.Open(job.DestinationConnectionString); err != nil {
		return nil, fmt.Errorf("opening connection string for job %s: %w", id, err)
	}
	return job, nil
}

// UpdateStatus moves a running job to completed or failed. The WHERE clause makes the transition
// conditional on the current status, so concurrent writers cannot both succeed.
func (r *PgExportJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status exportDomain.JobStatus, result json.RawMessage, errorMessage string) error {
	if err := exportDomain.ValidateTransition(exportDomain.StatusRunning, status); err != nil {
		return err
	}

	now := time.Now().UTC()
	var resultArg, errorArg any
	if status == exportDomain.StatusCompleted && len(result) > 0 {
		resultArg = []byte(result)
	}
	if status == exportDomain.StatusFailed {
		errorArg = errorMessage
	}

	query := `
		UPDATE export_jobs
		SET status = $1, result = $2, error_message = $3, updated_at = $4, completed_at = $4
		WHERE id = $5 AND status = $6
	`
	tag, err := r.db.Exec(ctx, query, status, resultArg, errorArg, now, id, exportDomain.StatusRunning)
	if err != nil {
		r.logger.ErrorContext(ctx, "Error updating export job status", "error", err, "job_id", id, "new_status", status)
		return fmt.Errorf("updating export job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current exportDomain.JobStatus
		err := r.db.QueryRow(ctx, `SELECT status FROM export_jobs WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return exportDomain.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("reading export job status: %w", err)
		}
		r.logger.WarnContext(ctx, "Rejected export job status transition", "job_id", id, "current_status", current, "new_status", status)
		return exportDomain.ErrInvalidTransition
	}
	r.logger.InfoContext(ctx, "Export job status updated", "job_id", id, "new_status", status)
	return nil
}
