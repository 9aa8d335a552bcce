package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	"github.com/aradsms/bulk_export/internal/platform/secrets"
)

const (
	keyPrefix = "export:job:"
	// maxTransitionAttempts bounds optimistic-lock retries in UpdateStatus.
	maxTransitionAttempts = 5
)

// RedisExportJobRepository keeps each job as a JSON document under export:job:<id>.
type RedisExportJobRepository struct {
	client *redis.Client
	box    *secrets.Box
	logger *slog.Logger
}

func NewRedisExportJobRepository(client *redis.Client, box *secrets.Box, logger *slog.Logger) *RedisExportJobRepository {
	return &RedisExportJobRepository{client: client, box: box, logger: logger.With("component", "export_job_repository_redis")}
}

func jobKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

// Upsert stores job with SETNX, so an existing id is never overwritten.
func (r *RedisExportJobRepository) Upsert(ctx context.Context, job *exportDomain.ExportJobRecord) (exportDomain.UpsertOutcome, error) {
	data, err := r.encode(job)
	if err != nil {
		return exportDomain.UpsertError, err
	}

	created, err := r.client.SetNX(ctx, jobKey(job.ID), data, 0).Result()
	if err != nil {
		r.logger.ErrorContext(ctx, "Error storing export job", "error", err, "job_id", job.ID)
		return exportDomain.UpsertError, fmt.Errorf("storing export job: %w", err)
	}
	if !created {
		r.logger.WarnContext(ctx, "Export job id already exists", "job_id", job.ID)
		return exportDomain.UpsertConflict, nil
	}
	r.logger.InfoContext(ctx, "Export job created", "job_id", job.ID)
	return exportDomain.UpsertCreated, nil
}

func (r *RedisExportJobRepository) Lookup(ctx context.Context, id uuid.UUID) (*exportDomain.ExportJobRecord, error) {
	data, err := r.client.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, exportDomain.ErrJobNotFound
	}
	if err != nil {
		r.logger.ErrorContext(ctx, "Error getting export job by ID", "error", err, "job_id", id)
		return nil, fmt.Errorf("reading export job: %w", err)
	}
	return r.decode(data)
}

// UpdateStatus applies a terminal transition inside a WATCH transaction; a concurrent writer
// causes a retry, which then observes the terminal status and fails with ErrInvalidTransition.
func (r *RedisExportJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status exportDomain.JobStatus, result json.RawMessage, errorMessage string) error {
	key := jobKey(id)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return exportDomain.ErrJobNotFound
		}
		if err != nil {
			return err
		}

		var job exportDomain.ExportJobRecord
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("decoding export job: %w", err)
		}
		if err := exportDomain.ValidateTransition(job.Status, status); err != nil {
			r.logger.WarnContext(ctx, "Rejected export job status transition", "job_id", id, "current_status", job.Status, "new_status", status)
			return err
		}

		now := time.Now().UTC()
		job.Status = status
		job.UpdatedAt = now
		job.CompletedAt = &now
		if status == exportDomain.StatusCompleted {
			job.Result = result
		} else {
			job.ErrorMessage = errorMessage
		}
		updated, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("encoding export job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTransitionAttempts; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return err
		}
		r.logger.InfoContext(ctx, "Export job status updated", "job_id", id, "new_status", status)
		return nil
	}
	return fmt.Errorf("updating export job %s: too much contention", id)
}

// encode seals the connection string; the stored document never holds it in clear text when a key is set.
func (r *RedisExportJobRepository) encode(job *exportDomain.ExportJobRecord) ([]byte, error) {
	sealed, err := r.box.Seal(job.DestinationConnectionString)
	if err != nil {
		return nil, fmt.Errorf("sealing connection string: %w", err)
	}
	stored := *job
	stored.DestinationConnectionString = sealed
	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("encoding export job: %w", err)
	}
	return data, nil
}

func (r *RedisExportJobRepository) decode(data []byte) (*exportDomain.ExportJobRecord, error) {
	var job exportDomain.ExportJobRecord
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding export job: %w", err)
	}
	plain, err := r.box.Open(job.DestinationConnectionString)
	if err != nil {
		return nil, fmt.Errorf("opening connection string for job %s: %w", job.ID, err)
	}
	job.DestinationConnectionString = plain
	return &job, nil
}
