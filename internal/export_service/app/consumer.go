package app // export_service/app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	"github.com/aradsms/bulk_export/internal/platform/messagebroker"
)

const statusQueueGroup = "export_status_workers"

// JobStatusConsumer applies completion and failure events from the execution engine to the job store.
type JobStatusConsumer struct {
	writer     exportDomain.JobStatusWriter
	natsClient messagebroker.NATSClient
	logger     *slog.Logger
}

func NewJobStatusConsumer(writer exportDomain.JobStatusWriter, natsClient messagebroker.NATSClient, logger *slog.Logger) *JobStatusConsumer {
	return &JobStatusConsumer{
		writer:     writer,
		natsClient: natsClient,
		logger:     logger.With("component", "job_status_consumer"),
	}
}

// Run subscribes to the completed and failed subjects and blocks until ctx is done.
func (c *JobStatusConsumer) Run(ctx context.Context) error {
	var subs []messagebroker.Subscription
	for _, subject := range []string{exportDomain.NATSExportJobCompletedV1, exportDomain.NATSExportJobFailedV1} {
		sub, err := c.natsClient.Subscribe(ctx, subject, statusQueueGroup, func(msg messagebroker.Message) {
			c.HandleStatusEvent(ctx, msg.Subject(), msg.Data())
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return err
		}
		subs = append(subs, sub)
		c.logger.InfoContext(ctx, "Subscribed to job status events", "subject", subject, "queue_group", statusQueueGroup)
	}

	<-ctx.Done()
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil {
			c.logger.Error("Error unsubscribing from NATS", "error", err)
		}
	}
	return nil
}

// HandleStatusEvent decodes one engine event and applies it. Malformed or stale events are logged and dropped.
func (c *JobStatusConsumer) HandleStatusEvent(ctx context.Context, subject string, data []byte) {
	timer := prometheus.NewTimer(statusEventDuration.WithLabelValues(subject))
	defer timer.ObserveDuration()

	var err error
	var status exportDomain.JobStatus
	switch subject {
	case exportDomain.NATSExportJobCompletedV1:
		status = exportDomain.StatusCompleted
		var ev exportDomain.JobCompletedEvent
		if err = json.Unmarshal(data, &ev); err == nil {
			err = c.writer.UpdateStatus(ctx, ev.JobID, status, ev.Result, "")
		}
		c.record(ctx, ev.JobID.String(), status, err)
	case exportDomain.NATSExportJobFailedV1:
		status = exportDomain.StatusFailed
		var ev exportDomain.JobFailedEvent
		if err = json.Unmarshal(data, &ev); err == nil {
			err = c.writer.UpdateStatus(ctx, ev.JobID, status, nil, ev.ErrorMessage)
		}
		c.record(ctx, ev.JobID.String(), status, err)
	default:
		c.logger.WarnContext(ctx, "Ignoring event on unexpected subject", "subject", subject)
	}
}

func (c *JobStatusConsumer) record(ctx context.Context, jobID string, status exportDomain.JobStatus, err error) {
	logger := c.logger.With("job_id", jobID, "status", status)
	switch {
	case err == nil:
		statusTransitions.WithLabelValues(string(status), "applied").Inc()
		logger.InfoContext(ctx, "Applied job status event")
	case errors.Is(err, exportDomain.ErrInvalidTransition), errors.Is(err, exportDomain.ErrJobNotFound):
		statusTransitions.WithLabelValues(string(status), "rejected").Inc()
		logger.WarnContext(ctx, "Rejected job status event", "error", err)
	default:
		statusTransitions.WithLabelValues(string(status), "error").Inc()
		logger.ErrorContext(ctx, "Failed to apply job status event", "error", err)
	}
}
