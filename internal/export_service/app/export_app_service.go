package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	"github.com/aradsms/bulk_export/internal/platform/messagebroker"
)

// ExportService creates export jobs and reports their status. It never changes a job's status.
type ExportService struct {
	store     exportDomain.JobStore
	publisher messagebroker.NATSClient // optional
	cfg       *exportDomain.ExportConfiguration
	validate  *validator.Validate
	newID     func() uuid.UUID
	logger    *slog.Logger
}

// NewExportService creates a new ExportService. publisher may be nil, in which case no
// job-created event is emitted.
func NewExportService(store exportDomain.JobStore, publisher messagebroker.NATSClient, cfg *exportDomain.ExportConfiguration, logger *slog.Logger) *ExportService {
	return &ExportService{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
		validate:  newRequestValidator(),
		newID:     uuid.New,
		logger:    logger.With("service_component", "ExportService"),
	}
}

// newRequestValidator panics if the notblank tag cannot be registered, since every
// CreateExportRequest field depends on it.
func newRequestValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("register notblank validation: %v", err))
	}
	return validate
}

// CreateExport persists a new running job for an admitted request.
// Any acknowledgement other than created yields JobCreated=false and a job_not_created error.
func (s *ExportService) CreateExport(ctx context.Context, req *exportDomain.CreateExportRequest) (*exportDomain.CreateExportResponse, error) {
	if !s.cfg.Enabled() {
		requestsRejected.WithLabelValues(string(exportDomain.KindRequestNotValid)).Inc()
		return &exportDomain.CreateExportResponse{}, exportDomain.NewExportDisabledError()
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		requestsRejected.WithLabelValues(string(exportDomain.KindRequestNotValid)).Inc()
		return &exportDomain.CreateExportResponse{}, exportDomain.NewRequestNotValidError("The export request is incomplete: %v", err)
	}

	job := exportDomain.NewExportJobRecord(s.newID(), req)
	logger := s.logger.With("job_id", job.ID, "destination_type", job.DestinationType)

	outcome, err := s.store.Upsert(ctx, job)
	jobsCreated.WithLabelValues(job.DestinationType, outcome.String()).Inc()
	if err != nil || outcome != exportDomain.UpsertCreated {
		if err == nil {
			err = errors.New("store acknowledged " + outcome.String())
		}
		logger.ErrorContext(ctx, "Export job was not created", "outcome", outcome.String(), "error", err)
		return &exportDomain.CreateExportResponse{JobCreated: false}, exportDomain.NewJobNotCreatedError(err)
	}

	logger.InfoContext(ctx, "Export job created", "request_uri", job.RequestURI)
	s.publishJobCreated(ctx, job, logger)

	return &exportDomain.CreateExportResponse{JobCreated: true, ID: job.ID.String()}, nil
}

// CreateScopedExport is the shared tail of the resource-type and resource-instance variants,
// called once the scope rule has passed. Those variants have no execution path yet.
func (s *ExportService) CreateScopedExport(ctx context.Context) error {
	if !s.cfg.Enabled() {
		requestsRejected.WithLabelValues(string(exportDomain.KindRequestNotValid)).Inc()
		return exportDomain.NewExportDisabledError()
	}
	requestsRejected.WithLabelValues(string(exportDomain.KindOperationNotImplemented)).Inc()
	return exportDomain.NewOperationNotImplementedError(exportDomain.OperationExport)
}

// GetExportStatus looks a job up by id. It performs no writes, so polling is idempotent.
func (s *ExportService) GetExportStatus(ctx context.Context, requestURI string, id string) (*exportDomain.GetExportStatusResponse, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		statusPolls.WithLabelValues("not_found").Inc()
		return &exportDomain.GetExportStatusResponse{JobExists: false}, exportDomain.NewJobNotFoundError(id)
	}

	job, err := s.store.Lookup(ctx, jobID)
	if err != nil {
		if errors.Is(err, exportDomain.ErrJobNotFound) {
			statusPolls.WithLabelValues("not_found").Inc()
			return &exportDomain.GetExportStatusResponse{JobExists: false}, exportDomain.NewJobNotFoundError(id)
		}
		s.logger.ErrorContext(ctx, "Failed to look up export job", "job_id", id, "request_uri", requestURI, "error", err)
		statusPolls.WithLabelValues("error").Inc()
		return &exportDomain.GetExportStatusResponse{}, exportDomain.NewServiceUnavailableError(err)
	}

	statusPolls.WithLabelValues(string(job.Status)).Inc()
	resp := &exportDomain.GetExportStatusResponse{JobExists: true, Status: job.Status}
	if job.Status == exportDomain.StatusCompleted {
		resp.Completed = true
		resp.Result = job.Result
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			resp.Result = json.RawMessage(`{}`)
		}
	}
	return resp, nil
}

// publishJobCreated notifies the execution engine. The job is already durable, so a failed publish
// is logged and counted rather than turned into a client error.
func (s *ExportService) publishJobCreated(ctx context.Context, job *exportDomain.ExportJobRecord, logger *slog.Logger) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(exportDomain.JobCreatedEvent{
		JobID:           job.ID,
		RequestURI:      job.RequestURI,
		DestinationType: job.DestinationType,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to marshal job created event", "error", err)
		eventPublishFailures.WithLabelValues(exportDomain.NATSExportJobCreatedV1).Inc()
		return
	}
	if err := s.publisher.Publish(ctx, exportDomain.NATSExportJobCreatedV1, payload); err != nil {
		logger.ErrorContext(ctx, "Failed to publish job created event", "error", err)
		eventPublishFailures.WithLabelValues(exportDomain.NATSExportJobCreatedV1).Inc()
	}
}
