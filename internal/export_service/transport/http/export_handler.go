package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware" // For GetReqID

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
	"github.com/aradsms/bulk_export/internal/export_service/validation"
)

const statusPathPrefix = "/_operations/export/"

// ExportAppService is the subset of app.ExportService the handler dispatches to.
type ExportAppService interface {
	CreateExport(ctx context.Context, req *exportDomain.CreateExportRequest) (*exportDomain.CreateExportResponse, error)
	CreateScopedExport(ctx context.Context) error
	GetExportStatus(ctx context.Context, requestURI string, id string) (*exportDomain.GetExportStatusResponse, error)
}

type ExportHandler struct {
	service ExportAppService
	gate    *validation.RequestGate
	baseURL string // empty: derived from each request
	logger  *slog.Logger
}

// NewExportHandler builds the handler. With an empty baseURL, Content-Location is built from the
// client-supplied Host header, so deployments behind a proxy should set EXPORT_BASE_URL.
func NewExportHandler(service ExportAppService, gate *validation.RequestGate, baseURL string, logger *slog.Logger) *ExportHandler {
	h := &ExportHandler{
		service: service,
		gate:    gate,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("component", "export_handler"),
	}
	if h.baseURL == "" {
		h.logger.Warn("EXPORT_BASE_URL not set, Content-Location will echo the request Host header")
	}
	return h
}

// RegisterRoutes mounts the kick-off and status routes on r.
func (h *ExportHandler) RegisterRoutes(r chi.Router) {
	r.Get("/$export", h.Export)
	r.Get("/{type}/$export", h.ExportResourceType)
	r.Get("/{type}/{id}/$export", h.ExportResourceInstance)
	r.Get(statusPathPrefix+"{id}", h.GetExportStatus)
}

// Export starts a system-level export and answers 202 with the status location.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.requestLogger(r)

	admitted, err := h.gate.Admit(validation.MetaFromRequest(r))
	if err != nil {
		h.reject(w, r, logger, err)
		return
	}

	resp, err := h.service.CreateExport(ctx, admitted.ToCreateRequest())
	if err != nil {
		writeError(w, r, logger, err)
		return
	}

	location := h.statusURL(r, resp.ID)
	logger.InfoContext(ctx, "Export job accepted", "job_id", resp.ID, "destination_type", admitted.DestinationType)
	w.Header().Set(exportDomain.HeaderContentLocation, location)
	w.WriteHeader(http.StatusAccepted)
}

func (h *ExportHandler) ExportResourceType(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "type")
	h.scopedExport(w, r, func() error { return validation.AdmitResourceType(resourceType) })
}

func (h *ExportHandler) ExportResourceInstance(w http.ResponseWriter, r *http.Request) {
	resourceType, id := chi.URLParam(r, "type"), chi.URLParam(r, "id")
	h.scopedExport(w, r, func() error { return validation.AdmitResourceInstance(resourceType, id) })
}

func (h *ExportHandler) scopedExport(w http.ResponseWriter, r *http.Request, admitScope func() error) {
	logger := h.requestLogger(r)
	if _, err := h.gate.Admit(validation.MetaFromRequest(r)); err != nil {
		h.reject(w, r, logger, err)
		return
	}
	if err := admitScope(); err != nil {
		h.reject(w, r, logger, err)
		return
	}
	writeError(w, r, logger, h.service.CreateScopedExport(r.Context()))
}

// GetExportStatus answers 202 while the job has not completed and 200 with the manifest once it has.
func (h *ExportHandler) GetExportStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	logger := h.requestLogger(r).With("job_id", id)

	resp, err := h.service.GetExportStatus(ctx, r.URL.String(), id)
	if err != nil {
		writeError(w, r, logger, err)
		return
	}
	if !resp.Completed {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", exportDomain.ExportResultContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(resp.Result); err != nil {
		logger.ErrorContext(ctx, "Failed to write export result", "error", err)
	}
}

func (h *ExportHandler) reject(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	gateRejections.WithLabelValues(routePattern(r)).Inc()
	writeError(w, r, logger, err)
}

func (h *ExportHandler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With("request_id", chi_middleware.GetReqID(r.Context()), "path", r.URL.Path)
}

func (h *ExportHandler) statusURL(r *http.Request, id string) string {
	base := h.baseURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return base + statusPathPrefix + id
}
