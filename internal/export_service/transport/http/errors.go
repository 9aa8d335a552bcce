package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	exportDomain "github.com/aradsms/bulk_export/internal/export_service/domain"
)

// OperationOutcome is the FHIR error body returned for every failed export call.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// statusFor maps an error kind to its HTTP status and FHIR issue code.
func statusFor(kind exportDomain.ErrorKind) (int, string) {
	switch kind {
	case exportDomain.KindRequestNotValid:
		return http.StatusBadRequest, "invalid"
	case exportDomain.KindOperationNotImplemented:
		return http.StatusNotImplemented, "not-supported"
	case exportDomain.KindJobNotFound:
		return http.StatusNotFound, "not-found"
	case exportDomain.KindServiceUnavailable:
		return http.StatusServiceUnavailable, "processing"
	default: // job_not_created and anything unclassified
		return http.StatusInternalServerError, "processing"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	message := "An internal error occurred."
	var exportErr *exportDomain.ExportError
	if errors.As(err, &exportErr) {
		message = exportErr.Message
	}
	status, code := statusFor(exportDomain.KindOf(err))

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Export request failed", "status", status, "error", err)
	} else {
		logger.InfoContext(r.Context(), "Export request rejected", "status", status, "error", err)
	}

	w.Header().Set("Content-Type", exportDomain.FHIRJSONContentType)
	w.WriteHeader(status)
	outcome := OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue:        []OperationOutcomeIssue{{Severity: "error", Code: code, Diagnostics: message}},
	}
	if encErr := json.NewEncoder(w).Encode(outcome); encErr != nil {
		logger.ErrorContext(r.Context(), "Failed to write error response", "error", encErr)
	}
}
