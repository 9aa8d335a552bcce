// Package validation decides whether an export request is admissible before any handler runs.
// Nothing in this package performs I/O.
package validation

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aradsms/bulk_export/internal/export_service/domain"
)

// RequestMeta is the already-parsed request metadata the gate inspects.
type RequestMeta struct {
	RequestURI *url.URL
	Header     http.Header
	Query      url.Values
}

// MetaFromRequest extracts the gate's inputs from r.
func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		RequestURI: r.URL,
		Header:     r.Header,
		Query:      r.URL.Query(),
	}
}

// ValidateHeaders checks Accept then Prefer. Each must be present exactly once with the canonical value.
func ValidateHeaders(h http.Header) error {
	accept := h.Values(domain.HeaderAccept)
	if len(accept) != 1 || accept[0] != domain.FHIRJSONContentType {
		return domain.NewRequestNotValidError("The %s header is required and must be %q.", domain.HeaderAccept, domain.FHIRJSONContentType)
	}

	prefer := h.Values(domain.HeaderPrefer)
	if len(prefer) != 1 || prefer[0] != domain.RespondAsyncPreference {
		return domain.NewRequestNotValidError("The %s header is required and must be %q.", domain.HeaderPrefer, domain.RespondAsyncPreference)
	}
	return nil
}

// ValidateDestination checks that both destination parameters are present and the type is supported.
func ValidateDestination(q url.Values, cfg *domain.ExportConfiguration) (destinationType, connectionString string, err error) {
	destinationType = q.Get(domain.QueryDestinationType)
	connectionString = q.Get(domain.QueryDestinationConnectionString)

	if strings.TrimSpace(destinationType) == "" || strings.TrimSpace(connectionString) == "" {
		return "", "", domain.NewRequestNotValidError("The %s and %s query parameters are required.",
			domain.QueryDestinationType, domain.QueryDestinationConnectionString)
	}
	if !cfg.SupportsDestination(destinationType) {
		return "", "", domain.NewRequestNotValidError("The destination type %q is not supported.", destinationType)
	}
	return destinationType, connectionString, nil
}
