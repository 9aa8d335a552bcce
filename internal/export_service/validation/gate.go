package validation

import (
	"net/url"

	"github.com/aradsms/bulk_export/internal/export_service/domain"
)

// AdmittedRequest is only ever produced by RequestGate.Admit.
type AdmittedRequest struct {
	RequestURI                  *url.URL
	DestinationType             string
	DestinationConnectionString string
}

// ToCreateRequest converts the admitted request into the service command.
func (a AdmittedRequest) ToCreateRequest() *domain.CreateExportRequest {
	return &domain.CreateExportRequest{
		RequestURI:                  a.RequestURI,
		DestinationType:             a.DestinationType,
		DestinationConnectionString: a.DestinationConnectionString,
	}
}

// RequestGate rejects inadmissible export requests. It holds only the immutable configuration,
// so one gate can serve all requests concurrently.
type RequestGate struct {
	cfg *domain.ExportConfiguration
}

func NewRequestGate(cfg *domain.ExportConfiguration) *RequestGate {
	return &RequestGate{cfg: cfg}
}

// Admit runs headers, destination parameters, destination support and the feature toggle, in that order.
// The first failure is returned as a request_not_valid *domain.ExportError.
func (g *RequestGate) Admit(meta RequestMeta) (AdmittedRequest, error) {
	if meta.RequestURI == nil {
		return AdmittedRequest{}, domain.NewRequestNotValidError("The request URI is missing.")
	}
	if err := ValidateHeaders(meta.Header); err != nil {
		return AdmittedRequest{}, err
	}
	destinationType, connectionString, err := ValidateDestination(meta.Query, g.cfg)
	if err != nil {
		return AdmittedRequest{}, err
	}
	if !g.cfg.Enabled() {
		return AdmittedRequest{}, domain.NewExportDisabledError()
	}

	return AdmittedRequest{
		RequestURI:                  meta.RequestURI,
		DestinationType:             destinationType,
		DestinationConnectionString: connectionString,
	}, nil
}

// AdmitResourceType applies the type-scoped rule: only Patient may be exported by type.
func AdmitResourceType(resourceType string) error {
	if resourceType != domain.ResourceTypePatient {
		return unsupportedResourceType(resourceType)
	}
	return nil
}

// AdmitResourceInstance applies the instance-scoped rule: only a Group with a non-empty id.
func AdmitResourceInstance(resourceType, id string) error {
	if resourceType != domain.ResourceTypeGroup || id == "" {
		return unsupportedResourceType(resourceType)
	}
	return nil
}

func unsupportedResourceType(resourceType string) error {
	return domain.NewRequestNotValidError("The resource type %q is not supported for this operation.", resourceType)
}
