package domain // export_service/domain

const (
	OperationExport = "export"

	// FHIRJSONContentType is the only Accept value an export request may carry.
	FHIRJSONContentType = "application/fhir+json"
	// ExportResultContentType marks a completed job's body as an export manifest.
	ExportResultContentType = "application/json"
	RespondAsyncPreference  = "respond-async"

	HeaderAccept          = "Accept"
	HeaderPrefer          = "Prefer"
	HeaderContentLocation = "Content-Location"

	QueryDestinationType             = "_destinationType"
	QueryDestinationConnectionString = "_destinationConnectionSettings"

	// Type-scoped export is only admitted for Patient, instance-scoped only for Group.
	ResourceTypePatient = "Patient"
	ResourceTypeGroup   = "Group"
)
