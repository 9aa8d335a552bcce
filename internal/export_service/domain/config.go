package domain // export_service/domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ExportConfiguration is built once at startup and never mutated afterwards.
type ExportConfiguration struct {
	enabled               bool
	supportedDestinations map[string]struct{}
}

type exportConfigInput struct {
	SupportedDestinations []string `validate:"dive,required"`
}

// NewExportConfiguration validates and freezes the export settings.
// Destination identifiers are matched case-sensitively and may not be empty.
func NewExportConfiguration(enabled bool, supportedDestinations []string) (*ExportConfiguration, error) {
	in := exportConfigInput{SupportedDestinations: supportedDestinations}
	if err := validator.New().Struct(in); err != nil {
		return nil, fmt.Errorf("invalid export configuration: %w", err)
	}

	set := make(map[string]struct{}, len(supportedDestinations))
	for _, d := range supportedDestinations {
		set[d] = struct{}{}
	}
	return &ExportConfiguration{enabled: enabled, supportedDestinations: set}, nil
}

// Enabled reports whether bulk export is switched on.
func (c *ExportConfiguration) Enabled() bool {
	return c != nil && c.enabled
}

// SupportsDestination reports whether destinationType is on the allow-list.
func (c *ExportConfiguration) SupportsDestination(destinationType string) bool {
	if c == nil {
		return false
	}
	_, ok := c.supportedDestinations[destinationType]
	return ok
}

// SupportedDestinations returns a copy of the allow-list.
func (c *ExportConfiguration) SupportedDestinations() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.supportedDestinations))
	for d := range c.supportedDestinations {
		out = append(out, d)
	}
	return out
}
