package export

import (
	"fmt"

	"mercator-hq/guardrails/pkg/evidence"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// New returns the exporter for format. JSON output is indented.
func New(format string) (evidence.Exporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONExporter(true), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want %s or %s)", format, FormatJSON, FormatCSV)
	}
}
