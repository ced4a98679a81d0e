package tracing

import (
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys set on guardrail and middleware spans.
const (
	AttrStage      = "guardrail.stage"
	AttrName       = "guardrail.name"
	AttrVersion    = "guardrail.version"
	AttrPriority   = "guardrail.priority"
	AttrTags       = "guardrail.tags"
	AttrTriggered  = "guardrail.triggered"
	AttrSeverity   = "guardrail.severity"
	AttrDurationMs = "guardrail.execution_time_ms"
	AttrMessage    = "guardrail.message"

	AttrRequestID = "mercator.request_id"
	AttrProvider  = "mercator.provider"
	AttrModel     = "mercator.model"
	AttrAttempt   = "mercator.attempt"
	AttrGate      = "mercator.gate"
	AttrBlocked   = "mercator.blocked"
	AttrPartial   = "mercator.partial"

	// MetadataPrefix namespaces verdict metadata keys.
	MetadataPrefix = "guardrail.metadata."
)

// MetadataAttributes flattens verdict metadata into span attributes under
// MetadataPrefix. Keys are emitted in sorted order. Scalar values keep their
// type; anything else is formatted with %v.
func MetadataAttributes(metadata map[string]any) []attribute.KeyValue {
	if len(metadata) == 0 {
		return nil
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, toAttribute(MetadataPrefix+k, metadata[k]))
	}
	return attrs
}

func toAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}
