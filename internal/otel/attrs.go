package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic convention keys used when the detector calls out to an LLM.
const (
	GenAISystem            = attribute.Key("gen_ai.system")
	GenAIRequestModel      = attribute.Key("gen_ai.request.model")
	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")
)

// Redaction attribute keys shared across packages so dashboards see one schema.
const (
	RedactSessionID   = attribute.Key("redact.session_id")
	RedactSpanCount   = attribute.Key("redact.span_count")
	RedactEntityCount = attribute.Key("redact.entity_count")
	RedactContentType = attribute.Key("redact.content_type")
)
