package resource

import (
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("@agentuity/go-resource/resource")
