package gemini

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/milankumarIS/swaram-agent-worker/core/llms/gemini"

var tracer = otel.Tracer(scopeName)
