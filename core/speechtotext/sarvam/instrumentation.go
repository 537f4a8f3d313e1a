package sarvam

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/milankumarIS/swaram-agent-worker/core/speechtotext/sarvam"

var logger = otelslog.NewLogger(scopeName)
