package sarvam

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/milankumarIS/swaram-agent-worker/core/texttospeech/sarvam"

var logger = otelslog.NewLogger(scopeName)
