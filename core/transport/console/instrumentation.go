package console

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/milankumarIS/swaram-agent-worker/core/transport/console"

var logger = otelslog.NewLogger(scopeName)
