package bootstrap

import (
	"github.com/pengKiina/trainwatch/internal/metrics"
	loggerpkg "github.com/pengKiina/trainwatch/logger"
	"github.com/pengKiina/trainwatch/util"
)

// InitObservability wires metrics and the optional pprof server.
func InitObservability(logr loggerpkg.Logger) {
	metrics.Init()
	util.MaybeStartPprof(logr)
}
