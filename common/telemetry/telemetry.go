package telemetry

import (
	"time"

	"github.com/pixelvault/vault/common/logger"
)

// Telemetry records operation timings and events through the logger
type Telemetry struct {
	log *logger.Logger
}

// New creates telemetry components
func New(log *logger.Logger) *Telemetry {
	return &Telemetry{log: log}
}

// RecordDuration records operation duration
func (t *Telemetry) RecordDuration(operation string, start time.Time) {
	duration := time.Since(start)
	t.log.Debug("operation completed",
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	)
}

// RecordEvent records a telemetry event
func (t *Telemetry) RecordEvent(event string, attrs map[string]any) {
	t.log.Info("telemetry_event",
		"event", event,
		"attrs", attrs,
	)
}
