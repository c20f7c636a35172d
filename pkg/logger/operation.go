package logger

import (
	"time"
)

// OperationLogger provides structured logging for a long-running operation
// with start/step/outcome timing. Reconciliation runs use one per session.
type OperationLogger struct {
	logger    Logger
	operation string
	fields    Fields
	startTime time.Time
}

// NewOperationLogger creates an operation logger and logs the start event.
// A nil logger falls back to the global instance.
func NewOperationLogger(operation string, logger Logger) *OperationLogger {
	if logger == nil {
		logger = GetGlobalLogger()
	}

	ol := &OperationLogger{
		logger:    logger.WithComponent("operation"),
		operation: operation,
		fields:    make(Fields),
		startTime: time.Now(),
	}

	ol.logger.WithField("operation", operation).Info("Starting operation")
	return ol
}

// WithField adds a field carried on every subsequent event
func (ol *OperationLogger) WithField(key string, value interface{}) *OperationLogger {
	ol.fields[key] = value
	return ol
}

// Step logs a named step within the operation
func (ol *OperationLogger) Step(step string) {
	ol.event(Fields{"step": step}).Info("Operation step")
}

// Success completes the operation and logs elapsed time
func (ol *OperationLogger) Success(message string) {
	ol.event(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "success",
	}).Info(message)
}

// Error completes the operation with an error and logs elapsed time
func (ol *OperationLogger) Error(err error, message string) {
	ol.event(Fields{
		"duration": time.Since(ol.startTime).String(),
		"status":   "error",
	}).WithError(err).Error(message)
}

func (ol *OperationLogger) event(extra Fields) Logger {
	fields := Fields{"operation": ol.operation}
	for k, v := range ol.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return ol.logger.WithFields(fields)
}
