package rediskv

import "time"

// MetricsCollector interface for metrics collection
type MetricsCollector interface {
	// RecordCommandProcessed records a processed command with its duration
	RecordCommandProcessed(cmd string, duration time.Duration)

	// RecordError records an error event
	RecordError(errorType string)

	// RecordKeyExpired records a key removed by its expiration
	RecordKeyExpired()
}
