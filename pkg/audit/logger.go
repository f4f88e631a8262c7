package audit

import "context"

// Logger records audit events. Implementations must be safe for concurrent
// use. Recording failures are reported but callers treat them as advisory;
// an audit failure never rolls back the operation it describes.
type Logger interface {
	Record(ctx context.Context, event *Event) error
	Close() error
}

// NopLogger discards all events. Used when auditing is disabled and in
// tests.
type NopLogger struct{}

// NewNopLogger creates a logger that discards everything.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// Record discards the event.
func (*NopLogger) Record(ctx context.Context, event *Event) error { return nil }

// Close is a no-op.
func (*NopLogger) Close() error { return nil }
