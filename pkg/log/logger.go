package log

// Logger receives protocol log events.
// A nil Logger disables capture; NoopLogger is the explicit equivalent.
type Logger interface {
	// Log records one event. Implementations must be safe for concurrent
	// use and must not block the caller for long.
	Log(event Event)
}

// NoopLogger discards all events. Its zero value is ready to use.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}
