// Package log provides structured protocol logging for device management
// sessions.
//
// It is separate from operational logging (slog). Protocol capture records
// every frame, decoded message, state transition and error of a session
// as a machine-readable event trace.
//
// # Basic Usage
//
//	// Development: protocol events on the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Field devices: append to a CBOR capture file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/iotdm/client.dmlog")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
// Events are captured at three layers:
//   - Transport: raw frame bytes (FrameEvent)
//   - Wire: decoded requests, responses and notifications (MessageEvent)
//   - Session: connection and registration state (StateChangeEvent)
//
// Errors at any layer carry an ErrorEventData.
//
// # File Format
//
// Capture files are a concatenation of CBOR-encoded events with integer
// keys. Reader streams them back with optional filtering.
package log
