// Package connection provides the session lifecycle of a client.
//
// This package handles:
//   - The Closed/Connecting/Connected/Failed state machine
//   - Exactly-once delivery of the connect completion
//   - The connect timeout
//   - Exponential backoff for request retransmission and reconnection
//
// # State Machine
//
//	Closed ──Begin──> Connecting ──Establish──> Connected
//	                      │                         │
//	                 Fail/timeout                  Lost
//	                      v                         v
//	                    Failed <────────────────────┘
//	                      │
//	                    Begin (retry)
//
// Close moves any state to Closed permanently. A completion that has not
// fired by then is discarded.
//
// # Completions
//
// The machine never invokes completions itself. Transitions that end a
// connect attempt hand back a function that fires the completion; the
// caller runs it after it has finished its own bookkeeping, which keeps
// completions out of any lock and out of Begin.
//
// # Backoff
//
// Retransmissions and reconnects use exponential backoff. One random
// factor is drawn per schedule and applied to every step:
//
//	scale = 1 + random(0, jitter)
//	delay(n) = min(initial * multiplier^n, max) * scale
package connection
