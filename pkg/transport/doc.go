// Package transport carries encoded wire frames between a client and a
// device management server.
//
// A Transport dials a Link. A Link is non-blocking on both sides: Poll
// returns frames already buffered by the link's own goroutines, and Send
// hands a frame to the link or reports ErrBusy when its outbound queue is
// full. The client's work loop never waits on network I/O.
//
// # Variants
//
//	KindCoAPTCP   CoAP over TCP (RFC 8323), package transport/coap
//	KindCoAPDTLS  CoAP over DTLS with a pre-shared key, package transport/coap
//	KindStream    length-prefixed frames over TCP or TLS (Stream)
//	KindMemory    in-process pipe for tests and embedding (NewPipe)
//
// # Stream Framing
//
//	┌────────────────────────────────┐
//	│      CBOR wire messages        │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (4B)   │
//	├────────────────────────────────┤
//	│       TLS (optional)           │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
package transport
