// Package wire defines the message kinds exchanged between the client
// and a device management server.
//
// Messages model the LWM2M interfaces carried over CoAP: the server
// issues requests (Read, Write, Execute, Observe, Cancel Observe,
// Discover), the client answers each with exactly one response and pushes
// Notify messages for active observations. Registration, update and
// deregistration travel in the other direction, from client to server.
//
// # Correlation
//
// Every request carries a token. The response and every notification for
// an observation reuse the token of the request that caused them.
//
// # Frames
//
// A message is serialized as a CBOR map with integer keys. Transports
// move these frames as opaque byte slices; the CoAP transport converts
// them to and from CoAP messages, with response codes and content formats
// taken from go-coap.
package wire
