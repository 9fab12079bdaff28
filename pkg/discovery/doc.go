// Package discovery locates device management servers with mDNS/DNS-SD.
//
// Servers advertise one service per transport:
//
//   - _lwm2m._tcp for CoAP over TCP
//   - _lwm2ms._udp for CoAP over DTLS
//
// TXT records:
//   - v: protocol version, e.g. "1.1" (required)
//   - b: supported bindings, e.g. "T" (optional)
//   - auth: "jwt" when the server expects a token before registration (optional)
//
// A client browses for the service matching its transport and connects to
// the first server that answers.
package discovery
