// Package coap carries wire frames over CoAP using plgd-dev/go-coap.
//
// The server drives the device management interface with CoAP requests:
//
//	GET  Observe=0          OBSERVE
//	GET  Observe=1          CANCEL-OBSERVE
//	GET  Accept=link-format DISCOVER
//	GET                     READ
//	PUT                     WRITE (replace)
//	POST to an instance     WRITE (partial update)
//	POST to a resource      EXECUTE
//
// Each request becomes a wire request frame returned by Poll; the CoAP
// handler waits until the work loop Sends the matching response frame.
// Registration requests sent by the client (REGISTER, UPDATE, DEREGISTER,
// AUTH) are issued as CoAP requests and their responses come back through
// Poll. Notifications are written with the token of the OBSERVE request.
//
// Both variants run over a reliable session (TCP, or DTLS with CoAP
// message-layer retransmission), so a confirmable notification is
// acknowledged once written.
package coap
