// Package observe tracks Observe registrations and decides when to notify.
//
// A registration binds a path to the token of the OBSERVE request that
// created it, together with a minimum and maximum notification period.
//
// # Notification Rules
//
// On every tick the current value at the path is compared against the
// snapshot sent in the last notification:
//   - changed, and at least pmin since the last notification: notify
//   - unchanged, and at least pmax since the last notification: keep-alive
//   - changed but within pmin: wait for a later tick
//
// Intermediate values are never queued. A value that changes and changes
// back within pmin produces no notification at all.
//
// # Flow Control
//
// A registration has at most one notification in flight. When the sender
// reports transport.ErrBusy the registration is skipped and retried on the
// next tick. Confirmable notifications stay in flight until Acknowledge is
// called with their token; CancelToken drops a registration whose peer
// never acknowledged or reset it.
//
// # Lifecycle
//
// Registrations do not survive the session. RemovePath drops every
// registration at or below a removed path; ClearAll is called on Close and
// on session loss.
package observe
