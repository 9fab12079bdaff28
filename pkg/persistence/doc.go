// Package persistence keeps client state that must survive a restart.
//
// The state file holds the values of writable resources and the last
// registration location. It is plain JSON so operators can inspect and
// edit it.
package persistence
