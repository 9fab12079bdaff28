// Package pending tracks client-initiated requests awaiting a response.
//
// Each request is keyed by its token. A request that sees no response is
// retransmitted with exponential backoff up to a bounded number of
// retries, then completed with ErrTimeout. The table is owned by the work
// loop and is not safe for concurrent use.
package pending

import (
	"errors"
	"sort"
	"time"

	"github.com/iotdm/iotdm-go/pkg/connection"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// Pending request errors.
var (
	ErrDuplicateToken = errors.New("token already pending")
	ErrTimeout        = errors.New("request timed out")
)

// Callback receives the response, or ErrTimeout.
type Callback func(resp *wire.Message, err error)

// Config holds retry policy.
type Config struct {
	// MaxRetries is the number of retransmissions after the first send.
	MaxRetries int

	// Backoff shapes the wait before each retransmission and before
	// giving up after the last one.
	Backoff connection.BackoffConfig
}

// DefaultConfig returns the CoAP-derived retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries: connection.MaxRetransmit,
		Backoff:    connection.DefaultBackoffConfig(),
	}
}

// Request is one in-flight request.
type Request struct {
	Message  *wire.Message
	Attempts int

	next     time.Time
	backoff  *connection.Backoff
	callback Callback
}

// Due returns when the request is next retransmitted or expires.
func (r *Request) Due() time.Time { return r.next }

// Table holds in-flight requests by token.
type Table struct {
	config   Config
	requests map[string]*Request
}

// NewTable creates an empty table.
func NewTable(config Config) *Table {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Table{
		config:   config,
		requests: make(map[string]*Request),
	}
}

// Add records a request that was just sent at now.
func (t *Table) Add(msg *wire.Message, now time.Time, cb Callback) error {
	key := string(msg.Token)
	if _, exists := t.requests[key]; exists {
		return ErrDuplicateToken
	}

	b := connection.NewBackoffWithConfig(t.config.Backoff)
	t.requests[key] = &Request{
		Message:  msg,
		Attempts: 1,
		next:     now.Add(b.Next()),
		backoff:  b,
		callback: cb,
	}
	return nil
}

// Resolve completes the request matching the response token.
// It returns false when no request has that token.
func (t *Table) Resolve(resp *wire.Message) bool {
	key := string(resp.Token)
	req, ok := t.requests[key]
	if !ok {
		return false
	}
	delete(t.requests, key)
	if req.callback != nil {
		req.callback(resp, nil)
	}
	return true
}

// Expire retransmits or times out every request due at now.
// resend returns false when the transport cannot take the frame yet;
// such a request is retried on the next call without using up a retry.
func (t *Table) Expire(now time.Time, resend func(*wire.Message) bool) {
	var due []*Request
	for _, req := range t.requests {
		if !now.Before(req.next) {
			due = append(due, req)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })

	var expired []*Request
	for _, req := range due {
		if req.Attempts > t.config.MaxRetries {
			delete(t.requests, string(req.Message.Token))
			expired = append(expired, req)
			continue
		}
		if !resend(req.Message) {
			continue
		}
		req.Attempts++
		req.next = now.Add(req.backoff.Next())
	}

	for _, req := range expired {
		if req.callback != nil {
			req.callback(nil, ErrTimeout)
		}
	}
}

// Cancel drops a request without invoking its callback.
func (t *Table) Cancel(token []byte) bool {
	key := string(token)
	if _, ok := t.requests[key]; !ok {
		return false
	}
	delete(t.requests, key)
	return true
}

// Clear drops every request without invoking callbacks.
func (t *Table) Clear() {
	t.requests = make(map[string]*Request)
}

// Has reports whether a request with the token is pending.
func (t *Table) Has(token []byte) bool {
	_, ok := t.requests[string(token)]
	return ok
}

// Len returns the number of pending requests.
func (t *Table) Len() int { return len(t.requests) }
