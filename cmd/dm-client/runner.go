package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/iotdm/iotdm-go/pkg/client"
	"github.com/iotdm/iotdm-go/pkg/connection"
)

// runner owns a Channel: it drives DoWork, reconnects with backoff after
// a failed attempt or a lost session, and runs queued commands between
// passes. Nothing else touches the Channel while Run is active.
type runner struct {
	ch       *client.Channel
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	cmds    chan func(*client.Channel)
	stopped chan struct{}
	backoff *connection.Backoff

	connecting  bool
	reconnectAt time.Time
}

func newRunner(ch *client.Channel, logger *slog.Logger) *runner {
	return &runner{
		ch:       ch,
		logger:   logger,
		interval: client.DefaultPollInterval,
		now:      time.Now,
		cmds:     make(chan func(*client.Channel)),
		stopped:  make(chan struct{}),
		backoff:  connection.NewBackoff(),
	}
}

// Do runs fn on the runner goroutine and waits for it. It returns false
// when the runner has stopped.
func (r *runner) Do(ctx context.Context, fn func(*client.Channel)) bool {
	done := make(chan struct{})
	select {
	case r.cmds <- func(ch *client.Channel) {
		defer close(done)
		fn(ch)
	}:
	case <-r.stopped:
		return false
	case <-ctx.Done():
		return false
	}
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Run drives the Channel until ctx is cancelled. It closes the Channel
// before returning.
func (r *runner) Run(ctx context.Context) {
	defer close(r.stopped)
	defer r.ch.Close()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.connect()
	for {
		if !r.step() {
			r.logger.Error("channel is unusable, stopping")
			return
		}
		select {
		case <-ctx.Done():
			return
		case fn := <-r.cmds:
			fn(r.ch)
		case <-ticker.C:
		}
	}
}

func (r *runner) connect() {
	if err := r.ch.Connect(r.complete); err != nil {
		r.logger.Warn("connect refused", "error", err)
		r.schedule()
		return
	}
	r.connecting = true
}

// complete is the Connect completion. It runs inside DoWork.
func (r *runner) complete(err error) {
	r.connecting = false
	if err != nil {
		r.logger.Warn("connect failed", "error", err)
		r.schedule()
		return
	}
	r.backoff.Reset()
	r.logger.Info("registered", "endpoint", r.ch.Endpoint(), "location", r.ch.Location())
}

func (r *runner) schedule() {
	delay := r.backoff.Next()
	r.reconnectAt = r.now().Add(delay)
	r.logger.Info("reconnecting", "in", delay.Round(time.Millisecond))
}

// step runs one DoWork pass and starts a due reconnect.
func (r *runner) step() bool {
	if !r.ch.DoWork() {
		return false
	}
	if r.connecting || r.ch.State() == connection.StateConnected {
		return true
	}
	if r.reconnectAt.IsZero() {
		// Session lost after registration.
		r.schedule()
	}
	if !r.now().Before(r.reconnectAt) {
		r.reconnectAt = time.Time{}
		r.connect()
	}
	return true
}
