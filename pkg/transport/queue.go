package transport

import (
	"context"
	"sync"
)

// DefaultQueueSize is the frame capacity of a link queue.
const DefaultQueueSize = 64

// Queue is a bounded frame queue shared between a link's network goroutine
// and the work loop. Closing it wakes all waiters; frames already queued
// can still be polled.
type Queue struct {
	frames chan []byte
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

// NewQueue creates a queue holding up to size frames.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		frames: make(chan []byte, size),
		done:   make(chan struct{}),
	}
}

// Offer queues frame without blocking.
func (q *Queue) Offer(frame []byte) error {
	select {
	case <-q.done:
		return q.Err()
	default:
	}
	select {
	case q.frames <- frame:
		return nil
	default:
		return ErrBusy
	}
}

// Put queues frame, waiting for space.
func (q *Queue) Put(ctx context.Context, frame []byte) error {
	select {
	case <-q.done:
		return q.Err()
	default:
	}
	select {
	case q.frames <- frame:
		return nil
	case <-q.done:
		return q.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll returns a queued frame without blocking. Once the queue is closed
// and drained it returns the close error.
func (q *Queue) Poll() ([]byte, bool, error) {
	select {
	case frame := <-q.frames:
		return frame, true, nil
	default:
	}
	select {
	case <-q.done:
		return nil, false, q.Err()
	default:
		return nil, false, nil
	}
}

// Take waits for a frame. It returns the close error once the queue is
// closed, even if frames remain.
func (q *Queue) Take(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-q.frames:
		return frame, nil
	case <-q.done:
		return nil, q.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int { return len(q.frames) }

// Close closes the queue with reason. A nil reason means ErrClosed.
// Only the first call has an effect.
func (q *Queue) Close(reason error) {
	q.once.Do(func() {
		if reason == nil {
			reason = ErrClosed
		}
		q.mu.Lock()
		q.err = reason
		q.mu.Unlock()
		close(q.done)
	})
}

// Done is closed when the queue closes.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Err returns the close reason, or nil while open.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}
