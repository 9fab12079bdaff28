package transport

import (
	"context"
	"sync"

	"github.com/iotdm/iotdm-go/pkg/wire"
)

// Pipe is an in-memory Transport. The owner plays the server through
// Deliver and Receive; every Dial replaces the current link.
type Pipe struct {
	mu      sync.Mutex
	size    int
	dialErr error
	busy    bool
	dials   int
	current *pipeLink
}

// NewPipe creates a pipe with DefaultQueueSize frames per direction.
func NewPipe() *Pipe {
	return &Pipe{size: DefaultQueueSize}
}

// Dial returns a fresh link, or the error set by FailDial.
func (p *Pipe) Dial(ctx context.Context) (Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.dials++
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	if p.current != nil {
		p.current.Close()
	}
	p.current = &pipeLink{
		pipe: p,
		in:   NewQueue(p.size),
		out:  NewQueue(p.size),
	}
	return p.current, nil
}

// FailDial makes subsequent dials fail with err. A nil err clears it.
func (p *Pipe) FailDial(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialErr = err
}

// SetBusy makes Send report ErrBusy while busy is true.
func (p *Pipe) SetBusy(busy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = busy
}

// Dials returns the number of Dial calls.
func (p *Pipe) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// Connected reports whether a link is open.
func (p *Pipe) Connected() bool {
	link := p.link()
	if link == nil {
		return false
	}
	select {
	case <-link.in.Done():
		return false
	default:
		return true
	}
}

// Drop ends the current session from the server side with reason.
func (p *Pipe) Drop(reason error) {
	if link := p.link(); link != nil {
		link.in.Close(reason)
		link.out.Close(reason)
	}
}

// Deliver hands a frame to the client.
func (p *Pipe) Deliver(frame []byte) error {
	link := p.link()
	if link == nil {
		return ErrClosed
	}
	return link.in.Offer(frame)
}

// DeliverMessage encodes and delivers m.
func (p *Pipe) DeliverMessage(m *wire.Message) error {
	frame, err := wire.Encode(m)
	if err != nil {
		return err
	}
	return p.Deliver(frame)
}

// Receive returns the next frame sent by the client.
func (p *Pipe) Receive() ([]byte, bool) {
	link := p.link()
	if link == nil {
		return nil, false
	}
	frame, ok, _ := link.out.Poll()
	return frame, ok
}

// ReceiveMessage returns the next decoded message sent by the client.
func (p *Pipe) ReceiveMessage() (*wire.Message, bool) {
	frame, ok := p.Receive()
	if !ok {
		return nil, false
	}
	m, err := wire.Decode(frame)
	if err != nil {
		return nil, false
	}
	return m, true
}

func (p *Pipe) link() *pipeLink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Pipe) isBusy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

type pipeLink struct {
	pipe *Pipe
	in   *Queue
	out  *Queue
}

func (l *pipeLink) Poll() ([]byte, bool, error) { return l.in.Poll() }

func (l *pipeLink) Send(frame []byte) error {
	if l.pipe.isBusy() {
		select {
		case <-l.out.Done():
			return l.out.Err()
		default:
			return ErrBusy
		}
	}
	return l.out.Offer(frame)
}

func (l *pipeLink) RemoteAddr() string { return "pipe" }

func (l *pipeLink) Close() error {
	l.in.Close(ErrClosed)
	l.out.Close(ErrClosed)
	return nil
}

var (
	_ Transport = (*Pipe)(nil)
	_ Link      = (*pipeLink)(nil)
)
