package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/iotdm/iotdm-go/pkg/log"
)

// Stream dials a peer that speaks length-prefixed wire frames over TCP,
// optionally wrapped in TLS.
type Stream struct {
	// Addr is the peer host:port.
	Addr string

	// TLSConfig enables TLS when non-nil.
	TLSConfig *tls.Config

	// MaxFrameSize bounds frames in both directions. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32

	// QueueSize bounds buffered frames per direction.
	QueueSize int

	// KeepAlive checks an idle session for liveness. The zero value uses
	// the defaults.
	KeepAlive KeepAlive

	// Logger captures raw frames when set.
	Logger       log.Logger
	ConnectionID string
}

// Dial connects and starts the link's reader and writer goroutines.
func (s *Stream) Dial(ctx context.Context) (Link, error) {
	var (
		conn net.Conn
		err  error
	)
	nd := s.KeepAlive.dialer()
	if s.TLSConfig != nil {
		d := &tls.Dialer{NetDialer: nd, Config: s.TLSConfig}
		conn, err = d.DialContext(ctx, "tcp", s.Addr)
	} else {
		conn, err = nd.DialContext(ctx, "tcp", s.Addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.Addr, err)
	}

	framer := NewFramerWithMaxSize(conn, s.MaxFrameSize)
	if s.Logger != nil {
		framer.SetLogger(s.Logger, s.ConnectionID)
	}

	readCtx, cancelRead := context.WithCancel(context.Background())
	writeCtx, cancelWrite := context.WithCancel(context.Background())
	l := &streamLink{
		conn:        conn,
		framer:      framer,
		in:          NewQueue(s.QueueSize),
		out:         NewQueue(s.QueueSize),
		cancelRead:  cancelRead,
		cancelWrite: cancelWrite,
		writerDone:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.readLoop(readCtx)
	go l.writeLoop(writeCtx)
	return l, nil
}

type streamLink struct {
	conn   net.Conn
	framer *Framer
	in     *Queue
	out    *Queue

	cancelRead  context.CancelFunc
	cancelWrite context.CancelFunc
	writerDone  chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func (l *streamLink) readLoop(ctx context.Context) {
	defer l.wg.Done()
	for {
		frame, err := l.framer.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrClosed
			}
			l.fail(err)
			return
		}
		if err := l.in.Put(ctx, frame); err != nil {
			return
		}
	}
}

func (l *streamLink) writeLoop(ctx context.Context) {
	defer close(l.writerDone)
	for {
		frame, err := l.out.Take(ctx)
		if err != nil {
			return
		}
		if err := l.framer.WriteFrame(frame); err != nil {
			l.fail(err)
			return
		}
	}
}

// fail ends the session from the network side.
func (l *streamLink) fail(reason error) {
	l.in.Close(fmt.Errorf("%w: %v", ErrClosed, reason))
	l.out.Close(ErrClosed)
	l.cancelRead()
	l.cancelWrite()
	_ = l.conn.Close()
}

func (l *streamLink) Poll() ([]byte, bool, error) { return l.in.Poll() }

func (l *streamLink) Send(frame []byte) error { return l.out.Offer(frame) }

func (l *streamLink) RemoteAddr() string { return l.conn.RemoteAddr().String() }

// Close flushes queued frames, then closes the connection.
func (l *streamLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		// Stop the writer first so the flush below owns the framer.
		l.cancelWrite()
		<-l.writerDone
		for l.out.Len() > 0 {
			frame, ok, _ := l.out.Poll()
			if !ok {
				break
			}
			if werr := l.framer.WriteFrame(frame); werr != nil {
				break
			}
		}
		l.in.Close(ErrClosed)
		l.out.Close(ErrClosed)
		l.cancelRead()
		err = l.conn.Close()
		l.wg.Wait()
	})
	return err
}

var (
	_ Transport = (*Stream)(nil)
	_ Link      = (*streamLink)(nil)
)
