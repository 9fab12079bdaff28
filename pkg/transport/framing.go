package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/iotdm/iotdm-go/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize bounds a frame payload (64 KB).
	DefaultMaxFrameSize = 65536

	// MaxLogFrameDataSize bounds the frame bytes copied into log events.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	ErrFrameTooLarge  = errors.New("frame too large")
	ErrFrameEmpty     = errors.New("frame is empty")
	ErrFrameTruncated = errors.New("frame truncated")
)

// Framer reads and writes length-prefixed frames on a byte stream.
// WriteFrame is safe for concurrent use; ReadFrame is not.
type Framer struct {
	r       io.Reader
	w       io.Writer
	maxSize uint32
	prefix  [LengthPrefixSize]byte

	wmu sync.Mutex

	logger log.Logger
	connID string
}

// NewFramer creates a framer with DefaultMaxFrameSize.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxFrameSize)
}

// NewFramerWithMaxSize creates a framer with a custom frame limit.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize uint32) *Framer {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Framer{r: rw, w: rw, maxSize: maxSize}
}

// SetLogger captures every frame as a transport-layer event.
// Pass nil to disable capture.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.logger = logger
	f.connID = connID
}

// WriteFrame writes one frame.
func (f *Framer) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if uint32(len(data)) > f.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), f.maxSize)
	}

	buf := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[LengthPrefixSize:], data)

	f.wmu.Lock()
	_, err := f.w.Write(buf)
	f.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	f.capture(data, log.DirectionOut)
	return nil
}

// ReadFrame reads one frame and returns its payload. A clean end of
// stream between frames returns io.EOF.
func (f *Framer) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(f.r, f.prefix[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, ErrFrameTruncated
		default:
			return nil, fmt.Errorf("read length prefix: %w", err)
		}
	}

	length := binary.BigEndian.Uint32(f.prefix[:])
	if length == 0 {
		return nil, ErrFrameEmpty
	}
	if length > f.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, f.maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(f.r, payload); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("read frame: %w", err)
	}

	f.capture(payload, log.DirectionIn)
	return payload, nil
}

func (f *Framer) capture(data []byte, dir log.Direction) {
	if f.logger == nil {
		return
	}
	f.logger.Log(FrameEvent(f.connID, dir, data, LengthPrefixSize+len(data)))
}

// FrameEvent builds a transport-layer log event for a frame of size bytes
// whose payload is data.
func FrameEvent(connID string, dir log.Direction, data []byte, size int) log.Event {
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		data = data[:MaxLogFrameDataSize]
		truncated = true
	}
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      size,
			Data:      data,
			Truncated: truncated,
		},
	}
}
