package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/iotdm/iotdm-go/pkg/wire"
)

func TestNewMessageEvent(t *testing.T) {
	req, err := wire.NewRequest(wire.OpRead, "/3/0/9")
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	ev := NewMessageEvent(req)
	if ev.Operation == nil || *ev.Operation != wire.OpRead {
		t.Errorf("Operation = %v, want READ", ev.Operation)
	}
	if ev.Path != "/3/0/9" {
		t.Errorf("Path = %q", ev.Path)
	}
	if ev.Code != nil {
		t.Error("request event should carry no code")
	}

	resp := wire.NewResponse(req, codes.Content)
	resp.Payload = []byte("87")
	ev = NewMessageEvent(resp)
	if ev.Code == nil || *ev.Code != codes.Content {
		t.Errorf("Code = %v, want 2.05", ev.Code)
	}
	if ev.PayloadSize != 2 {
		t.Errorf("PayloadSize = %d, want 2", ev.PayloadSize)
	}
	if ev.Operation != nil {
		t.Error("response event should carry no operation")
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	op := wire.OpWrite
	event := Event{
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Endpoint:     "dev-1",
		Message: &MessageEvent{
			Kind:      wire.KindRequest,
			Token:     []byte{1, 2, 3},
			Operation: &op,
			Path:      "/3/0/13",
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if !got.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp = %v, want %v (nanosecond precision)", got.Timestamp, event.Timestamp)
	}
	if got.Message == nil || got.Message.Path != "/3/0/13" || *got.Message.Operation != wire.OpWrite {
		t.Errorf("Message = %+v", got.Message)
	}
	if !bytes.Equal(got.Message.Token, event.Message.Token) {
		t.Errorf("Token = %x", got.Message.Token)
	}
}

func TestFileLoggerAndFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.dmlog")
	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	base := time.Unix(1700000000, 0)
	read, write := wire.OpRead, wire.OpWrite
	logger.Log(Event{Timestamp: base, ConnectionID: "a", Layer: LayerWire, Message: &MessageEvent{Operation: &read, Path: "/3/0/9", Token: []byte{0x3f, 0x2a}}})
	logger.Log(Event{Timestamp: base.Add(time.Second), ConnectionID: "a", Layer: LayerWire, Message: &MessageEvent{Operation: &write, Path: "/1/0/1"}})
	logger.Log(Event{Timestamp: base.Add(2 * time.Second), ConnectionID: "b", Layer: LayerSession, Category: CategoryState,
		StateChange: &StateChangeEvent{Entity: StateEntityConnection, NewState: "CONNECTED"}})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	logger.Log(Event{ConnectionID: "ignored"})
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	count := func(f Filter) int {
		t.Helper()
		r, err := NewFilteredReader(path, f)
		if err != nil {
			t.Fatalf("NewFilteredReader: %v", err)
		}
		defer r.Close()
		n := 0
		for {
			_, err := r.Next()
			if errors.Is(err, io.EOF) {
				return n
			}
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			n++
		}
	}

	if n := count(Filter{}); n != 3 {
		t.Errorf("all events = %d, want 3", n)
	}
	if n := count(Filter{ConnectionID: "a"}); n != 2 {
		t.Errorf("conn a = %d, want 2", n)
	}
	if n := count(Filter{Path: "/3/"}); n != 1 {
		t.Errorf("path /3/ = %d, want 1", n)
	}
	session := LayerSession
	if n := count(Filter{Layer: &session}); n != 1 {
		t.Errorf("session layer = %d, want 1", n)
	}
	end := base.Add(time.Second)
	if n := count(Filter{TimeEnd: &end}); n != 1 {
		t.Errorf("before %v = %d, want 1", end, n)
	}
	if n := count(Filter{Operation: &write}); n != 1 {
		t.Errorf("WRITE = %d, want 1", n)
	}
	if n := count(Filter{Token: []byte{0x3f, 0x2a}}); n != 1 {
		t.Errorf("token 3f2a = %d, want 1", n)
	}
}

func TestStreamReader(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for _, id := range []string{"a", "b"} {
		if err := enc.Encode(Event{ConnectionID: id}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	r := NewStreamReader(io.NopCloser(&buf), Filter{ConnectionID: "b"})
	defer r.Close()
	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.ConnectionID != "b" {
		t.Errorf("ConnectionID = %q, want b", ev.ConnectionID)
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next at end = %v, want EOF", err)
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	code := codes.NotFound
	adapter.Log(Event{
		ConnectionID: "conn-7",
		Direction:    DirectionOut,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		Endpoint:     "dev-7",
		Message:      &MessageEvent{Kind: wire.KindResponse, Token: []byte{0xab}, Code: &code},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output: %v", err)
	}
	for key, want := range map[string]string{
		"conn_id":   "conn-7",
		"direction": "OUT",
		"kind":      "RESPONSE",
		"endpoint":  "dev-7",
		"code":      codes.NotFound.String(),
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}

type recordingLogger struct{ events []Event }

func (r *recordingLogger) Log(e Event) { r.events = append(r.events, e) }

func TestMultiLogger(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	m := NewMultiLogger(a, nil, b, NoopLogger{})
	m.Log(Event{ConnectionID: "x"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out = %d/%d, want 1/1", len(a.events), len(b.events))
	}
}
