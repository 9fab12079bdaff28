package iotdm_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/iotdm/iotdm-go/pkg/cert"
	"github.com/iotdm/iotdm-go/pkg/client"
	"github.com/iotdm/iotdm-go/pkg/content"
	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/transport"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// dmServer is a minimal management server on the stream transport. It
// accepts one registration, reads the battery level and waits for the
// deregistration.
type dmServer struct {
	listener net.Listener
	roots    *x509.CertPool

	registered chan *wire.Message
	readResult chan *wire.Message
	deregister chan *wire.Message
	errs       chan error
}

func startDMServer(t *testing.T) *dmServer {
	t.Helper()
	kp, err := cert.GenerateSelfSigned([]string{"dm.iotdm.local", "127.0.0.1"}, time.Hour)
	if err != nil {
		t.Fatalf("Failed to generate server cert: %v", err)
	}
	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{kp.TLSCertificate()},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	s := &dmServer{
		listener:   ln,
		roots:      kp.CertPool(),
		registered: make(chan *wire.Message, 1),
		readResult: make(chan *wire.Message, 1),
		deregister: make(chan *wire.Message, 1),
		errs:       make(chan error, 1),
	}
	go func() {
		if err := s.serve(); err != nil {
			s.errs <- err
		}
	}()
	return s
}

func (s *dmServer) serve() error {
	conn, err := s.listener.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()
	framer := transport.NewFramer(conn)

	reg, err := readMessage(framer)
	if err != nil {
		return err
	}
	if reg.Operation != wire.OpRegister {
		return fmt.Errorf("expected REGISTER, got %v", reg.Operation)
	}
	resp := wire.NewResponse(reg, codes.Created)
	resp.Location = "/rd/1"
	if err := writeMessage(framer, resp); err != nil {
		return err
	}
	s.registered <- reg

	read, err := wire.NewRequest(wire.OpRead, "/3/0/9")
	if err != nil {
		return err
	}
	if err := writeMessage(framer, read); err != nil {
		return err
	}
	for {
		m, err := readMessage(framer)
		if err != nil {
			return err
		}
		switch {
		case m.Kind == wire.KindResponse && string(m.Token) == string(read.Token):
			s.readResult <- m
		case m.Operation == wire.OpDeregister:
			s.deregister <- m
			return nil
		}
	}
}

func readMessage(f *transport.Framer) (*wire.Message, error) {
	frame, err := f.ReadFrame()
	if err != nil {
		return nil, err
	}
	return wire.Decode(frame)
}

func writeMessage(f *transport.Framer, m *wire.Message) error {
	frame, err := wire.Encode(m)
	if err != nil {
		return err
	}
	return f.WriteFrame(frame)
}

func waitFor[T any](t *testing.T, s *dmServer, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case err := <-s.errs:
		t.Fatalf("server failed while waiting for %s: %v", what, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

// TestE2E_StreamTLS registers over TLS, answers a server READ and
// deregisters on Close.
func TestE2E_StreamTLS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	server := startDMServer(t)

	cfg := client.DefaultConfig()
	cfg.Lifetime = time.Hour
	cfg.TLSConfig = &tls.Config{
		RootCAs:    server.roots,
		MinVersion: tls.VersionTLS12,
	}
	conn := fmt.Sprintf("HostName=%s;DeviceId=e2e-dev", server.listener.Addr())
	ch, err := client.Open(conn, transport.KindStream, client.WithConfig(cfg))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := ch.CreateDefaultObjects(); err != nil {
		t.Fatalf("CreateDefaultObjects: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connected := make(chan error, 1)
	if err := ch.Start(ctx, func(err error) { connected <- err }); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reg := waitFor(t, server, server.registered, "registration")
	if ep, _ := reg.QueryValue("ep"); ep != "e2e-dev" {
		t.Errorf("ep = %q, want e2e-dev", ep)
	}
	if lt, _ := reg.QueryValue("lt"); lt != "3600" {
		t.Errorf("lt = %q, want 3600", lt)
	}
	if err := waitFor(t, server, connected, "connect completion"); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	resp := waitFor(t, server, server.readResult, "read response")
	if resp.Code != codes.Content {
		t.Fatalf("read answered %v, want Content", resp.Code)
	}
	values, err := content.Decode(resp.ContentFormat, model.ResourcePath(3, 0, 9), resp.Payload,
		func(model.Path) (model.DataType, error) { return model.DataTypeInteger, nil })
	if err != nil {
		t.Fatalf("decode read payload: %v", err)
	}
	// SenML carries numbers as floats.
	if len(values) != 1 || values[0].Value != float64(100) {
		t.Errorf("battery level = %+v, want 100", values)
	}

	ch.Close()
	dereg := waitFor(t, server, server.deregister, "deregistration")
	if dereg.Path != "/rd/1" {
		t.Errorf("deregister path = %q, want /rd/1", dereg.Path)
	}
}

// TestE2E_ConnectRefused reports a transport failure through the
// completion when nothing listens.
func TestE2E_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := client.DefaultConfig()
	cfg.ConnectTimeout = 2 * time.Second
	ch, err := client.Open("HostName="+addr+";DeviceId=e2e-dev", transport.KindStream, client.WithConfig(cfg))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ch.Close()
	if err := ch.CreateDefaultObjects(); err != nil {
		t.Fatalf("CreateDefaultObjects: %v", err)
	}

	done := make(chan error, 1)
	if err := ch.Connect(func(err error) { done <- err }); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ch.DoWork()
		select {
		case err := <-done:
			if err == nil {
				t.Fatal("expected connect failure")
			}
			return
		default:
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("connect completion never fired")
}
