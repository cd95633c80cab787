package simulator

import (
	"context"
	"encoding/json"
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muurk/accelsock/internal/gateway"
	"github.com/muurk/accelsock/internal/telemetry"
)

const testTimeout = 5 * time.Second

type received struct {
	sid  string
	name string
	data json.RawMessage
}

type testGateway struct {
	url         string
	caFile      string
	connects    chan string
	disconnects chan string
	events      chan received
	gateway     *gateway.Gateway
}

// startTLSGateway serves a gateway over TLS and records everything it sees.
func startTLSGateway(t *testing.T) *testGateway {
	t.Helper()

	tg := &testGateway{
		connects:    make(chan string, 16),
		disconnects: make(chan string, 16),
		events:      make(chan received, 64),
		gateway:     gateway.New(gateway.Options{}),
	}
	tg.gateway.OnConnect(func(s *gateway.Session) { tg.connects <- s.ID })
	tg.gateway.OnDisconnect(func(s *gateway.Session) { tg.disconnects <- s.ID })
	record := func(name string) gateway.HandlerFunc {
		return func(s *gateway.Session, data json.RawMessage) {
			tg.events <- received{sid: s.ID, name: name, data: data}
		}
	}
	tg.gateway.On(telemetry.EventAccelData, record(telemetry.EventAccelData))
	tg.gateway.On("custom", record("custom"))

	srv := httptest.NewTLSServer(tg.gateway)
	t.Cleanup(srv.Close)

	tg.url = "wss" + strings.TrimPrefix(srv.URL, "https") + "/ws"

	tg.caFile = filepath.Join(t.TempDir(), "ca.crt")
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})
	if err := os.WriteFile(tg.caFile, block, 0o644); err != nil {
		t.Fatalf("writing CA file: %v", err)
	}
	return tg
}

func receive[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		var zero T
		t.Fatalf("timed out waiting for %s", what)
		return zero
	}
}

func TestClientSendsReadings(t *testing.T) {
	tg := startTLSGateway(t)

	client, err := Dial(context.Background(), tg.url, DialOptions{CAFile: tg.caFile})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	sid := receive(t, tg.connects, "connect")
	if client.SessionID() != sid {
		t.Errorf("SessionID() = %q, server saw %q", client.SessionID(), sid)
	}

	want := telemetry.Reading{X: 1.5, Y: -2.25, Z: 9.81}
	if err := client.Send(want); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := client.SendRaw("custom", nil); err != nil {
		t.Fatalf("SendRaw() error = %v", err)
	}

	ev := receive(t, tg.events, "accel_data")
	if ev.name != telemetry.EventAccelData || ev.sid != sid {
		t.Errorf("got %s from %s, want accel_data from %s", ev.name, ev.sid, sid)
	}
	got, issues := telemetry.Decode(ev.data)
	if len(issues) != 0 {
		t.Errorf("Decode() issues = %v", issues)
	}
	if got != want {
		t.Errorf("server decoded %+v, want %+v", got, want)
	}

	ev = receive(t, tg.events, "custom")
	if ev.name != "custom" || len(ev.data) != 0 {
		t.Errorf("got %s with %q, want custom without data", ev.name, ev.data)
	}

	if client.Sent() != 2 {
		t.Errorf("Sent() = %d, want 2", client.Sent())
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if got := receive(t, tg.disconnects, "disconnect"); got != sid {
		t.Errorf("disconnect for %q, want %q", got, sid)
	}

	if err := client.Send(want); err == nil {
		t.Error("Send() after Close() should fail")
	}
}

func TestClientInsecure(t *testing.T) {
	tg := startTLSGateway(t)

	client, err := Dial(context.Background(), tg.url, DialOptions{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	receive(t, tg.connects, "connect")
}

func TestClientUntrustedCertificate(t *testing.T) {
	tg := startTLSGateway(t)

	if _, err := Dial(context.Background(), tg.url, DialOptions{HandshakeTimeout: time.Second}); err == nil {
		t.Fatal("Dial() should fail against an untrusted certificate")
	}
}

func TestClientTLSConfigErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.crt")
	if err := os.WriteFile(garbage, []byte("not a certificate"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		caFile string
	}{
		{"missing file", filepath.Join(dir, "missing.crt")},
		{"no certificates", garbage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := clientTLSConfig(DialOptions{CAFile: tt.caFile}); err == nil {
				t.Error("clientTLSConfig() should fail")
			}
		})
	}
}

func TestClientServerGoingAway(t *testing.T) {
	tg := startTLSGateway(t)

	client, err := Dial(context.Background(), tg.url, DialOptions{CAFile: tg.caFile})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()
	receive(t, tg.connects, "connect")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if err := tg.gateway.Close(ctx); err != nil {
		t.Fatalf("gateway Close() error = %v", err)
	}

	select {
	case <-client.Done():
	case <-time.After(testTimeout):
		t.Fatal("client did not notice the server closing")
	}
	if client.Err() == nil {
		t.Error("Err() should report why the connection ended")
	}
}
