package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/accelsock/internal/certs"
	"github.com/muurk/accelsock/internal/config"
	"github.com/muurk/accelsock/internal/gateway"
	"github.com/muurk/accelsock/internal/logging"
	"github.com/muurk/accelsock/internal/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testServer struct {
	srv    *Server
	addr   string
	roots  *x509.CertPool
	logs   *observer.ObservedLogs
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// startTestServer generates a certificate, starts a server on an ephemeral
// loopback port and routes its logs into an observer.
func startTestServer(t *testing.T) *testServer {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logging.SetLogger(zap.New(core)))

	dir := t.TempDir()
	cert, err := certs.GenerateSelfSigned(certs.DefaultCertParams())
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	certPath := filepath.Join(dir, certs.DefaultCertFile)
	keyPath := filepath.Join(dir, certs.DefaultKeyFile)
	if err := cert.WriteFiles(certPath, keyPath, false); err != nil {
		t.Fatalf("WriteFiles() error = %v", err)
	}

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.CertPath = certPath
	cfg.KeyPath = keyPath

	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(cert.CertPEM) {
		t.Fatal("failed to add generated certificate to pool")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ts := &testServer{
		srv:    srv,
		roots:  roots,
		logs:   logs,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		ts.err = srv.Start(ctx)
		close(ts.done)
	}()
	t.Cleanup(func() { ts.stop() })

	select {
	case <-srv.Ready():
	case <-ts.done:
		t.Fatalf("Start() returned early: %v", ts.err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	ts.addr = srv.Addr().String()
	return ts
}

// stop cancels the server and waits for Start to return.
func (ts *testServer) stop() bool {
	ts.cancel()
	select {
	case <-ts.done:
		return true
	case <-time.After(15 * time.Second):
		return false
	}
}

func (ts *testServer) tlsConfig() *tls.Config {
	return &tls.Config{RootCAs: ts.roots, ServerName: "localhost"}
}

func (ts *testServer) httpClient() *http.Client {
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{TLSClientConfig: ts.tlsConfig()},
	}
}

// dial opens a socket session and returns it with the session id the server
// announced.
func (ts *testServer) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()

	dialer := websocket.Dialer{
		TLSClientConfig:  ts.tlsConfig(),
		HandshakeTimeout: 5 * time.Second,
	}
	conn, resp, err := dialer.Dial("wss://"+ts.addr+SocketPath, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading session event: %v", err)
	}
	conn.SetReadDeadline(time.Time{})

	ev, err := gateway.DecodeEvent(msg)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if ev.Name != gateway.EventSession {
		t.Fatalf("first event = %q, want %q", ev.Name, gateway.EventSession)
	}
	var payload gateway.SessionPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decoding session payload: %v", err)
	}
	if payload.SID == "" {
		t.Fatal("session event carried an empty sid")
	}
	return conn, payload.SID
}

func sendEvent(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
}

func closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = conn.Close()
}

// waitForLogs polls until n entries with msg and session_id are logged.
func waitForLogs(t *testing.T, logs *observer.ObservedLogs, msg, sid string, n int) []observer.LoggedEntry {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		entries := logs.FilterMessage(msg).FilterField(zap.String("session_id", sid)).All()
		if len(entries) >= n {
			return entries
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d %q entries for session %s, want %d", len(entries), msg, sid, n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerServesIndex(t *testing.T) {
	ts := startTestServer(t)
	client := ts.httpClient()

	resp, err := client.Get("https://" + ts.addr + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	want, err := loadIndexHTML()
	if err != nil {
		t.Fatalf("loadIndexHTML() error = %v", err)
	}
	if string(body) != string(want) {
		t.Error("body does not match the embedded page")
	}
}

func TestServerRoutes(t *testing.T) {
	ts := startTestServer(t)
	client := ts.httpClient()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"index", http.MethodGet, "/", http.StatusOK},
		{"index head", http.MethodHead, "/", http.StatusOK},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound},
		{"page under subpath", http.MethodGet, "/index.html", http.StatusNotFound},
		{"post to index", http.MethodPost, "/", http.StatusMethodNotAllowed},
		{"socket without upgrade", http.MethodGet, SocketPath, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, "https://"+ts.addr+tt.path, nil)
			if err != nil {
				t.Fatalf("NewRequest() error = %v", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("%s %s error = %v", tt.method, tt.path, err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestServerLogsReadings(t *testing.T) {
	ts := startTestServer(t)
	conn, sid := ts.dial(t)
	defer closeConn(conn)

	waitForLogs(t, ts.logs, "Client connected", sid, 1)

	sendEvent(t, conn, `{"event":"accel_data","data":{"x":1.5,"y":-2.25,"z":0}}`)
	sendEvent(t, conn, `{"event":"accel_data","data":{}}`)
	sendEvent(t, conn, `{"event":"accel_data","data":{"x":"abc","y":9.81}}`)

	entries := waitForLogs(t, ts.logs, "Accelerometer data", sid, 3)

	want := []map[string]string{
		{"x": "1.50", "y": "-2.25", "z": "0.00"},
		{"x": "0.00", "y": "0.00", "z": "0.00"},
		{"x": "0.00", "y": "9.81", "z": "0.00"},
	}
	for i, w := range want {
		got := entries[i].ContextMap()
		for axis, value := range w {
			if got[axis] != value {
				t.Errorf("reading %d: %s = %v, want %s", i, axis, got[axis], value)
			}
		}
	}

	issues := ts.logs.FilterMessage("Telemetry field defaulted to zero").FilterField(zap.String("field", "x")).All()
	if len(issues) == 0 {
		t.Error("expected a debug entry for the non-numeric x field")
	}
}

func TestServerUnknownEventIgnored(t *testing.T) {
	ts := startTestServer(t)
	conn, sid := ts.dial(t)
	defer closeConn(conn)

	sendEvent(t, conn, `{"event":"shake","data":{"x":1}}`)
	sendEvent(t, conn, `not json`)
	sendEvent(t, conn, `{"event":"accel_data","data":{"x":3}}`)

	entries := waitForLogs(t, ts.logs, "Accelerometer data", sid, 1)
	if got := entries[0].ContextMap()["x"]; got != "3.00" {
		t.Errorf("x = %v, want 3.00", got)
	}
	if n := ts.logs.FilterMessage("Client disconnected").FilterField(zap.String("session_id", sid)).Len(); n != 0 {
		t.Errorf("bad frames should not end the session, got %d disconnects", n)
	}
}

func TestServerConnectDisconnectOrder(t *testing.T) {
	ts := startTestServer(t)
	conn, sid := ts.dial(t)

	waitForLogs(t, ts.logs, "Client connected", sid, 1)
	closeConn(conn)
	waitForLogs(t, ts.logs, "Client disconnected", sid, 1)

	var order []string
	for _, e := range ts.logs.FilterField(zap.String("session_id", sid)).All() {
		switch e.Message {
		case "Client connected", "Client disconnected":
			order = append(order, e.Message)
		}
	}
	if len(order) != 2 || order[0] != "Client connected" || order[1] != "Client disconnected" {
		t.Errorf("lifecycle order = %v, want connect then disconnect", order)
	}

	entry := ts.logs.FilterMessage("Client connected").FilterField(zap.String("session_id", sid)).All()[0]
	if addr, _ := entry.ContextMap()["remote_addr"].(string); !strings.HasPrefix(addr, "127.0.0.1:") {
		t.Errorf("remote_addr = %q, want loopback", addr)
	}
}

func TestServerConcurrentSessions(t *testing.T) {
	ts := startTestServer(t)

	const clients = 4
	const perClient = 5

	var wg sync.WaitGroup
	sids := make([]string, clients)
	for i := 0; i < clients; i++ {
		conn, sid := ts.dial(t)
		sids[i] = sid

		wg.Add(1)
		go func(conn *websocket.Conn, value int) {
			defer wg.Done()
			for j := 0; j < perClient; j++ {
				msg, _ := json.Marshal(map[string]interface{}{
					"event": telemetry.EventAccelData,
					"data":  map[string]int{"x": value, "y": j},
				})
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}(conn, i)
		defer closeConn(conn)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, sid := range sids {
		if seen[sid] {
			t.Fatalf("duplicate session id %s", sid)
		}
		seen[sid] = true

		entries := waitForLogs(t, ts.logs, "Accelerometer data", sid, perClient)
		for j, e := range entries {
			fields := e.ContextMap()
			wantX := []string{"0.00", "1.00", "2.00", "3.00"}[i]
			if fields["x"] != wantX {
				t.Errorf("client %d reading %d: x = %v, want %s", i, j, fields["x"], wantX)
			}
			wantY := []string{"0.00", "1.00", "2.00", "3.00", "4.00"}[j]
			if fields["y"] != wantY {
				t.Errorf("client %d reading %d: y = %v, want %s", i, j, fields["y"], wantY)
			}
		}
	}

	if got := ts.srv.ActiveSessions(); got != clients {
		t.Errorf("ActiveSessions() = %d, want %d", got, clients)
	}
}

func TestServerShutdownClosesSessions(t *testing.T) {
	ts := startTestServer(t)
	conn, sid := ts.dial(t)
	defer conn.Close()

	waitForLogs(t, ts.logs, "Client connected", sid, 1)

	if !ts.stop() {
		t.Fatal("server did not stop")
	}
	if ts.err != nil {
		t.Errorf("Start() error = %v", ts.err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want going-away close", err)
	}
	waitForLogs(t, ts.logs, "Client disconnected", sid, 1)
}

func TestNewMissingCertificate(t *testing.T) {
	t.Cleanup(logging.SetLogger(zap.NewNop()))

	dir := t.TempDir()
	cfg := config.Default()
	cfg.CertPath = filepath.Join(dir, "missing.crt")
	cfg.KeyPath = filepath.Join(dir, "missing.key")

	srv, err := New(cfg)
	if err == nil {
		t.Fatal("New() should fail without a certificate")
	}
	if srv != nil {
		t.Error("New() should not return a server on error")
	}
}

func TestNewInvalidConfig(t *testing.T) {
	t.Cleanup(logging.SetLogger(zap.NewNop()))

	cfg := config.Default()
	cfg.Port = 70000

	if _, err := New(cfg); err == nil {
		t.Fatal("New() should reject an out-of-range port")
	}
}

func TestGetTLSInfo(t *testing.T) {
	t.Cleanup(logging.SetLogger(zap.NewNop()))

	cert, err := certs.GenerateSelfSigned(certs.DefaultCertParams())
	if err != nil {
		t.Fatalf("GenerateSelfSigned() error = %v", err)
	}
	pair, err := tls.X509KeyPair(cert.CertPEM, cert.KeyPEM)
	if err != nil {
		t.Fatalf("X509KeyPair() error = %v", err)
	}
	info := GetTLSInfo(buildTLSConfig(pair))

	if info["min_version"] != "TLS 1.2" {
		t.Errorf("min_version = %v, want TLS 1.2", info["min_version"])
	}
	if info["num_certs"] != 1 {
		t.Errorf("num_certs = %v, want 1", info["num_certs"])
	}
	if info["subject"] != "localhost" {
		t.Errorf("subject = %v, want localhost", info["subject"])
	}
	ips, _ := info["ip_addresses"].([]string)
	if len(ips) != 2 {
		t.Errorf("ip_addresses = %v, want two entries", ips)
	}

	empty := GetTLSInfo(&tls.Config{})
	if _, ok := empty["subject"]; ok {
		t.Error("empty config should not report a subject")
	}
}

func TestDisplayAddr(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want string
	}{
		{"wildcard v4", &net.TCPAddr{IP: net.IPv4zero, Port: 5000}, "localhost:5000"},
		{"wildcard v6", &net.TCPAddr{IP: net.IPv6unspecified, Port: 5000}, "localhost:5000"},
		{"no ip", &net.TCPAddr{Port: 8443}, "localhost:8443"},
		{"loopback", &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 5000}, "127.0.0.1:5000"},
		{"not tcp", &net.UnixAddr{Name: "/tmp/sock", Net: "unix"}, "localhost:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayAddr(tt.addr); got != tt.want {
				t.Errorf("displayAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}
