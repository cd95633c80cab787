package simulator

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/accelsock/internal/gateway"
	"github.com/muurk/accelsock/internal/logging"
	"github.com/muurk/accelsock/internal/telemetry"
	"github.com/muurk/accelsock/internal/version"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 5 * time.Second
)

// ErrClosed is returned when sending on a closed client.
var ErrClosed = errors.New("simulator: client closed")

// DialOptions configures how the simulator connects.
type DialOptions struct {
	// InsecureSkipVerify disables certificate verification
	InsecureSkipVerify bool

	// CAFile is a PEM file added to the trusted roots (e.g., local-ca.crt)
	CAFile string

	// Origin is sent as the Origin header when set
	Origin string

	// HandshakeTimeout bounds the TLS and upgrade handshake (default: 10s)
	HandshakeTimeout time.Duration
}

// Client is a socket channel client that behaves like the browser page.
type Client struct {
	url       string
	sessionID string
	conn      *websocket.Conn

	writeMu sync.Mutex
	sent    uint64

	done      chan struct{}
	readErr   error
	closeOnce sync.Once
}

// Dial connects to a socket channel URL (wss://host:port/ws) and waits for
// the server to announce the session id.
func Dial(ctx context.Context, url string, opts DialOptions) (*Client, error) {
	tlsConfig, err := clientTLSConfig(opts)
	if err != nil {
		return nil, err
	}

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  tlsConfig,
		HandshakeTimeout: timeout,
	}

	header := http.Header{}
	header.Set("User-Agent", version.UserAgent("accelsock-sim"))
	if opts.Origin != "" {
		header.Set("Origin", opts.Origin)
	}

	logging.Debug("Dialing socket channel", zap.String("url", url))

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w (HTTP %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	sid, err := readSession(conn, timeout)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		url:       url,
		sessionID: sid,
		conn:      conn,
		done:      make(chan struct{}),
	}
	go c.readLoop()

	logging.Info("Connected to server",
		zap.String("url", url),
		zap.String("session_id", sid),
	)
	return c, nil
}

func clientTLSConfig(opts DialOptions) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	if opts.CAFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(opts.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", opts.CAFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// readSession reads the session event the server sends first.
func readSession(conn *websocket.Conn, timeout time.Duration) (string, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("failed to read session event: %w", err)
	}

	ev, err := gateway.DecodeEvent(msg)
	if err != nil {
		return "", fmt.Errorf("invalid session event: %w", err)
	}
	if ev.Name != gateway.EventSession {
		return "", fmt.Errorf("expected %q event, got %q", gateway.EventSession, ev.Name)
	}

	var payload gateway.SessionPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return "", fmt.Errorf("invalid session payload: %w", err)
	}
	if payload.SID == "" {
		return "", errors.New("server sent an empty session id")
	}
	return payload.SID, nil
}

// readLoop drains the connection so control frames (ping, close) are
// handled. The server sends nothing else after the session event.
func (c *Client) readLoop() {
	defer close(c.done)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = err
			return
		}
		logging.LogWebSocketMessage(c.sessionID, "received", messageType, data)
	}
}

// SessionID returns the id the server assigned to this connection.
func (c *Client) SessionID() string {
	return c.sessionID
}

// URL returns the socket channel URL.
func (c *Client) URL() string {
	return c.url
}

// Sent returns the number of events written.
func (c *Client) Sent() uint64 {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sent
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns why the connection ended. It is only meaningful after Done
// is closed.
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Send emits one accel_data event.
func (c *Client) Send(r telemetry.Reading) error {
	return c.SendRaw(telemetry.EventAccelData, r)
}

// SendRaw emits an arbitrary event. data is JSON-encoded; nil omits it.
func (c *Client) SendRaw(event string, data interface{}) error {
	msg, err := gateway.EncodeEvent(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("failed to send %s event: %w", event, err)
	}
	c.sent++

	logging.LogWebSocketMessage(c.sessionID, "sent", websocket.TextMessage, msg)
	return nil
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()

		// Give the server a moment to echo the close before dropping the
		// socket.
		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
		err = c.conn.Close()

		logging.Info("Disconnected from server",
			zap.String("session_id", c.sessionID),
			zap.Uint64("sent", c.Sent()),
		)
	})
	return err
}
