package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is one client connection on the socket channel.
type Session struct {
	// ID is an opaque identifier used to correlate log lines.
	ID string
	// RemoteAddr is the peer address of the underlying connection.
	RemoteAddr string
	// ConnectedAt is when the upgrade completed.
	ConnectedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
	events  atomic.Uint64
	closed  sync.Once
}

func newSession(conn *websocket.Conn, remoteAddr string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Events returns the number of events received on this session so far.
func (s *Session) Events() uint64 {
	return s.events.Load()
}

// Duration returns how long the session has been open.
func (s *Session) Duration() time.Duration {
	return time.Since(s.ConnectedAt)
}

func (s *Session) writeEvent(name string, data interface{}, writeWait time.Duration) error {
	b, err := EncodeEvent(name, data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

// close sends a close frame with the given code and tears the connection down.
// Safe to call more than once.
func (s *Session) close(code int, reason string, writeWait time.Duration) {
	s.closed.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = s.conn.Close()
	})
}
