package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/muurk/accelsock/internal/logging"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	defaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	defaultPongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	defaultPingInterval = (defaultPongWait * 9) / 10

	// Maximum message size allowed from peer
	defaultMaxMessageSize = 8192
)

// HandlerFunc handles a named event received on a session.
type HandlerFunc func(s *Session, data json.RawMessage)

// SessionFunc handles a session lifecycle event.
type SessionFunc func(s *Session)

// Options configures a Gateway. Zero values fall back to defaults.
type Options struct {
	// AllowedOrigins lists browser origins allowed to open a socket.
	// Empty or containing "*" allows any origin.
	AllowedOrigins []string
	MaxMessageSize int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = (o.PongWait * 9) / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	return o
}

func (o Options) checkOrigin(r *http.Request) bool {
	if len(o.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send an origin.
		return true
	}
	for _, allowed := range o.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// Gateway accepts socket connections and dispatches their events to
// registered handlers.
type Gateway struct {
	opts     Options
	upgrader websocket.Upgrader

	handlersMu   sync.RWMutex
	handlers     map[string]HandlerFunc
	onConnect    SessionFunc
	onDisconnect SessionFunc

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// New creates a Gateway with the given options.
func New(opts Options) *Gateway {
	opts = opts.withDefaults()
	return &Gateway{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     opts.checkOrigin,
		},
		handlers: make(map[string]HandlerFunc),
		sessions: make(map[string]*Session),
	}
}

// OnConnect sets the handler invoked once when a session opens.
func (g *Gateway) OnConnect(fn SessionFunc) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.onConnect = fn
}

// OnDisconnect sets the handler invoked once when a session ends.
func (g *Gateway) OnDisconnect(fn SessionFunc) {
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.onDisconnect = fn
}

// On registers the handler for a named client event, replacing any previous
// one. Reserved names panic; use OnConnect and OnDisconnect for those.
func (g *Gateway) On(event string, fn HandlerFunc) {
	if event == "" || isReserved(event) {
		panic(fmt.Sprintf("gateway: cannot register handler for reserved event %q", event))
	}
	g.handlersMu.Lock()
	defer g.handlersMu.Unlock()
	g.handlers[event] = fn
}

// ServeHTTP upgrades the request and serves the session until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		logging.Warn("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		return
	}

	sess := newSession(conn, r.RemoteAddr)

	g.wg.Add(1)
	defer g.wg.Done()

	g.serve(sess)
}

func (g *Gateway) serve(sess *Session) {
	defer sess.close(websocket.CloseNormalClosure, "", g.opts.WriteWait)

	// Hand the client its id before anything else, so the first event it
	// sends can already be correlated.
	if err := sess.writeEvent(EventSession, SessionPayload{SID: sess.ID}, g.opts.WriteWait); err != nil {
		logging.Warn("Failed to send session handshake",
			zap.String("remote_addr", sess.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	g.track(sess)
	g.invokeSession(EventConnect, sess)

	defer func() {
		g.untrack(sess)
		g.invokeSession(EventDisconnect, sess)
	}()

	conn := sess.conn
	conn.SetReadLimit(g.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(g.opts.PongWait))
	})

	stop := make(chan struct{})
	defer close(stop)
	go g.pingLoop(sess, stop)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logging.Warn("Session closed unexpectedly",
					zap.String("session_id", sess.ID),
					zap.Error(err),
				)
			} else {
				logging.Debug("Session read loop finished",
					zap.String("session_id", sess.ID),
					zap.Error(err),
				)
			}
			return
		}

		logging.LogWebSocketMessage(sess.ID, "received", messageType, data)
		sess.events.Add(1)
		g.dispatch(sess, data)
	}
}

func (g *Gateway) pingLoop(sess *Session, stop <-chan struct{}) {
	ticker := time.NewTicker(g.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(g.opts.WriteWait)
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				logging.Debug("Ping failed",
					zap.String("session_id", sess.ID),
					zap.Error(err),
				)
				return
			}
		}
	}
}

func (g *Gateway) dispatch(sess *Session, data []byte) {
	ev, err := DecodeEvent(data)
	if err != nil {
		logging.Debug("Ignoring malformed event",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
		return
	}

	g.handlersMu.RLock()
	fn, ok := g.handlers[ev.Name]
	g.handlersMu.RUnlock()

	if !ok {
		logging.Debug("No handler registered for event",
			zap.String("session_id", sess.ID),
			zap.String("event", ev.Name),
		)
		return
	}

	g.recoverHandler(ev.Name, sess, func() { fn(sess, ev.Data) })
}

func (g *Gateway) invokeSession(event string, sess *Session) {
	g.handlersMu.RLock()
	fn := g.onConnect
	if event == EventDisconnect {
		fn = g.onDisconnect
	}
	g.handlersMu.RUnlock()

	if fn == nil {
		return
	}
	g.recoverHandler(event, sess, func() { fn(sess) })
}

func (g *Gateway) recoverHandler(event string, sess *Session, call func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Event handler panicked",
				zap.String("session_id", sess.ID),
				zap.String("event", event),
				zap.Any("panic", r),
			)
		}
	}()
	call()
}

func (g *Gateway) track(sess *Session) {
	g.mu.Lock()
	g.sessions[sess.ID] = sess
	g.mu.Unlock()
}

func (g *Gateway) untrack(sess *Session) {
	g.mu.Lock()
	delete(g.sessions, sess.ID)
	g.mu.Unlock()
}

// Sessions returns the number of open sessions.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Close sends a going-away close frame to every open session and waits for
// their disconnect handlers to run, or for ctx to expire.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	open := make([]*Session, 0, len(g.sessions))
	for _, sess := range g.sessions {
		open = append(open, sess)
	}
	g.mu.Unlock()

	for _, sess := range open {
		logging.Debug("Closing session", zap.String("session_id", sess.ID))
		sess.close(websocket.CloseGoingAway, "server shutting down", g.opts.WriteWait)
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sessions to close: %w", ctx.Err())
	}
}
