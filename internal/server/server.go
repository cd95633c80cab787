package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/muurk/accelsock/internal/config"
	"github.com/muurk/accelsock/internal/discovery"
	"github.com/muurk/accelsock/internal/gateway"
	"github.com/muurk/accelsock/internal/logging"
	"github.com/muurk/accelsock/internal/version"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// shutdownTimeout bounds how long Shutdown waits for open sessions.
const shutdownTimeout = 10 * time.Second

// Server is the accelerometer demo server: one page, one socket channel,
// behind TLS. It is constructed once and owns the listener, TLS config and
// gateway for the life of the process.
type Server struct {
	config     *config.ServerConfig
	tlsConfig  *tls.Config
	gateway    *gateway.Gateway
	httpServer *http.Server
	indexHTML  []byte

	mu       sync.Mutex
	listener net.Listener
	advert   *discovery.Advertisement
	ready    chan struct{}
	stopped  bool
}

// New creates a new Server instance. A missing or unreadable certificate or
// key is an error; nothing is listening yet when it is returned.
func New(cfg *config.ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := NewTLSConfig(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	indexHTML, err := loadIndexHTML()
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:    cfg,
		tlsConfig: tlsConfig,
		indexHTML: indexHTML,
		ready:     make(chan struct{}),
		gateway: gateway.New(gateway.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			MaxMessageSize: cfg.Socket.MaxMessageSize,
			PingInterval:   cfg.Socket.PingInterval,
			PongWait:       cfg.Socket.PongWait,
			WriteWait:      cfg.Socket.WriteWait,
		}),
	}
	s.registerHandlers()

	// Handshake failures from browsers that have not trusted the
	// certificate yet are routine; keep them at debug.
	errorLog, err := zap.NewStdLogAt(logging.GetLogger(), zapcore.DebugLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP error logger: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          errorLog,
		ConnState:         logConnState,
	}

	return s, nil
}

// Start listens on the configured address and serves until ctx is done or
// SIGINT/SIGTERM arrives.
func (s *Server) Start(ctx context.Context) error {
	addr := s.config.Addr()

	logging.Info("Starting accelsock server",
		zap.String("addr", addr),
		zap.String("cert", s.config.CertPath),
		zap.String("key", s.config.KeyPath),
		zap.String("log_level", s.config.EffectiveLogLevel()),
		zap.String("version", version.Full()),
	)
	logging.Info("TLS Configuration",
		zap.Any("tls_info", GetTLSInfo(s.tlsConfig)),
	)

	listener, err := tls.Listen("tcp", addr, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to create TLS listener: %w", err)
	}

	return s.Serve(ctx, listener)
}

// Serve serves on an already-open TLS listener. Tests use it with a
// listener on an ephemeral port.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logging.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.String("page", "https://"+displayAddr(listener.Addr())+"/"),
	)

	if s.config.Advertise {
		s.startAdvertising(listener.Addr())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()
	close(s.ready)

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	}
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound listen address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ActiveSessions returns the number of open socket sessions.
func (s *Server) ActiveSessions() int {
	return s.gateway.Sessions()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	advert := s.advert
	s.mu.Unlock()

	logging.Info("Shutting down server...")

	advert.Shutdown()

	// Stops the listener and idle HTTP connections. Upgraded sockets are
	// hijacked, so the gateway closes those itself.
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := s.gateway.Close(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		errs = append(errs, err)
	} else {
		logging.Info("All connections closed gracefully")
	}

	logging.Sync()

	return errors.Join(errs...)
}

func (s *Server) startAdvertising(addr net.Addr) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		logging.Warn("Cannot advertise non-TCP listener", zap.String("addr", addr.String()))
		return
	}

	txt := []string{
		discovery.SocketPathKey + "=" + SocketPath,
		"version=" + version.Version,
	}
	ad, err := discovery.Advertise(s.config.AdvertiseName, tcpAddr.Port, txt)
	if err != nil {
		// The server is still usable by address; advertising is a convenience.
		logging.Warn("mDNS advertisement failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.advert = ad
	s.mu.Unlock()

	logging.Info("Advertising over mDNS",
		zap.String("instance", s.config.AdvertiseName),
		zap.String("service", discovery.ServiceType),
		zap.Int("port", tcpAddr.Port),
	)
}

func logConnState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		logging.LogConnection(conn.RemoteAddr().String(), "connection_accepted")
	case http.StateHijacked:
		logging.LogConnection(conn.RemoteAddr().String(), "connection_upgraded")
	case http.StateClosed:
		logging.LogConnection(conn.RemoteAddr().String(), "connection_closed")
	}
}

// displayAddr turns a wildcard listen address into something a browser can
// open.
func displayAddr(addr net.Addr) string {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok || tcpAddr.IP == nil || tcpAddr.IP.IsUnspecified() {
		port := 0
		if ok {
			port = tcpAddr.Port
		}
		return fmt.Sprintf("localhost:%d", port)
	}
	return tcpAddr.String()
}
