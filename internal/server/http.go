package server

import (
	"net/http"
	"strconv"

	"github.com/muurk/accelsock/internal/logging"
	"go.uber.org/zap"
)

// SocketPath is where the socket channel is mounted.
const SocketPath = "/ws"

// routes builds the HTTP handler: the page at exactly "/", the socket
// channel, and the mux defaults (404/405) for everything else.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET "+SocketPath, s.gateway)
	return logRequests(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.indexHTML)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(s.indexHTML); err != nil {
		logging.Debug("Failed to write index page",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
	}
}

// logRequests logs every request and, once per request, the TLS state it
// arrived on.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, r.UserAgent())
		logging.LogTLSHandshake(r.RemoteAddr, r.TLS)
		next.ServeHTTP(w, r)
	})
}
