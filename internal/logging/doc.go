// Package logging provides structured logging for accelsock.
//
// The package wraps a process-wide zap logger with a handful of helpers
// for the events the server cares about: transport connections, TLS
// handshakes, HTTP requests and raw socket frames.
//
// # Log Levels
//
//   - Debug: TLS handshakes, HTTP requests, frame dumps, decode issues
//   - Info: session lifecycle and telemetry readings
//   - Warn: recoverable problems (handler panics, advertisement failures)
//   - Error: failures that stop a session or the server
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to ACCELSOCK_LOG_LEVEL; if that is unset too
// the logger is a no-op.
//
// # Testing
//
// SetLogger swaps the global logger, typically for one built on
// go.uber.org/zap/zaptest/observer, and returns a restore function.
package logging
