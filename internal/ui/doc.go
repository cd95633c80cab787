// Package ui provides the terminal UI for the accelsock-sim CLI.
//
// The simulator screen is a Bubble Tea model: a spinner while the socket
// connects, then three bars showing the magnitude of the X, Y and Z readings
// being streamed, a counter, and a help line. The arrow keys tilt the
// virtual device, which moves gravity between the axes.
//
// # Key Bindings
//
//   - ↑/↓ (k/j): pitch the device
//   - ←/→ (h/l): roll the device
//   - 0: level it again
//   - space (p): pause and resume sending
//   - q: close the connection and quit
//
// # Logging Integration
//
// This package expects logging to be controlled via the ACCELSOCK_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent so log
// lines do not tear the alternate screen.
package ui
