// Package server implements the accelsock TLS server.
//
// The server serves a single HTML page and a socket channel that browsers
// use to stream accelerometer readings. Readings are logged and dropped;
// nothing is stored and nothing is sent back.
//
// # Routes
//
//   - GET /   the embedded accelerometer page (text/html, 200)
//   - GET /ws the socket channel (WebSocket upgrade)
//
// Any other path is a 404, any other method on / is a 405.
//
// # Socket Events
//
// Every frame is a JSON envelope:
//
//	{"event": "accel_data", "data": {"x": 1.5, "y": -2.25, "z": 0}}
//
// The server handles three events:
//   - connect: logs the session id and client address
//   - disconnect: logs the session id
//   - accel_data: logs x, y and z to two decimals, missing or non-numeric
//     axes as 0.00
//
// On connect the server sends the client one session event carrying its
// session id. It sends nothing else.
//
// # TLS
//
// The certificate and key are loaded once in New. By default they are
// local-ca.crt and local-ca.key in the working directory; generate a pair
// with `accelsock-server gencert`. A missing file makes New fail, so the
// process never starts listening.
//
// # Usage Example
//
//	cfg := config.Default()
//	srv, err := server.New(cfg)
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx)
//
// # Graceful Shutdown
//
// Start returns after ctx is cancelled or SIGINT/SIGTERM arrives:
//  1. Withdraw the mDNS advertisement (if any)
//  2. Stop accepting connections
//  3. Send a going-away close to every open socket
//  4. Wait for disconnect handlers, bounded by a timeout
package server
