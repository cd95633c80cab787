// Package config manages accelsock server configuration.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then command-line flags applied by the caller. Without a file the server
// behaves exactly like the fixed demo setup: all interfaces, port 5000,
// local-ca.crt and local-ca.key from the working directory.
//
// # File Location
//
// The default file is looked up in the platform config directory:
//   - Linux: $XDG_CONFIG_HOME/accelsock/server.yaml or ~/.config/accelsock/server.yaml
//   - macOS: ~/.config/accelsock/server.yaml
//   - Windows: %LOCALAPPDATA%\accelsock\server.yaml
//
// # File Format
//
//	port: 5000
//	cert: local-ca.crt
//	key: local-ca.key
//	log_level: info
//	allowed_origins:
//	  - https://192.168.1.20:5000
//	advertise: true
//	socket:
//	  max_message_size: 8192
//	  ping_interval: 54s
//	  pong_wait: 60s
package config
