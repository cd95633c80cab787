package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultSocketPath is used when a server does not advertise its path.
const DefaultSocketPath = "/ws"

// Service is an accelsock server found on the network.
type Service struct {
	// Instance is the advertised instance name (e.g., "accelsock")
	Instance string

	// Hostname is the mDNS hostname (e.g., "laptop.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the TLS port
	Port int

	// Metadata contains the TXT record data
	Metadata map[string]string

	// DiscoveredAt is when the server answered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the service
func (s *Service) String() string {
	return fmt.Sprintf("%s (%s) at %s", s.Instance, s.Hostname, net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// PageURL returns the HTTPS URL of the accelerometer page.
func (s *Service) PageURL() string {
	return fmt.Sprintf("https://%s/", net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// SocketURL returns the wss:// URL of the socket channel.
func (s *Service) SocketURL() string {
	path := s.GetMetadata(SocketPathKey)
	if path == "" {
		path = DefaultSocketPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("wss://%s%s", net.JoinHostPort(s.IP, strconv.Itoa(s.Port)), path)
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}
