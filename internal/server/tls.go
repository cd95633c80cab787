package server

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/muurk/accelsock/internal/certs"
	"github.com/muurk/accelsock/internal/logging"
	"go.uber.org/zap"
)

// NewTLSConfig creates the server TLS configuration from a certificate and
// private key file pair.
func NewTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	// An expired or odd certificate still loads; browsers will complain, the
	// server should not refuse to start over it.
	if _, err := certs.LoadAndValidate(certPath, time.Now()); err != nil {
		logging.Warn("TLS certificate may be rejected by clients",
			zap.String("cert", certPath),
			zap.Error(err),
		)
	}

	logging.Info("TLS configuration created from files",
		zap.String("cert", certPath),
		zap.String("key", keyPath),
	)

	return buildTLSConfig(cert), nil
}

func buildTLSConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,

		// The socket channel upgrades over HTTP/1.1; never negotiate h2.
		NextProtos: []string{"http/1.1"},
	}
}

// GetTLSInfo returns human-readable TLS configuration information
func GetTLSInfo(config *tls.Config) map[string]interface{} {
	info := map[string]interface{}{
		"min_version":     tls.VersionName(config.MinVersion),
		"num_certs":       len(config.Certificates),
		"session_tickets": !config.SessionTicketsDisabled,
	}

	if len(config.Certificates) == 0 {
		return info
	}

	leaf := config.Certificates[0].Leaf
	if leaf == nil && len(config.Certificates[0].Certificate) > 0 {
		parsed, err := x509.ParseCertificate(config.Certificates[0].Certificate[0])
		if err == nil {
			leaf = parsed
		}
	}
	if leaf != nil {
		info["subject"] = leaf.Subject.CommonName
		info["dns_names"] = leaf.DNSNames
		info["not_after"] = leaf.NotAfter.Format(time.RFC3339)
		ips := make([]string, 0, len(leaf.IPAddresses))
		for _, ip := range leaf.IPAddresses {
			ips = append(ips, ip.String())
		}
		info["ip_addresses"] = ips
	}

	return info
}
