package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Default file names, looked up in the working directory.
const (
	DefaultCertFile = "local-ca.crt"
	DefaultKeyFile  = "local-ca.key"
)

// CertParams holds parameters for generating a server certificate.
type CertParams struct {
	// CommonName is the CN field (default: localhost)
	CommonName string
	// Organization is the O field
	Organization string
	// Hosts are DNS names or IP addresses the certificate is valid for
	Hosts []string
	// ValidDays is certificate validity in days (default: 365)
	ValidDays int
}

// DefaultCertParams returns parameters suitable for a LAN demo: loopback
// names plus whatever the caller appends (usually the machine's LAN IP, so
// phones on the same network can connect).
func DefaultCertParams() CertParams {
	return CertParams{
		CommonName:   "localhost",
		Organization: "accelsock local CA",
		Hosts: []string{
			"localhost",
			"127.0.0.1",
			"::1",
		},
		ValidDays: 365,
	}
}

// ServerCert represents a generated server certificate.
type ServerCert struct {
	// CertPEM is the certificate in PEM format
	CertPEM []byte
	// KeyPEM is the private key in PEM format
	KeyPEM []byte
	// Certificate is the parsed x509 certificate
	Certificate *x509.Certificate
}

// GenerateSelfSigned generates a self-signed certificate that can act as its
// own CA. Browsers need it imported once (or an exception accepted) before
// the accelerometer page will load over HTTPS.
//   - RSA 2048-bit key
//   - SHA-256 signature
//   - Key usage: digitalSignature, keyEncipherment, certSign
//   - Extended key usage: serverAuth
func GenerateSelfSigned(params CertParams) (*ServerCert, error) {
	if params.ValidDays <= 0 {
		return nil, &CertificateError{
			Operation: "generate",
			Err:       fmt.Errorf("validity must be at least one day, got %d", params.ValidDays),
		}
	}
	if len(params.Hosts) == 0 {
		return nil, &CertificateError{
			Operation: "generate",
			Err:       errors.New("at least one host is required"),
		}
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, &CertificateError{
			Operation: "generate_key",
			Err:       err,
		}
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, &CertificateError{
			Operation: "generate_serial",
			Err:       err,
		}
	}

	// Backdate slightly so clients with a skewed clock still accept it.
	notBefore := time.Now().Add(-time.Hour)
	notAfter := notBefore.AddDate(0, 0, params.ValidDays)

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{params.Organization},
			CommonName:   params.CommonName,
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,

		KeyUsage:    x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},

		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	for _, h := range params.Hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, &CertificateError{
			Operation: "create_certificate",
			Err:       err,
		}
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, &CertificateError{
			Operation: "parse_certificate",
			Err:       err,
		}
	}

	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: certDER,
	})

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	return &ServerCert{
		CertPEM:     certPEM,
		KeyPEM:      keyPEM,
		Certificate: cert,
	}, nil
}

// WriteFiles writes the certificate and key as PEM files. The key is only
// readable by the owner. Existing files are left alone unless overwrite is set.
func (sc *ServerCert) WriteFiles(certPath, keyPath string, overwrite bool) error {
	if !overwrite {
		for _, p := range []string{certPath, keyPath} {
			if _, err := os.Stat(p); err == nil {
				return &CertificateError{
					Operation: "write",
					Path:      p,
					Err:       os.ErrExist,
				}
			}
		}
	}

	for _, p := range []string{certPath, keyPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return &CertificateError{Operation: "write", Path: p, Err: err}
			}
		}
	}

	if err := os.WriteFile(certPath, sc.CertPEM, 0o644); err != nil {
		return &CertificateError{Operation: "write", Path: certPath, Err: err}
	}
	if err := os.WriteFile(keyPath, sc.KeyPEM, 0o600); err != nil {
		return &CertificateError{Operation: "write", Path: keyPath, Err: err}
	}
	return nil
}

// ValidateServerCert checks that a PEM certificate can serve TLS at the
// given time: it parses, allows serverAuth, and is inside its validity window.
func ValidateServerCert(certPEM []byte, now time.Time) (*x509.Certificate, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, &CertificateError{
			Operation: "validate",
			Err:       errors.New("not a PEM certificate"),
		}
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, &CertificateError{
			Operation: "validate",
			Err:       fmt.Errorf("failed to parse certificate: %w", err),
		}
	}

	hasServerAuth := len(cert.ExtKeyUsage) == 0
	for _, usage := range cert.ExtKeyUsage {
		if usage == x509.ExtKeyUsageServerAuth || usage == x509.ExtKeyUsageAny {
			hasServerAuth = true
			break
		}
	}
	if !hasServerAuth {
		return cert, &CertificateError{
			Operation: "validate",
			Err:       errors.New("certificate must allow ExtKeyUsageServerAuth"),
		}
	}

	if now.Before(cert.NotBefore) {
		return cert, &CertificateError{
			Operation: "validate",
			Err:       fmt.Errorf("certificate not valid before %s", cert.NotBefore.Format(time.RFC3339)),
		}
	}
	if now.After(cert.NotAfter) {
		return cert, &CertificateError{
			Operation: "validate",
			Err:       fmt.Errorf("certificate expired at %s", cert.NotAfter.Format(time.RFC3339)),
		}
	}

	return cert, nil
}

// LoadAndValidate reads a certificate file and validates it.
func LoadAndValidate(certPath string, now time.Time) (*x509.Certificate, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, &CertificateError{Operation: "load", Path: certPath, Err: err}
	}
	cert, err := ValidateServerCert(data, now)
	if err != nil {
		var certErr *CertificateError
		if errors.As(err, &certErr) {
			certErr.Path = certPath
		}
		return cert, err
	}
	return cert, nil
}
