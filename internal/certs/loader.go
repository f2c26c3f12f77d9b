package certs

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mr-tron/base58"
)

// Well-known file names, resolved against the process working directory.
const (
	DefaultCertFile = "cert.pem"
	DefaultKeyFile  = "key.pem"
)

// Certificates holds certificate data in memory
type Certificates struct {
	ServerCert []byte
	ServerKey  []byte
}

// Config for loading certificates
type Config struct {
	ServerCertPath string
	ServerKeyPath  string
}

// Load loads the server certificate and key from file paths, falling back to the
// well-known file names when a path is empty.
func Load(cfg Config) (*Certificates, error) {
	if cfg.ServerCertPath == "" {
		cfg.ServerCertPath = DefaultCertFile
	}
	if cfg.ServerKeyPath == "" {
		cfg.ServerKeyPath = DefaultKeyFile
	}

	certs := &Certificates{}

	serverCert, err := os.ReadFile(cfg.ServerCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read server cert: %w", err)
	}
	certs.ServerCert = serverCert

	serverKey, err := os.ReadFile(cfg.ServerKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read server key: %w", err)
	}
	certs.ServerKey = serverKey

	return certs, nil
}

// TLSConfig creates a tls.Config from certificates
func (c *Certificates) TLSConfig() (*tls.Config, error) {
	serverCert, err := tls.X509KeyPair(c.ServerCert, c.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Validate validates that certificate data is a usable PEM key pair
func (c *Certificates) Validate() error {
	if _, err := tls.X509KeyPair(c.ServerCert, c.ServerKey); err != nil {
		return fmt.Errorf("invalid server certificate/key: %w", err)
	}
	return nil
}

// Info describes the leaf certificate, for logging and the certinfo command.
type Info struct {
	Subject     string
	Issuer      string
	NotBefore   time.Time
	NotAfter    time.Time
	Fingerprint string
}

// Leaf parses the first certificate in the chain and summarises it.
func (c *Certificates) Leaf() (*Info, error) {
	pair, err := tls.X509KeyPair(c.ServerCert, c.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("invalid server certificate/key: %w", err)
	}
	if len(pair.Certificate) == 0 {
		return nil, errors.New("no certificate in chain")
	}

	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	return &Info{
		Subject:     leaf.Subject.String(),
		Issuer:      leaf.Issuer.String(),
		NotBefore:   leaf.NotBefore,
		NotAfter:    leaf.NotAfter,
		Fingerprint: Fingerprint(leaf.Raw),
	}, nil
}

// Fingerprint returns the base58 encoded SHA-256 of a DER certificate.
func Fingerprint(der []byte) string {
	hash := sha256.Sum256(der)
	return base58.Encode(hash[:])
}
