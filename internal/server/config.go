package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wolfeidau/personlookup/internal/certs"
)

// Sentinel errors returned by Start. Match them with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid server config")
	ErrBind          = errors.New("failed to bind listener")
	ErrTLSConfig     = errors.New("failed to load TLS certificate")
)

const (
	// DefaultPollInterval bounds how long the accept loop takes to notice Stop.
	DefaultPollInterval = time.Second

	// listenBacklog is the number of pending connections the kernel queues for us.
	listenBacklog = 10
)

// Config is supplied once per Start and never changes while the server runs.
type Config struct {
	// Port to listen on. 0 picks an ephemeral port, see Server.Addr.
	Port int

	// BindAddress is the IPv4 literal of the interface to bind, e.g. 0.0.0.0.
	BindAddress string

	// PrimaryDBPath is the person database every lookup runs against.
	PrimaryDBPath string

	// SecondaryDBPath is opened for every connection but no lookup reads it yet.
	SecondaryDBPath string

	// CertFile and KeyFile default to cert.pem and key.pem in the working directory.
	CertFile string
	KeyFile  string

	// PollInterval defaults to DefaultPollInterval.
	PollInterval time.Duration
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.CertFile == "" {
		c.CertFile = certs.DefaultCertFile
	}
	if c.KeyFile == "" {
		c.KeyFile = certs.DefaultKeyFile
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
}

// Validate checks the fields that do not need the network or the filesystem.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	}
	if c.PrimaryDBPath == "" {
		return fmt.Errorf("%w: primary database path is required", ErrInvalidConfig)
	}
	if c.SecondaryDBPath == "" {
		return fmt.Errorf("%w: secondary database path is required", ErrInvalidConfig)
	}
	return nil
}

// bindIP parses BindAddress, which must be an IPv4 literal.
func (c *Config) bindIP() (net.IP, error) {
	ip := net.ParseIP(c.BindAddress)
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: invalid interface IP %q", ErrBind, c.BindAddress)
	}
	return ip.To4(), nil
}

// dbPaths is the per-connection copy of the two database paths.
type dbPaths struct {
	primary   string
	secondary string
}
