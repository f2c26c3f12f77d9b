package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/personlookup/internal/certs"
	"github.com/wolfeidau/personlookup/internal/telemetry"
)

// Server is the person lookup listener. Start and Stop may be called any number of times;
// each Start/Stop pair is one run with its own listener and TLS config.
//
// Connections are served on one goroutine each with no upper bound; the only admission
// control is the listen backlog.
type Server struct {
	// lifecycle serializes Start and Stop so a new run never overlaps the loop of the
	// previous one.
	lifecycle sync.Mutex

	// mu guards running, listener, tlsConfig and loopDone.
	mu        sync.Mutex
	running   bool
	listener  *net.TCPListener
	tlsConfig *tls.Config
	loopDone  chan struct{}

	// handlersMu guards the in-flight handler count. idle is closed when it drops to zero
	// and replaced when it leaves zero.
	handlersMu sync.Mutex
	inflight   int
	idle       chan struct{}

	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	onChange func(running bool)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the base logger; connection loggers are derived from it.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStateListener registers fn to be called after every running transition.
// fn is called without any server lock held.
func WithStateListener(fn func(running bool)) Option {
	return func(s *Server) {
		s.onChange = fn
	}
}

// New creates a stopped server.
func New(opts ...Option) *Server {
	s := &Server{
		logger:  log.Logger,
		metrics: telemetry.GetMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds cfg.BindAddress:cfg.Port, loads the TLS key pair and runs the accept loop
// on its own goroutine. Calling Start on a running server does nothing.
//
// On error nothing is left running.
func (s *Server) Start(cfg Config) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.Running() {
		return nil
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	ip, err := cfg.bindIP()
	if err != nil {
		return err
	}

	tlsConfig, err := s.loadTLSConfig(cfg)
	if err != nil {
		return err
	}

	ln, err := listen(ip, cfg.Port, listenBacklog)
	if err != nil {
		return fmt.Errorf("%w: %s:%d: %w", ErrBind, cfg.BindAddress, cfg.Port, err)
	}

	done := make(chan struct{})
	paths := dbPaths{primary: cfg.PrimaryDBPath, secondary: cfg.SecondaryDBPath}

	s.mu.Lock()
	s.running = true
	s.listener = ln
	s.tlsConfig = tlsConfig
	s.loopDone = done
	s.mu.Unlock()

	go s.acceptLoop(ln, tlsConfig, paths, cfg.PollInterval, done)

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Str("primary_db", cfg.PrimaryDBPath).
		Str("secondary_db", cfg.SecondaryDBPath).
		Msg("Server started")

	s.notify(true)
	return nil
}

// Stop closes the listener and waits for the accept loop to exit. It does not wait for
// connections already being served; use Drain for that. Stopping a stopped server does
// nothing.
func (s *Server) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	err := s.listener.Close()
	s.listener = nil
	s.tlsConfig = nil
	done := s.loopDone
	s.loopDone = nil
	s.mu.Unlock()

	<-done

	s.logger.Info().Msg("Server stopped")
	s.notify(false)

	if err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

// Running reports whether the server is accepting connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Addr returns the bound address, or nil when the server is stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Drain waits until no connection handler is in flight or ctx is done. It may be called
// at any time; while the server is running, handlers accepted after Drain returns are
// not waited for.
func (s *Server) Drain(ctx context.Context) error {
	s.handlersMu.Lock()
	if s.inflight == 0 {
		s.handlersMu.Unlock()
		return nil
	}
	idle := s.idle
	s.handlersMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// goHandler runs fn on its own goroutine and tracks it for Drain.
func (s *Server) goHandler(fn func()) {
	s.handlersMu.Lock()
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
	s.handlersMu.Unlock()

	go func() {
		defer s.handlerDone()
		fn()
	}()
}

func (s *Server) handlerDone() {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}

func (s *Server) notify(running bool) {
	if s.onChange != nil {
		s.onChange(running)
	}
}

// acceptLoop accepts until the running flag is cleared. Each Accept is bounded by
// pollInterval so a cleared flag is seen within one interval even if closing the
// listener did not wake Accept.
func (s *Server) acceptLoop(ln *net.TCPListener, tlsConfig *tls.Config, paths dbPaths, pollInterval time.Duration, done chan struct{}) {
	defer close(done)

	// paces the loop on persistent accept errors such as EMFILE
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxInterval = pollInterval
	bo.Reset()

	for {
		_ = ln.SetDeadline(time.Now().Add(pollInterval))
		conn, err := ln.Accept()

		if !s.Running() {
			if conn != nil {
				_ = conn.Close()
			}
			return
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			s.metrics.AcceptErrors.Add(context.Background(), 1)
			delay := bo.NextBackOff()
			s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to accept connection")
			time.Sleep(delay)
			continue
		}
		bo.Reset()

		s.metrics.ConnectionsAccepted.Add(context.Background(), 1)
		s.logger.Debug().Str("remote_addr", conn.RemoteAddr().String()).Msg("Accepted connection")

		s.goHandler(func() {
			s.serveConn(conn, tlsConfig, paths)
		})
	}
}

func (s *Server) loadTLSConfig(cfg Config) (*tls.Config, error) {
	c, err := certs.Load(certs.Config{ServerCertPath: cfg.CertFile, ServerKeyPath: cfg.KeyFile})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTLSConfig, err)
	}

	tlsConfig, err := c.TLSConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTLSConfig, err)
	}

	if info, err := c.Leaf(); err == nil {
		s.logger.Info().
			Str("subject", info.Subject).
			Str("fingerprint", info.Fingerprint).
			Time("not_after", info.NotAfter).
			Msg("Loaded TLS certificate")
	}

	return tlsConfig, nil
}
