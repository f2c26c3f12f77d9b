package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfeidau/personlookup/internal/logger"
	"github.com/wolfeidau/personlookup/internal/server"
	"github.com/wolfeidau/personlookup/internal/telemetry"
)

type ServeCmd struct {
	// Listener configuration, flag > config file > default
	Config      string `help:"path to a YAML config file" type:"existingfile" env:"PERSONLOOKUP_CONFIG"`
	Port        int    `help:"TCP port to listen on (default 8443)" env:"PERSONLOOKUP_PORT"`
	Interface   string `help:"IPv4 address of the interface to bind (default 0.0.0.0)" env:"PERSONLOOKUP_INTERFACE"`
	PrimaryDB   string `help:"path to the primary person database" env:"PERSONLOOKUP_PRIMARY_DB"`
	SecondaryDB string `help:"path to the secondary person database" env:"PERSONLOOKUP_SECONDARY_DB"`
	Cert        string `help:"path to TLS cert file (default cert.pem)" env:"PERSONLOOKUP_CERT"`
	Key         string `help:"path to TLS key file (default key.pem)" env:"PERSONLOOKUP_KEY"`

	// Operational settings
	PollInterval time.Duration `help:"how often the accept loop checks for shutdown" default:"1s"`
	DrainTimeout time.Duration `help:"how long to wait for in-flight connections on shutdown" default:"10s"`
	Tracing      bool          `help:"enable tracing" default:"false" env:"PERSONLOOKUP_TRACING"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	var file *FileConfig
	if c.Config != "" {
		var err error
		file, err = LoadFileConfig(c.Config)
		if err != nil {
			return err
		}
		log.Info().Str("path", c.Config).Msg("Loaded config file")
	}
	cfg := c.resolveConfig(file)

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "personlookup-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	srv := server.New(
		server.WithLogger(log),
		server.WithStateListener(func(running bool) {
			log.Info().Bool("running", running).Msg("Server state changed")
		}),
	)

	if err := srv.Start(cfg); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop server")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), c.DrainTimeout)
	defer cancel()
	if err := srv.Drain(drainCtx); err != nil {
		log.Warn().Err(err).Dur("timeout", c.DrainTimeout).Msg("Connections still in flight at shutdown")
	}

	return nil
}
