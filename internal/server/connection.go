package server

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/personlookup/internal/logger"
	"github.com/wolfeidau/personlookup/internal/store/sqlite"
)

// serveConn owns raw for its whole life: TLS handshake, two read-only database handles,
// one routed request, then teardown. Failures are logged and the connection dropped
// without a response.
func (s *Server) serveConn(raw net.Conn, tlsConfig *tls.Config, paths dbPaths) {
	ctx := logger.WithConnection(context.Background(), s.logger, newConnID(), raw.RemoteAddr().String())
	log := zerolog.Ctx(ctx)

	s.metrics.ActiveConnections.Add(ctx, 1)
	defer s.metrics.ActiveConnections.Add(ctx, -1)

	conn := tls.Server(raw, tlsConfig)
	if err := conn.HandshakeContext(ctx); err != nil {
		log.Warn().Err(err).Msg("TLS handshake failed")
		s.metrics.HandshakeFailures.Add(ctx, 1)
		_ = raw.Close()
		return
	}
	// sends close_notify, then closes the socket
	defer conn.Close()

	log.Debug().Str("tls_version", tls.VersionName(conn.ConnectionState().Version)).Msg("TLS handshake complete")

	primary, err := sqlite.Open(ctx, paths.primary)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open primary database")
		s.metrics.StoreOpenFailures.Add(ctx, 1)
		return
	}
	defer primary.Close()

	secondary, err := sqlite.Open(ctx, paths.secondary)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open secondary database")
		s.metrics.StoreOpenFailures.Add(ctx, 1)
		return
	}
	defer secondary.Close()

	s.serveRequest(ctx, conn, Stores{Primary: primary, Secondary: secondary})

	log.Debug().Msg("Closing connection")
}

func newConnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
