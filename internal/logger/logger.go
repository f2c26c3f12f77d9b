package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	return setup(os.Stderr, dev)
}

func setup(out io.Writer, dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

// WithConnection returns a context carrying a child of base tagged with the connection
// ID and peer address. Everything logged while serving that connection goes through it.
func WithConnection(ctx context.Context, base zerolog.Logger, connID, remoteAddr string) context.Context {
	return base.With().
		Str("conn_id", connID).
		Str("remote_addr", remoteAddr).
		Logger().WithContext(ctx)
}
