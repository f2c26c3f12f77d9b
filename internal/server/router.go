package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/personlookup/internal/store"
	"github.com/wolfeidau/personlookup/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

const (
	// requestBufferSize is the most the router reads; the request must arrive in one read.
	requestBufferSize = 4096

	maxMethodLen = 15
	maxPathLen   = 255
)

// Stores are the two handles opened for a connection. Secondary is held for the
// connection's lifetime but no route reads it.
type Stores struct {
	Primary   store.PersonStore
	Secondary store.PersonStore
}

type responseShape int

const (
	singleShot responseShape = iota
	staged
)

type route struct {
	prefix string
	lookup store.Lookup
	run    func(store.PersonStore, context.Context, string) []store.PersonRecord
	shape  responseShape
}

// routes have disjoint prefixes, so the first match is the only match.
var routes = []route{
	{prefix: "/get-person-by-cpf/", lookup: store.LookupIdentifier, run: store.PersonStore.ByIdentifier, shape: singleShot},
	{prefix: "/get-person-by-name/", lookup: store.LookupName, run: store.PersonStore.ByNameSubstring, shape: staged},
	{prefix: "/get-person-by-exact-name/", lookup: store.LookupExactName, run: store.PersonStore.ByExactName, shape: singleShot},
}

// matchRoute returns the route for path and the remainder after its prefix, verbatim.
func matchRoute(path string) (route, string, bool) {
	for _, r := range routes {
		if suffix, ok := strings.CutPrefix(path, r.prefix); ok {
			return r, suffix, true
		}
	}
	return route{}, "", false
}

// parseRequestLine returns the first two ASCII whitespace separated tokens of buf,
// truncated to the method and path limits. Non-ASCII bytes, including UTF-8 encoded
// Unicode spaces, belong to the token.
func parseRequestLine(buf []byte) (method, path string, ok bool) {
	fields := strings.FieldsFunc(string(buf), isASCIISpace)
	if len(fields) < 2 {
		return "", "", false
	}
	return truncate(fields[0], maxMethodLen), truncate(fields[1], maxPathLen), true
}

func isASCIISpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// serveRequest reads one request from rw and answers it. It returns the HTTP status sent, or 0
// when the peer closed before sending anything.
func (s *Server) serveRequest(ctx context.Context, rw io.ReadWriter, stores Stores) int {
	log := zerolog.Ctx(ctx)

	buf := make([]byte, requestBufferSize)
	n, err := rw.Read(buf)
	if n <= 0 {
		log.Debug().Err(err).Msg("Connection closed before request")
		return 0
	}

	method, path, ok := parseRequestLine(buf[:n])
	if !ok {
		return s.reject(ctx, rw, http.StatusBadRequest, "")
	}

	if method != http.MethodGet {
		return s.reject(ctx, rw, http.StatusMethodNotAllowed, path)
	}

	r, suffix, ok := matchRoute(path)
	if !ok {
		return s.reject(ctx, rw, http.StatusNotFound, path)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "lookup."+string(r.lookup))
	defer span.End()

	started := time.Now()
	var (
		records []store.PersonRecord
		queryMs float64
	)
	lookup := func() []store.PersonRecord {
		qStarted := time.Now()
		res := r.run(stores.Primary, ctx, suffix)
		queryMs = float64(time.Since(qStarted).Microseconds()) / 1000
		return res
	}

	switch r.shape {
	case staged:
		records, err = writeStaged(rw, lookup)
	default:
		records = lookup()
		err = writeResults(rw, records)
	}

	routeAttr := attribute.String("route", string(r.lookup))
	span.SetAttributes(routeAttr, attribute.Int("results", len(records)))
	s.metrics.QueryDuration.Record(ctx, queryMs, metric.WithAttributes(attribute.String("lookup", string(r.lookup))))
	s.metrics.ResultsTotal.Add(ctx, int64(len(records)), metric.WithAttributes(routeAttr))
	s.metrics.RequestsTotal.Add(ctx, 1, metric.WithAttributes(routeAttr, attribute.Int("status", http.StatusOK)))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		log.Warn().Err(err).Str("path", path).Msg("Failed to write response")
		return http.StatusOK
	}

	log.Info().
		Str("route", string(r.lookup)).
		Str("query", suffix).
		Int("results", len(records)).
		Dur("duration", time.Since(started)).
		Msg("Lookup completed")

	return http.StatusOK
}

func (s *Server) reject(ctx context.Context, w io.Writer, code int, path string) int {
	zerolog.Ctx(ctx).Info().Int("status", code).Str("path", path).Msg("Request rejected")
	s.metrics.RequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", "none"),
		attribute.Int("status", code),
	))

	if err := writeStatus(w, code); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to write response")
	}
	return code
}
