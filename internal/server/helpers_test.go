package server

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/personlookup/internal/store"
	"github.com/wolfeidau/personlookup/internal/testutil"
)

// parseChunks splits a raw response into its header block and chunk payloads.
// terminated reports whether the zero-length chunk was seen.
func parseChunks(raw []byte) (header string, chunks []string, terminated bool, err error) {
	idx := bytes.Index(raw, []byte("\r\n\r\n"))
	if idx < 0 {
		return "", nil, false, errors.New("no end of headers")
	}
	header = string(raw[:idx+4])
	rest := raw[idx+4:]

	for {
		line, after, ok := bytes.Cut(rest, []byte("\r\n"))
		if !ok {
			return header, chunks, false, nil
		}

		size, err := strconv.ParseUint(string(line), 16, 64)
		if err != nil {
			return header, chunks, false, fmt.Errorf("bad chunk size %q: %w", line, err)
		}

		if size == 0 {
			if len(after) < 2 {
				return header, chunks, false, nil
			}
			if !bytes.Equal(after, []byte("\r\n")) {
				return header, chunks, false, fmt.Errorf("unexpected bytes after last chunk: %q", after)
			}
			return header, chunks, true, nil
		}

		if uint64(len(after)) < size+2 {
			return header, chunks, false, nil
		}
		if !bytes.Equal(after[size:size+2], []byte("\r\n")) {
			return header, chunks, false, fmt.Errorf("chunk of %d bytes not followed by CRLF", size)
		}

		chunks = append(chunks, string(after[:size]))
		rest = after[size+2:]
	}
}

// splitResponse parses a complete chunked response and fails the test if it is malformed.
func splitResponse(t *testing.T, raw []byte) (string, []string) {
	t.Helper()

	header, chunks, terminated, err := parseChunks(raw)
	require.NoError(t, err)
	require.True(t, terminated, "response not terminated: %q", raw)
	return header, chunks
}

// splitPartial parses whatever complete chunks raw holds so far.
func splitPartial(raw []byte) (string, []string) {
	header, chunks, _, _ := parseChunks(raw)
	return header, chunks
}

// fakeConn serves a fixed request and records the response.
type fakeConn struct {
	in  io.Reader
	out bytes.Buffer
}

func newFakeConn(request string) *fakeConn {
	return &fakeConn{in: bytes.NewReader([]byte(request))}
}

func (f *fakeConn) Read(p []byte) (int, error)  { return f.in.Read(p) }
func (f *fakeConn) Write(p []byte) (int, error) { return f.out.Write(p) }

// fakeStore records the lookups made against it.
type fakeStore struct {
	records []store.PersonRecord
	calls   []string
}

func (f *fakeStore) ByIdentifier(_ context.Context, id string) []store.PersonRecord {
	f.calls = append(f.calls, "identifier:"+id)
	return f.records
}

func (f *fakeStore) ByNameSubstring(_ context.Context, q string) []store.PersonRecord {
	f.calls = append(f.calls, "name:"+q)
	return f.records
}

func (f *fakeStore) ByExactName(_ context.Context, name string) []store.PersonRecord {
	f.calls = append(f.calls, "exact-name:"+name)
	return f.records
}

func (f *fakeStore) Close() error { return nil }

// testServer is a running server on an ephemeral loopback port.
type testServer struct {
	*Server
	cfg       Config
	clientTLS *tls.Config
}

// newTestServer creates a stopped server that logs through t and is stopped and drained
// when the test ends, so no handler outlives it.
func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	logger := zerolog.New(zerolog.NewTestWriter(t)).With().Timestamp().Logger()
	srv := New(append([]Option{WithLogger(logger)}, opts...)...)

	t.Cleanup(func() {
		require.NoError(t, srv.Stop())
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, srv.Drain(ctx))
	})

	return srv
}

// startTestServer runs a server whose primary store holds records.
func startTestServer(t *testing.T, records ...store.PersonRecord) *testServer {
	t.Helper()

	cfg := testConfig(t, testutil.SeedPersonDB(t, records...))

	srv := newTestServer(t)
	require.NoError(t, srv.Start(cfg))

	return &testServer{Server: srv, cfg: cfg, clientTLS: clientTLSConfig(t, cfg.CertFile)}
}

func testConfig(t *testing.T, primary string) Config {
	t.Helper()

	certFile, keyFile := testutil.WriteKeyPair(t, t.TempDir())

	return Config{
		Port:            0,
		BindAddress:     "127.0.0.1",
		PrimaryDBPath:   primary,
		SecondaryDBPath: testutil.EmptyDB(t),
		CertFile:        certFile,
		KeyFile:         keyFile,
		PollInterval:    50 * time.Millisecond,
	}
}

func clientTLSConfig(t *testing.T, certFile string) *tls.Config {
	t.Helper()

	pem, err := os.ReadFile(certFile)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(pem))

	return &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
}

// fetch sends request over a fresh TLS connection and returns everything the server wrote
// before closing it. It never fails the test, so it is safe off the test goroutine.
func (ts *testServer) fetch(request string) ([]byte, error) {
	dialer := &net.Dialer{Timeout: 5 * time.Second}
	conn, err := tls.DialWithDialer(dialer, "tcp", ts.Addr().String(), ts.clientTLS)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(10 * time.Second)); err != nil {
		return nil, err
	}

	if _, err := conn.Write([]byte(request)); err != nil {
		return nil, err
	}

	return io.ReadAll(conn)
}

func (ts *testServer) do(t *testing.T, request string) []byte {
	t.Helper()

	resp, err := ts.fetch(request)
	require.NoError(t, err)
	return resp
}
