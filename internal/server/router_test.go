package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/personlookup/internal/store"
	"github.com/wolfeidau/personlookup/internal/testutil"
)

func TestParseRequestLine(t *testing.T) {
	tests := []struct {
		name       string
		buf        string
		wantMethod string
		wantPath   string
		wantOK     bool
	}{
		{name: "request line", buf: "GET /a HTTP/1.1\r\nHost: x\r\n\r\n", wantMethod: "GET", wantPath: "/a", wantOK: true},
		{name: "no version", buf: "GET /a", wantMethod: "GET", wantPath: "/a", wantOK: true},
		{name: "leading whitespace", buf: "  \r\n GET\t/a", wantMethod: "GET", wantPath: "/a", wantOK: true},
		{name: "tokens on separate lines", buf: "GET\r\n/a\r\n", wantMethod: "GET", wantPath: "/a", wantOK: true},
		{name: "vertical tab and form feed separate", buf: "GET\v/a\f", wantMethod: "GET", wantPath: "/a", wantOK: true},
		{name: "no-break space stays in path", buf: "GET /get-person-by-exact-name/Maria\u00a0Silva HTTP/1.1\r\n", wantMethod: "GET", wantPath: "/get-person-by-exact-name/Maria\u00a0Silva", wantOK: true},
		{name: "next line stays in path", buf: "GET /get-person-by-name/a\u0085b HTTP/1.1\r\n", wantMethod: "GET", wantPath: "/get-person-by-name/a\u0085b", wantOK: true},
		{name: "ideographic space stays in method", buf: "GET\u3000 /a", wantMethod: "GET\u3000", wantPath: "/a", wantOK: true},
		{name: "single token", buf: "GET\r\n", wantOK: false},
		{name: "blank", buf: " \r\n\r\n", wantOK: false},
		{name: "long method truncated", buf: strings.Repeat("M", 20) + " /a", wantMethod: strings.Repeat("M", 15), wantPath: "/a", wantOK: true},
		{name: "long path truncated", buf: "GET /" + strings.Repeat("p", 300), wantMethod: "GET", wantPath: "/" + strings.Repeat("p", 254), wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, path, ok := parseRequestLine([]byte(tt.buf))
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantMethod, method)
			require.Equal(t, tt.wantPath, path)
		})
	}
}

func TestMatchRoute(t *testing.T) {
	tests := []struct {
		path       string
		wantLookup store.Lookup
		wantSuffix string
		wantOK     bool
	}{
		{path: "/get-person-by-cpf/11122233344", wantLookup: store.LookupIdentifier, wantSuffix: "11122233344", wantOK: true},
		{path: "/get-person-by-name/sil", wantLookup: store.LookupName, wantSuffix: "sil", wantOK: true},
		{path: "/get-person-by-exact-name/MARIA", wantLookup: store.LookupExactName, wantSuffix: "MARIA", wantOK: true},
		{path: "/get-person-by-name/Maria%20Silva", wantLookup: store.LookupName, wantSuffix: "Maria%20Silva", wantOK: true},
		{path: "/get-person-by-cpf/", wantLookup: store.LookupIdentifier, wantSuffix: "", wantOK: true},
		{path: "/get-person-by-cpf", wantOK: false},
		{path: "/get-person-by-cnpj/1", wantOK: false},
		{path: "/", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r, suffix, ok := matchRoute(tt.path)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.wantLookup, r.lookup)
			require.Equal(t, tt.wantOK, r.run != nil)
			require.Equal(t, tt.wantSuffix, suffix)
		})
	}
}

func TestServeRequestRejections(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		wantCode int
	}{
		{name: "missing path", request: "GET\r\n\r\n", wantCode: http.StatusBadRequest},
		{name: "whitespace only", request: "\r\n\r\n", wantCode: http.StatusBadRequest},
		{name: "post", request: "POST /get-person-by-cpf/1 HTTP/1.1\r\n\r\n", wantCode: http.StatusMethodNotAllowed},
		{name: "lower case get", request: "get /get-person-by-cpf/1 HTTP/1.1\r\n\r\n", wantCode: http.StatusMethodNotAllowed},
		{name: "unknown path", request: "GET /get-company/1 HTTP/1.1\r\n\r\n", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeStore{}
			conn := newFakeConn(tt.request)

			code := New().serveRequest(context.Background(), conn, Stores{Primary: primary, Secondary: &fakeStore{}})

			require.Equal(t, tt.wantCode, code)
			want := fmt.Sprintf("HTTP/1.1 %d %s\r\nContent-Length: 0\r\n\r\n", tt.wantCode, http.StatusText(tt.wantCode))
			require.Equal(t, want, conn.out.String())
			require.Empty(t, primary.calls)
		})
	}
}

func TestServeRequestPeerClosed(t *testing.T) {
	conn := newFakeConn("")

	code := New().serveRequest(context.Background(), conn, Stores{Primary: &fakeStore{}, Secondary: &fakeStore{}})

	require.Zero(t, code)
	require.Zero(t, conn.out.Len())
}

func TestServeRequestDispatch(t *testing.T) {
	tests := []struct {
		name       string
		request    string
		wantCall   string
		wantChunks int
	}{
		{name: "identifier", request: "GET /get-person-by-cpf/11122233344 HTTP/1.1\r\n\r\n", wantCall: "identifier:11122233344", wantChunks: 1},
		{name: "substring", request: "GET /get-person-by-name/sil HTTP/1.1\r\n\r\n", wantCall: "name:sil", wantChunks: 4},
		{name: "exact name", request: "GET /get-person-by-exact-name/MARIA HTTP/1.1\r\n\r\n", wantCall: "exact-name:MARIA", wantChunks: 1},
		{name: "suffix is not url decoded", request: "GET /get-person-by-exact-name/MARIA%20SILVA HTTP/1.1\r\n\r\n", wantCall: "exact-name:MARIA%20SILVA", wantChunks: 1},
		{name: "unicode space is part of the suffix", request: "GET /get-person-by-exact-name/Maria\u00a0Silva HTTP/1.1\r\n\r\n", wantCall: "exact-name:Maria\u00a0Silva", wantChunks: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &fakeStore{records: []store.PersonRecord{testutil.MariaSilva}}
			secondary := &fakeStore{}
			conn := newFakeConn(tt.request)

			code := New().serveRequest(context.Background(), conn, Stores{Primary: primary, Secondary: secondary})

			require.Equal(t, http.StatusOK, code)
			require.Equal(t, []string{tt.wantCall}, primary.calls)
			require.Empty(t, secondary.calls)

			header, chunks := splitResponse(t, conn.out.Bytes())
			require.Equal(t, chunkedHeader, header)
			require.Len(t, chunks, tt.wantChunks)
			require.Contains(t, chunks[len(chunks)-1], mariaJSON)
		})
	}
}

func TestServeRequestEmptyResult(t *testing.T) {
	conn := newFakeConn("GET /get-person-by-cpf/00000000000 HTTP/1.1\r\n\r\n")

	code := New().serveRequest(context.Background(), conn, Stores{Primary: &fakeStore{}, Secondary: &fakeStore{}})

	require.Equal(t, http.StatusOK, code)
	_, chunks := splitResponse(t, conn.out.Bytes())
	require.Equal(t, []string{`{"results":[]}`}, chunks)
}
