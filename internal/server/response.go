package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/wolfeidau/personlookup/internal/store"
)

const chunkedHeader = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: application/json\r\n" +
	"Transfer-Encoding: chunked\r\n" +
	"Connection: close\r\n\r\n"

// Progress payloads sent ahead of a substring lookup. They do not track the query; clients
// depend on this exact sequence.
var stagedProgress = [][]byte{
	[]byte(`{"status":"searching","message":"Iniciando busca...","progress":0,"isComplete":false}`),
	[]byte(`{"status":"searching","progress":25,"isComplete":false}`),
	[]byte(`{"status":"processing","progress":75,"isComplete":false}`),
}

type resultsPayload struct {
	Results []store.PersonRecord `json:"results"`
}

type completePayload struct {
	Status     string               `json:"status"`
	Progress   int                  `json:"progress"`
	IsComplete bool                 `json:"isComplete"`
	Results    []store.PersonRecord `json:"results"`
}

// chunkedWriter writes a 200 response framed with chunked transfer encoding. Every chunk
// is flushed as soon as it is written. The first write error sticks and is returned by
// every later call.
type chunkedWriter struct {
	w   *bufio.Writer
	err error
}

func newChunkedWriter(w io.Writer) *chunkedWriter {
	return &chunkedWriter{w: bufio.NewWriter(w)}
}

// WriteHeader writes the status line and headers.
func (c *chunkedWriter) WriteHeader() error {
	if c.err != nil {
		return c.err
	}
	_, c.err = c.w.WriteString(chunkedHeader)
	return c.flush()
}

// WriteChunk writes p as one chunk. An empty p is skipped, since a zero-length chunk
// ends the stream.
func (c *chunkedWriter) WriteChunk(p []byte) error {
	if c.err != nil {
		return c.err
	}
	if len(p) == 0 {
		return nil
	}

	c.w.WriteString(strconv.FormatInt(int64(len(p)), 16))
	c.w.WriteString("\r\n")
	c.w.Write(p)
	_, c.err = c.w.WriteString("\r\n")
	return c.flush()
}

// WriteJSON encodes v and writes it as one chunk.
func (c *chunkedWriter) WriteJSON(v any) error {
	if c.err != nil {
		return c.err
	}
	p, err := encodeJSON(v)
	if err != nil {
		c.err = err
		return err
	}
	return c.WriteChunk(p)
}

// Close writes the terminating zero-length chunk.
func (c *chunkedWriter) Close() error {
	if c.err != nil {
		return c.err
	}
	_, c.err = c.w.WriteString("0\r\n\r\n")
	return c.flush()
}

func (c *chunkedWriter) flush() error {
	if c.err == nil {
		c.err = c.w.Flush()
	}
	return c.err
}

// writeStatus answers with a bodiless status response.
func writeStatus(w io.Writer, code int) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nContent-Length: 0\r\n\r\n", code, http.StatusText(code))
	return err
}

// writeResults sends records as a single {"results":[...]} chunk.
func writeResults(w io.Writer, records []store.PersonRecord) error {
	cw := newChunkedWriter(w)
	cw.WriteHeader()
	cw.WriteJSON(resultsPayload{Results: nonNil(records)})
	return cw.Close()
}

// writeStaged sends the fixed progress chunks, runs lookup, then sends the completion chunk.
// lookup is not run when the progress chunks cannot be written.
func writeStaged(w io.Writer, lookup func() []store.PersonRecord) ([]store.PersonRecord, error) {
	cw := newChunkedWriter(w)
	cw.WriteHeader()
	for _, p := range stagedProgress {
		cw.WriteChunk(p)
	}
	if err := cw.flush(); err != nil {
		return nil, err
	}

	records := nonNil(lookup())

	cw.WriteJSON(completePayload{
		Status:     "complete",
		Progress:   100,
		IsComplete: true,
		Results:    records,
	})
	return records, cw.Close()
}

// encodeJSON marshals v compactly without escaping HTML characters.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func nonNil(records []store.PersonRecord) []store.PersonRecord {
	if records == nil {
		return []store.PersonRecord{}
	}
	return records
}
