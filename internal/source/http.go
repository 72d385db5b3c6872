package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// httpConnector pulls records from a dynamic API. The endpoint must
// return a JSON array of objects; each object is one raw record.
type httpConnector struct {
	source string
	opts   HTTPOptions
	logger *slog.Logger
	client *http.Client
}

func (c *httpConnector) Name() string { return "http" }

func (c *httpConnector) Open(ctx context.Context, tbl *manifest.Table) (Iterator, error) {
	method := c.opts.Method
	if method == "" {
		method = http.MethodGet
	}

	c.logger.Debug("requesting http source", "source", c.source, "table", tbl.Name,
		"method", method, "url", c.opts.URL)

	req, err := http.NewRequestWithContext(ctx, method, c.opts.URL, nil)
	if err != nil {
		return nil, &ConnectionError{Source: c.source, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}

	client := c.client
	if client == nil {
		client = &http.Client{Timeout: c.opts.TimeoutDuration()}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &ConnectionError{Source: c.source, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, &ConnectionError{Source: c.source, Err: fmt.Errorf("unexpected status %s from %s", resp.Status, c.opts.URL)}
	}

	dec := json.NewDecoder(resp.Body)
	tok, err := dec.Token()
	if err != nil {
		_ = resp.Body.Close()
		return nil, &ConnectionError{Source: c.source, Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		_ = resp.Body.Close()
		return nil, &ConnectionError{Source: c.source, Err: fmt.Errorf("response is not a JSON array (starts with %v)", tok)}
	}

	return &jsonIterator{source: c.source, dec: dec, body: resp.Body}, nil
}

// jsonIterator streams the elements of a JSON array. A non-object
// element rejects that element only; a broken stream ends iteration
// after reporting the failure once.
type jsonIterator struct {
	source string
	dec    *json.Decoder
	body   io.ReadCloser
	recno  int
	broken bool
}

func (it *jsonIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.broken || !it.dec.More() {
		return nil, io.EOF
	}

	it.recno++

	var raw json.RawMessage
	if err := it.dec.Decode(&raw); err != nil {
		// The decoder cannot recover mid-array. Report the failure for
		// this record and end the stream.
		it.broken = true
		return nil, &FormatError{Source: it.source, Record: it.recno, Err: fmt.Errorf("malformed JSON: %w", err)}
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, &FormatError{Source: it.source, Record: it.recno, Err: fmt.Errorf("array element is not an object")}
	}
	return rec, nil
}

func (it *jsonIterator) Close() error {
	return it.body.Close()
}
