package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// fileConnector reads a static CSV file from the project directory.
type fileConnector struct {
	source  string
	baseDir string
	opts    FileOptions
	logger  *slog.Logger
}

func (c *fileConnector) Name() string { return "file" }

func (c *fileConnector) Open(ctx context.Context, tbl *manifest.Table) (Iterator, error) {
	path := c.opts.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.baseDir, path)
	}

	c.logger.Debug("opening file source", "source", c.source, "table", tbl.Name, "path", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, &ConnectionError{Source: c.source, Err: err}
	}

	var r io.Reader = f
	if c.opts.Encoding != "" {
		r, err = decodeReader(f, c.opts.Encoding)
		if err != nil {
			_ = f.Close()
			return nil, &ConnectionError{Source: c.source, Err: err}
		}
	}

	it, err := newCSVIterator(c.source, r, f, tbl, c.opts.Header, c.opts.Delimiter)
	if err != nil {
		_ = f.Close()
		return nil, &ConnectionError{Source: c.source, Err: err}
	}
	return it, nil
}

// decodeReader wraps r with a decoder for the given IANA encoding label.
// UTF-8 input passes through untouched.
func decodeReader(r io.Reader, label string) (io.Reader, error) {
	if strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return r, nil
	}
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}
