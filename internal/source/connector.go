// Package source implements the connector protocol: each connector pulls
// raw records for one table from one declared source. Connectors surface
// two failure modes. A connection failure means the source is unusable
// and its load is skipped; a format failure covers one malformed record,
// which is rejected while the connector continues with the rest.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// Record is one raw record: a mapping from column name to an untyped
// value (string, number, boolean, or nil).
type Record map[string]any

// Iterator is a forward-only, non-restartable stream of raw records.
//
// Next returns io.EOF at end of stream. A *FormatError return rejects
// the current record only; the caller counts it and keeps calling Next.
// Any other error means the stream is broken and must be abandoned.
type Iterator interface {
	Next(ctx context.Context) (Record, error)
	Close() error
}

// Connector fetches raw records for one table from one source.
type Connector interface {
	// Name identifies the connector for logs and the load report.
	Name() string

	// Open starts the record stream. A *ConnectionError means the source
	// is unreachable or unusable; the table's load for this source is
	// skipped and reported, not fatal to the run.
	Open(ctx context.Context, tbl *manifest.Table) (Iterator, error)
}

// ConnectionError reports an unreachable or unusable source.
type ConnectionError struct {
	Source string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("source %q: %v", e.Source, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FormatError reports a single malformed record. Record is the 1-based
// position within the stream.
type FormatError struct {
	Source string
	Record int
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("source %q: record %d: %v", e.Source, e.Record, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// New constructs the connector for a declared source. The source kind
// set is closed, so construction is an explicit switch rather than a
// runtime registry. baseDir anchors relative file paths and is the
// working directory for exec sources.
func New(src manifest.Source, baseDir string, logger *slog.Logger) (Connector, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	switch src.Kind {
	case manifest.SourceFile:
		opts, err := DecodeFileOptions(src)
		if err != nil {
			return nil, err
		}
		return &fileConnector{source: src.Name, baseDir: baseDir, opts: opts, logger: logger}, nil
	case manifest.SourceHTTP:
		opts, err := DecodeHTTPOptions(src)
		if err != nil {
			return nil, err
		}
		return &httpConnector{source: src.Name, opts: opts, logger: logger}, nil
	case manifest.SourceExec:
		opts, err := DecodeExecOptions(src)
		if err != nil {
			return nil, err
		}
		return &execConnector{source: src.Name, baseDir: baseDir, opts: opts, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}
