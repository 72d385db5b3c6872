package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// csvIterator streams records out of CSV input. It is shared by the file
// and exec connectors, which differ only in where the bytes come from.
//
// Records are parsed one at a time: each logical record is assembled from
// physical lines (continuing across lines only while a quoted field is
// still open) and handed to its own encoding/csv parse. A parse failure
// rejects that record alone and the stream resumes at the next line, so
// one malformed row never consumes the rest of the source.
type csvIterator struct {
	source    string
	input     *bufio.Reader
	closer    io.Closer // nil when the input is already in memory
	columns   []manifest.Column
	header    map[string]int // nil in positional mode
	delimiter rune
	pending   []string // lines reclaimed from a failed record
	recno     int
	eof       bool
}

// A quoted field spanning more lines than this is treated as malformed.
const maxQuotedLines = 1024

// newCSVIterator prepares a record stream over r. When hasHeader is set,
// the header row is consumed immediately and fields map to table columns
// by name; otherwise fields map by declaration position. A declared
// column missing from the header makes the whole source unusable.
func newCSVIterator(sourceName string, r io.Reader, closer io.Closer, tbl *manifest.Table, hasHeader bool, delimiter string) (*csvIterator, error) {
	comma := ','
	if delimiter != "" {
		comma = rune(delimiter[0])
	}

	it := &csvIterator{
		source:    sourceName,
		input:     bufio.NewReader(r),
		closer:    closer,
		columns:   tbl.Columns,
		delimiter: comma,
	}

	if hasHeader {
		row, err := it.readRow()
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV header: %w", err)
		}
		it.header = make(map[string]int, len(row))
		for i, name := range row {
			it.header[strings.TrimSpace(name)] = i
		}
		for _, col := range tbl.Columns {
			if _, ok := it.header[col.Name]; !ok {
				return nil, fmt.Errorf("column %q not found in CSV header", col.Name)
			}
		}
	}

	return it, nil
}

func (it *csvIterator) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row, err := it.readRow()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		it.recno++
		return nil, &FormatError{Source: it.source, Record: it.recno, Err: err}
	}
	it.recno++

	rec := make(Record, len(it.columns))
	for i, col := range it.columns {
		idx := i
		if it.header != nil {
			idx = it.header[col.Name]
		}
		if idx >= len(row) {
			return nil, &FormatError{
				Source: it.source,
				Record: it.recno,
				Err:    fmt.Errorf("row has %d fields, column %q needs field %d", len(row), col.Name, idx+1),
			}
		}
		rec[col.Name] = row[idx]
	}
	return rec, nil
}

// readRow assembles and parses the next logical record. Physical lines
// accumulate while a quoted field remains open. When the parse fails,
// only the first line is charged to the error; the remaining buffered
// lines go back on the queue for later records.
func (it *csvIterator) readRow() ([]string, error) {
	first, err := it.nextLine()
	if err != nil {
		return nil, err
	}

	buf := []string{first}
	for quoteOpen(strings.Join(buf, "\n")) && len(buf) < maxQuotedLines {
		line, err := it.nextLine()
		if err != nil {
			break
		}
		buf = append(buf, line)
	}

	cr := csv.NewReader(strings.NewReader(strings.Join(buf, "\n")))
	cr.Comma = it.delimiter
	cr.TrimLeadingSpace = true
	row, err := cr.Read()
	if err != nil {
		it.pending = append(buf[1:], it.pending...)
		return nil, err
	}
	return row, nil
}

// nextLine yields the next non-blank physical line, draining reclaimed
// lines before reading more input.
func (it *csvIterator) nextLine() (string, error) {
	for {
		var line string
		switch {
		case len(it.pending) > 0:
			line = it.pending[0]
			it.pending = it.pending[1:]
		case it.eof:
			return "", io.EOF
		default:
			raw, err := it.input.ReadString('\n')
			if err == io.EOF {
				it.eof = true
			} else if err != nil {
				return "", err
			}
			line = raw
		}
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			return line, nil
		}
	}
}

// quoteOpen reports whether s ends inside an unterminated quoted field.
// Escaped quotes inside a quoted field come in pairs, so an odd count
// means the field is still open.
func quoteOpen(s string) bool {
	return strings.Count(s, `"`)%2 == 1
}

func (it *csvIterator) Close() error {
	if it.closer != nil {
		return it.closer.Close()
	}
	return nil
}
