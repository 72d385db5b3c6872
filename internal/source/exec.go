package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

// execConnector runs a command in the project directory and parses its
// stdout as CSV. The command runs once per Open; the stream is not
// restartable.
type execConnector struct {
	source  string
	baseDir string
	opts    ExecOptions
	logger  *slog.Logger
}

func (c *execConnector) Name() string { return "exec" }

func (c *execConnector) Open(ctx context.Context, tbl *manifest.Table) (Iterator, error) {
	c.logger.Debug("running exec source", "source", c.source, "table", tbl.Name,
		"command", c.opts.Command, "args", c.opts.Args)

	cmd := exec.CommandContext(ctx, c.opts.Command, c.opts.Args...)
	cmd.Dir = c.baseDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ConnectionError{
				Source: c.source,
				Err: fmt.Errorf("command %q exited with status %d: %s",
					c.opts.Command, exitErr.ExitCode(), strings.TrimSpace(stderr.String())),
			}
		}
		return nil, &ConnectionError{Source: c.source, Err: fmt.Errorf("failed to run command %q: %w", c.opts.Command, err)}
	}

	var r io.Reader = &stdout
	if c.opts.Encoding != "" {
		decoded, err := decodeReader(&stdout, c.opts.Encoding)
		if err != nil {
			return nil, &ConnectionError{Source: c.source, Err: err}
		}
		r = decoded
	}

	it, err := newCSVIterator(c.source, r, nil, tbl, c.opts.Header, "")
	if err != nil {
		return nil, &ConnectionError{Source: c.source, Err: err}
	}
	return it, nil
}
