// Package commands implements the kbforge subcommands.
package commands

import (
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/kbforge/internal/cli/config"
)

// Context carries shared state from the root command into subcommands.
// Fields are populated by the root command's PersistentPreRunE before
// any subcommand runs.
type Context struct {
	Config *config.Config
	Logger *slog.Logger
}

// ExitError signals a specific process exit code. Commands return it
// when the outcome maps to a contract code rather than a plain error.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("exit code %d", e.Code)
}
