package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(appCtx *Context) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project manifest without loading anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := manifest.LoadDir(appCtx.Config.ProjectDir)
			if err != nil {
				return err
			}

			g, err := schema.Validate(project)
			if err != nil {
				return &ExitError{Code: exitFailed, Message: err.Error()}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project %q is valid: %d tables.\n", project.Name, len(project.Tables))
			fmt.Fprintf(out, "Load order: %s\n", strings.Join(g.LoadOrder, ", "))
			for i, level := range g.Levels {
				fmt.Fprintf(out, "  level %d: %s\n", i, strings.Join(level, ", "))
			}
			return nil
		},
	}
}
