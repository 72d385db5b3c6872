package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
	"github.com/leapstack-labs/kbforge/internal/skill"
)

// NewSkillCommand creates the skill command. It regenerates the query
// guide from the manifest alone, without loading any data, so the
// artifact carries no load statistics.
func NewSkillCommand(appCtx *Context) *cobra.Command {
	var stdout bool

	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Regenerate the skill artifact from the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			project, err := manifest.LoadDir(appCtx.Config.ProjectDir)
			if err != nil {
				return err
			}

			g, err := schema.Validate(project)
			if err != nil {
				return &ExitError{Code: exitFailed, Message: err.Error()}
			}

			content := skill.Render(g, nil)
			if stdout {
				fmt.Fprint(cmd.OutOrStdout(), content)
				return nil
			}

			path := appCtx.Config.SkillPath()
			if path == "" {
				return fmt.Errorf("skill emission is disabled; set skill.path or use --stdout")
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&stdout, "stdout", false, "print the artifact instead of writing it")
	return cmd
}
