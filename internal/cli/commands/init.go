package commands

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kbforge/internal/manifest"
)

//go:embed templates
var templateFS embed.FS

// NewInitCommand creates the init command.
func NewInitCommand(appCtx *Context) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new kbforge project",
		Long: `Initialize a new kbforge project with a working example manifest.

This creates:
  - kbforge.yaml declaring a country/city schema
  - data/ directory with sample CSV files

Run 'kbforge run' afterwards to load the example into DuckDB.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := appCtx.Config.ProjectDir
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing manifest")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if existing := manifest.FindManifest(dir); existing != "" && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", existing)
	}

	err := fs.WalkDir(templateFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel("templates", path)
		dst := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
			return err
		}
		content, err := templateFS.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, content, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  created %s\n", rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "kbforge project initialized!")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Edit kbforge.yaml to declare your tables")
	fmt.Fprintln(out, "  2. Run 'kbforge validate' to check the schema")
	fmt.Fprintln(out, "  3. Run 'kbforge run' to load the knowledge base")
	return nil
}
