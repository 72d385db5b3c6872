package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kbforge/internal/state"
)

// NewRunsCommand creates the runs command, listing recorded load runs.
func NewRunsCommand(appCtx *Context) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show run history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := appCtx.Config.StatePath()
			if path == "" {
				return fmt.Errorf("run history is disabled; set load.state_path")
			}
			if _, err := os.Stat(path); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "(no recorded runs)")
				return nil
			}

			store := state.NewStore()
			if err := store.Open(path); err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				sum, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				if sum == nil {
					return fmt.Errorf("no run with id %q", args[0])
				}
				renderRuns(cmd.OutOrStdout(), []state.RunSummary{*sum})
				if sum.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Error: %s\n", sum.Error)
				}
				return nil
			}

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to list")
	return cmd
}
