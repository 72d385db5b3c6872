// Package cli implements the kbforge command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kbforge/internal/cli/commands"
	"github.com/leapstack-labs/kbforge/internal/cli/config"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	appCtx := &commands.Context{}

	rootCmd := &cobra.Command{
		Use:   "kbforge",
		Short: "Compile declarative manifests into queryable knowledge bases",
		Long: `kbforge reads a kbforge.yaml project manifest, validates its schema,
loads records from the declared sources in dependency order, and emits a
query guide describing the resulting knowledge base.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			appCtx.Config = cfg
			appCtx.Logger = newLogger(cfg.Verbose)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: kbforge.yaml in project dir)")
	rootCmd.PersistentFlags().StringP("project-dir", "p", ".", "project directory containing kbforge.yaml")
	rootCmd.PersistentFlags().String("backend", "", "target backend (duckdb, postgres, graph)")
	rootCmd.PersistentFlags().String("db-path", "", "target database file (duckdb, graph)")
	rootCmd.PersistentFlags().String("dsn", "", "target connection string (postgres)")
	rootCmd.PersistentFlags().Int("batch-size", 0, "rows per write batch (0 = one batch per source)")
	rootCmd.PersistentFlags().String("state", "", "run history database path")
	rootCmd.PersistentFlags().String("skill", "", "skill artifact output path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(commands.NewRunCommand(appCtx))
	rootCmd.AddCommand(commands.NewValidateCommand(appCtx))
	rootCmd.AddCommand(commands.NewInitCommand(appCtx))
	rootCmd.AddCommand(commands.NewSkillCommand(appCtx))
	rootCmd.AddCommand(commands.NewRunsCommand(appCtx))
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *commands.ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, "Error:", exitErr.Message)
			}
			return exitErr.Code
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
