package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/kbforge/internal/loader"
	"github.com/leapstack-labs/kbforge/internal/manifest"
	"github.com/leapstack-labs/kbforge/internal/schema"
	"github.com/leapstack-labs/kbforge/internal/skill"
	"github.com/leapstack-labs/kbforge/internal/source"
	"github.com/leapstack-labs/kbforge/internal/state"
	"github.com/leapstack-labs/kbforge/internal/writer"
)

// Exit codes for the run command.
const (
	exitSuccess = 0
	exitFailed  = 1
	exitPartial = 2
)

// NewRunCommand creates the run command.
func NewRunCommand(appCtx *Context) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Validate the manifest, load all sources, and emit the skill artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context(), appCtx)
		},
	}
}

func runLoad(ctx context.Context, appCtx *Context) error {
	cfg := appCtx.Config
	logger := appCtx.Logger

	project, err := manifest.LoadDir(cfg.ProjectDir)
	if err != nil {
		return err
	}

	w, err := writer.New(cfg.Target, logger)
	if err != nil {
		return fmt.Errorf("failed to open target: %w", err)
	}
	defer w.Close()

	orch := loader.New(loader.Config{
		Logger: logger,
		NewConnector: func(src manifest.Source) (source.Connector, error) {
			return source.New(src, cfg.ProjectDir, logger)
		},
		Writer:    w,
		BatchSize: cfg.Load.BatchSize,
		Emit:      skillEmitter(cfg.SkillPath()),
	})

	rep, runErr := orch.Run(ctx, project)

	if rep != nil {
		recordRun(appCtx, rep)
		renderReport(os.Stdout, rep)
	}

	if runErr != nil {
		return &ExitError{Code: exitFailed, Message: runErr.Error()}
	}
	switch rep.Outcome() {
	case loader.OutcomeFailed:
		return &ExitError{Code: exitFailed, Message: "load failed: one or more tables received no rows"}
	case loader.OutcomePartial:
		return &ExitError{Code: exitPartial, Message: ""}
	}
	return nil
}

// skillEmitter returns an emit function writing the rendered guide to
// path, or nil when emission is disabled.
func skillEmitter(path string) loader.EmitFunc {
	if path == "" {
		return nil
	}
	return func(ctx context.Context, g *schema.Graph, rep *loader.Report) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return os.WriteFile(path, []byte(skill.Render(g, rep)), 0o644)
	}
}

// recordRun persists the report to the run-history store. History is
// best effort; failures are logged and never affect the load outcome.
func recordRun(appCtx *Context, rep *loader.Report) {
	path := appCtx.Config.StatePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		appCtx.Logger.Warn("failed to create state directory", "path", path, "error", err)
		return
	}
	store := state.NewStore()
	if err := store.Open(path); err != nil {
		appCtx.Logger.Warn("failed to open run history", "path", path, "error", err)
		return
	}
	defer store.Close()
	if err := store.InitSchema(); err != nil {
		appCtx.Logger.Warn("failed to initialize run history", "error", err)
		return
	}
	if err := store.RecordRun(rep); err != nil {
		appCtx.Logger.Warn("failed to record run", "run_id", rep.RunID, "error", err)
	}
}
