package main

import (
	"errors"

	"github.com/spf13/cobra"

	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/graphpoc"
	"kgrbac.org/internal/obs"
)

func newGraphPoCCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph-poc",
		Short: "Build one dataset from PDFs and SQLite tables and search it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			eng, closeEngine, err := openEngine(ctx, a.cfg)
			if err != nil {
				return fail("graph_poc", err)
			}
			defer closeEngine()

			r := &graphpoc.Runner{
				Engine:    eng,
				Reporter:  demo.NewConsole(cmd.OutOrStdout()),
				DataDir:   a.cfg.DataDir,
				Migration: a.cfg.Migration,
			}
			_, err = r.Run(ctx)
			var stepErr *graphpoc.StepError
			if errors.As(err, &stepErr) {
				// Already reported; a failed step ends the run without failing the process.
				obs.Warn("graph_poc_step_failed", map[string]any{"step": stepErr.Step, "error": stepErr.Err})
				return nil
			}
			if err != nil {
				return fail("graph_poc", err)
			}
			return nil
		},
	}
}
