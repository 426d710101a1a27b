package main

import (
	"github.com/spf13/cobra"

	"kgrbac.org/internal/demo"
)

func newDemoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the scripted RBAC walkthrough",
		Long: `Reset the engine, create the Alpha and Beta organizations, ingest both
due diligence questionnaires and run the six illustrative queries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			eng, closeEngine, err := openEngine(ctx, a.cfg)
			if err != nil {
				return fail("demo", err)
			}
			defer closeEngine()

			h := &demo.Harness{
				Engine:   eng,
				Reporter: demo.NewConsole(cmd.OutOrStdout()),
				DataDir:  a.cfg.DataDir,
			}
			if _, err := h.BuildState(ctx, demo.Options{Reset: true, RunPlaybook: true}); err != nil {
				return fail("demo", err)
			}
			return nil
		},
	}
}
