package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"kgrbac.org/internal/config"
	"kgrbac.org/internal/obs"
)

const envFileFlag = "env-file"

var rootFlags = map[string]cobraflags.Flag{
	envFileFlag: &cobraflags.StringFlag{
		Name:  envFileFlag,
		Value: ".env",
		Usage: "Dotenv file read before the process environment",
	},
}

// app carries what every subcommand needs after startup.
type app struct {
	cfg config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "kgrbac",
		Short:         "Dataset-level RBAC demo over a knowledge-graph engine",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFile(rootFlags[envFileFlag].GetString())
			if err != nil {
				fmt.Fprintln(os.Stderr, "ERROR:", err)
				return err
			}
			a.cfg = cfg
			obs.Init()
			obs.InitBuildInfo(version, commit)
			return nil
		},
	}
	cobraflags.RegisterMap(root, rootFlags)

	root.AddCommand(
		newDemoCommand(a),
		newDashboardCommand(a),
		newBaselineCommand(a),
		newGraphPoCCommand(a),
		newMigrateCommand(a),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// fail logs err as JSON and returns it so cobra exits non-zero.
func fail(cmd string, err error) error {
	obs.Error(cmd+"_failed", map[string]any{"error": err})
	fmt.Fprintln(os.Stderr, "ERROR:", err)
	return err
}
