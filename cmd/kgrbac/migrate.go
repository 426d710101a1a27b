package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kgrbac.org/internal/migrate"
	"kgrbac.org/internal/store/pg"
	"kgrbac.org/internal/store/pg/migrations"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Manage the Postgres schema of the in-process engine",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.PostgresDSN == "" {
				return fail("migrate", errors.New("missing DSN: set KGRBAC_PG_DSN"))
			}
			store, err := pg.Open(a.cfg.PostgresDSN)
			if err != nil {
				return fail("migrate", err)
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			mgr := migrate.NewManager(store.DB(), migrations.FS)

			out := cmd.OutOrStdout()
			switch args[0] {
			case "up":
				err = mgr.Up(ctx)
			case "down":
				err = mgr.Down(ctx)
			case "status":
				var applied, pending []string
				if applied, err = mgr.Status(ctx); err != nil {
					break
				}
				if pending, err = mgr.Pending(ctx); err != nil {
					break
				}
				for _, name := range applied {
					fmt.Fprintf(out, "applied  %s\n", name)
				}
				for _, name := range pending {
					fmt.Fprintf(out, "pending  %s\n", name)
				}
			}
			if err != nil {
				return fail("migrate", fmt.Errorf("%s: %w", args[0], err))
			}
			return nil
		},
	}
}
