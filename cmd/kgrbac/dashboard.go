package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"kgrbac.org/internal/dashboard"
	"kgrbac.org/internal/demo"
	"kgrbac.org/internal/grpcapi"
	"kgrbac.org/internal/obs"
	"kgrbac.org/internal/scenario"
)

func newDashboardCommand(a *app) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the interactive scenario dashboard and the gRPC API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := serveDashboard(a, reset); err != nil {
				return fail("dashboard", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", true, "Prune engine storage once, before the first session builds its state")
	return cmd
}

func serveDashboard(a *app, reset bool) error {
	ctx, stop := signalContext()
	defer stop()

	eng, closeEngine, err := openEngine(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	set, err := scenario.Default()
	if err != nil {
		return err
	}
	backend := &demo.Shared{Harness: &demo.Harness{Engine: eng, DataDir: a.cfg.DataDir}, Reset: reset}

	dash, err := dashboard.New(backend, set, dashboard.Config{
		Version:       version,
		SessionSecret: a.cfg.SessionSecret,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           dash.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Engine calls have no deadline, so neither do responses.
	}

	errCh := make(chan error, 2)
	go func() {
		obs.Info("dashboard_listening", map[string]any{"addr": srv.Addr, "version": version})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var gs *grpc.Server
	var api *grpcapi.Server
	if a.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr)
		if err != nil {
			_ = srv.Close()
			return err
		}
		gs = grpc.NewServer()
		api = grpcapi.NewServer(backend, set)
		api.Register(gs)
		go func() {
			obs.Info("grpc_listening", map[string]any{"addr": a.cfg.GRPCAddr})
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}
	obs.Info("dashboard_shutdown", nil)

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if api != nil {
		api.Shutdown()
	}
	if gs != nil {
		gs.GracefulStop()
	}
	if serr := srv.Shutdown(sctx); serr != nil && err == nil {
		err = serr
	}
	return err
}
