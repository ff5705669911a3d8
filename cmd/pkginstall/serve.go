package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"optiinfra/pkginstall/internal/httpapi"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP status/health/metrics surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := context.Background()

			router := httpapi.NewRouter(a.manager, a.log, a.metrics)

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-quit
				a.log.Infow("shutdown signal received")
				cancel()
			}()

			return httpapi.Serve(runCtx, a.cfg.ListenAddr, router, a.log)
		},
	}
}
