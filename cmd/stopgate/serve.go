package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/app"
	"github.com/danielpatrickdp/stopgate/internal/cli"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var grpcAddr, httpAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the plugin over gRPC and the status API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := cli.Bootstrap(flags.configPath, flags.verbose)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if grpcAddr != "" {
				cfg.GRPC.Addr = grpcAddr
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}

			a, err := app.New(cfg, log, app.Options{Out: os.Stdout})
			if err != nil {
				return err
			}
			defer a.Close()

			grpcLis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
			}
			var httpLis net.Listener
			if cfg.HTTP.Addr != "" {
				httpLis, err = net.Listen("tcp", cfg.HTTP.Addr)
				if err != nil {
					grpcLis.Close()
					return fmt.Errorf("listen http %s: %w", cfg.HTTP.Addr, err)
				}
			}

			ctx, stop := withSignals(cmd.Context())
			defer stop()
			err = a.ServeNetwork(ctx, grpcLis, httpLis)
			log.Info("shut down", zap.Error(err))
			return err
		},
	}
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "gRPC listen address (overrides config)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "status API listen address (overrides config)")
	return cmd
}

func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
