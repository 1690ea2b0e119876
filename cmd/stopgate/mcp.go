package main

import (
	"errors"
	"fmt"
	"net"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/app"
	"github.com/danielpatrickdp/stopgate/internal/cli"
	"github.com/danielpatrickdp/stopgate/internal/notify"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	var withPlugin bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose thoroughness tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := cli.Bootstrap(flags.configPath, flags.verbose)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			// stdout carries MCP frames
			if cfg.Notifier.Kind == notify.KindStdio {
				cfg.Notifier.Kind = notify.KindNone
			}

			a, err := app.New(cfg, log, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := withSignals(cmd.Context())
			defer stop()

			errc := make(chan error, 1)
			if withPlugin {
				lis, err := net.Listen("tcp", cfg.GRPC.Addr)
				if err != nil {
					return fmt.Errorf("listen grpc %s: %w", cfg.GRPC.Addr, err)
				}
				go func() { errc <- a.ServeNetwork(ctx, lis, nil) }()
			}

			err = server.ServeStdio(a.MCPServer())
			stop()
			if withPlugin {
				if perr := <-errc; perr != nil {
					log.Warn("plugin service", zap.Error(perr))
					err = errors.Join(err, perr)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&withPlugin, "plugin", false, "also serve the gRPC plugin so tools see live sessions")
	return cmd
}
