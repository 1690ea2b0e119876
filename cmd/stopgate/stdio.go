package main

import (
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stopgate/internal/app"
	"github.com/danielpatrickdp/stopgate/internal/cli"
	"github.com/danielpatrickdp/stopgate/internal/notify"
)

func newStdioCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Answer hook requests as JSON lines on stdin/stdout",
		Long: "Reads one JSON request per line from stdin and writes one response per line to stdout.\n" +
			"Review prompts are written to the same stream as inject lines unless another notifier is configured.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := cli.Bootstrap(flags.configPath, flags.verbose)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if cfg.Notifier.Kind == notify.KindNone {
				cfg.Notifier.Kind = notify.KindStdio
			}

			a, err := app.New(cfg, log, app.Options{Out: os.Stdout, OutMu: &sync.Mutex{}})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := withSignals(cmd.Context())
			defer stop()
			return a.ServeStdio(ctx, os.Stdin)
		},
	}
}
