// Command stopgate runs the thoroughness stop gate as a plugin backend.
package main

import (
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stopgate/internal/cli"
)

// version is set at build time via ldflags.
var version = "dev"

type rootFlags struct {
	configPath string
	verbose    bool
}

// #region main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		cli.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:           "stopgate",
		Short:         "Keep agents working until thorough requests are finished",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "stopgate.yaml", "path to the YAML config file")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(
		newServeCmd(flags),
		newStdioCmd(flags),
		newMCPCmd(flags),
		newAnalyzeCmd(flags),
		newCallCmd(flags),
	)
	return cmd
}

// #endregion main
