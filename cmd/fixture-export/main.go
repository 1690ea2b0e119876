// Command fixture-export turns audited hook traffic into a replay fixture.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/cli"
	"github.com/danielpatrickdp/stopgate/internal/replay"
)

// #region main

func main() {
	if err := newCmd().Execute(); err != nil {
		cli.Fatal(err)
	}
}

func newCmd() *cobra.Command {
	var dbPath, outPath, sessionID, description string
	var maxDenials int
	cmd := &cobra.Command{
		Use:           "fixture-export",
		Short:         "Export audited sessions as a replay fixture",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" || outPath == "" {
				return fmt.Errorf("--db and --out are required")
			}
			n, err := run(dbPath, outPath, sessionID, description, maxDenials)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d steps to %s\n", n, outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the audit database")
	cmd.Flags().StringVar(&outPath, "out", "", "output fixture JSON path")
	cmd.Flags().StringVar(&sessionID, "session", "", "export one session only")
	cmd.Flags().StringVar(&description, "description", "", "fixture description")
	cmd.Flags().IntVar(&maxDenials, "max-denials", 3, "review limit the recorded sessions ran with")
	return cmd
}

// #endregion main

// #region export

func run(dbPath, outPath, sessionID, description string, maxDenials int) (int, error) {
	db, err := audit.NewStore(dbPath)
	if err != nil {
		return 0, fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	f, err := replay.Export(db, sessionID, maxDenials)
	if err != nil {
		return 0, err
	}
	if len(f.Steps) == 0 {
		return 0, fmt.Errorf("no events recorded")
	}
	if description != "" {
		f.Description = description
	}
	if err := replay.WriteFixture(outPath, f); err != nil {
		return 0, err
	}
	return len(f.Steps), nil
}

// #endregion export
