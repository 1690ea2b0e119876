// Command replay runs recorded hook traffic through a fresh gate and reports
// where the decisions differ from what was expected.
package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/cli"
	"github.com/danielpatrickdp/stopgate/internal/replay"
)

var errMismatch = errors.New("replay did not match expectations")

// #region main

func main() {
	if err := newCmd().Execute(); err != nil {
		cli.Fatal(err)
	}
}

func newCmd() *cobra.Command {
	var dbPath, fixturePath, sessionID string
	var maxDenials int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:           "replay",
		Short:         "Replay a fixture or an audit log through the stop gate",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (dbPath == "") == (fixturePath == "") {
				return fmt.Errorf("exactly one of --db or --fixture is required")
			}
			var (
				f   *replay.Fixture
				err error
			)
			if fixturePath != "" {
				f, err = replay.LoadFixture(fixturePath)
			} else {
				f, err = fromDB(dbPath, sessionID, maxDenials)
			}
			if err != nil {
				return err
			}
			return run(cmd.OutOrStdout(), f, jsonOut)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the audit database (DB mode)")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to fixture JSON (fixture mode)")
	cmd.Flags().StringVar(&sessionID, "session", "", "limit DB mode to one session")
	cmd.Flags().IntVar(&maxDenials, "max-denials", 3, "review limit the recorded sessions ran with (DB mode)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output results as JSON")
	return cmd
}

// #endregion main

// #region run

func fromDB(path, sessionID string, maxDenials int) (*replay.Fixture, error) {
	db, err := audit.NewStore(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return replay.Export(db, sessionID, maxDenials)
}

type report struct {
	Description string                `json:"description"`
	Summary     replay.ReplaySummary  `json:"summary"`
	Results     []replay.ReplayResult `json:"results"`
	Mismatches  []string              `json:"mismatches"`
}

func run(w io.Writer, f *replay.Fixture, jsonOut bool) error {
	results, store := replay.Replay(f.ToSteps(), f.Config.ToReplayConfig())
	rep := report{
		Description: f.Description,
		Summary:     replay.Summarize(results, store),
		Results:     results,
		Mismatches:  []string{},
	}
	for _, m := range f.Check(results) {
		rep.Mismatches = append(rep.Mismatches, m.String())
	}

	if jsonOut {
		if err := cli.PrintJSON(w, rep); err != nil {
			return err
		}
	} else {
		printReport(w, rep)
	}
	if len(rep.Mismatches) > 0 {
		return fmt.Errorf("%w: %d mismatches", errMismatch, len(rep.Mismatches))
	}
	return nil
}

func printReport(w io.Writer, rep report) {
	fmt.Fprintln(w, cli.Title.Render(rep.Description))

	rows := make([][]string, 0, len(rep.Results))
	for _, r := range rep.Results {
		decision := "-"
		if r.Decision != "" {
			decision = cli.Decision(r.Decision)
		}
		attempt := "-"
		if r.Attempt > 0 {
			attempt = fmt.Sprint(r.Attempt)
		}
		rows = append(rows, []string{r.StepID, r.Hook, decision, attempt, fmt.Sprint(r.Injected), fmt.Sprint(len(r.Parts))})
	}
	fmt.Fprintln(w, cli.Table([]string{"Step", "Hook", "Decision", "Attempt", "Injected", "Parts"}, rows))

	s := rep.Summary
	fmt.Fprintln(w, cli.Field("steps", fmt.Sprint(s.TotalSteps)),
		cli.Field("stops", fmt.Sprint(s.Stops)),
		cli.Field("blocks", fmt.Sprint(s.Blocks)),
		cli.Field("allows", fmt.Sprint(s.Allows)),
		cli.Field("injections", fmt.Sprint(s.Injections)))

	if len(rep.Mismatches) == 0 {
		fmt.Fprintln(w, cli.Good.Render("all expectations met"))
		return
	}
	for _, m := range rep.Mismatches {
		fmt.Fprintln(w, cli.Bad.Render("mismatch ")+m)
	}
}

// #endregion run
