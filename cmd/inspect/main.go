// Command inspect prints what the audit log recorded about gated sessions.
package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/cli"
	"github.com/danielpatrickdp/stopgate/internal/review"
)

const timeFormat = "2006-01-02 15:04:05"

// #region main

func main() {
	if err := newCmd().Execute(); err != nil {
		cli.Fatal(err)
	}
}

func newCmd() *cobra.Command {
	var dbPath, sessionID string
	var last int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:           "inspect",
		Short:         "Inspect the stop gate audit log",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return fmt.Errorf("--db is required")
			}
			db, err := audit.NewStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			w := cmd.OutOrStdout()
			if sessionID != "" {
				return runDetailMode(w, db, sessionID, last, jsonOut)
			}
			return runListMode(w, db, last, jsonOut)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to the audit database")
	cmd.Flags().StringVar(&sessionID, "session", "", "show one session in detail")
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent rows")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of a table")
	return cmd
}

// #endregion main

// #region list-mode

func runListMode(w io.Writer, db *audit.Store, last int, jsonOut bool) error {
	sessions, err := db.Sessions()
	if err != nil {
		return err
	}
	if last > 0 && len(sessions) > last {
		sessions = sessions[:last]
	}
	if jsonOut {
		if sessions == nil {
			sessions = []audit.SessionSummary{}
		}
		return cli.PrintJSON(w, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions recorded")
		return nil
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{s.SessionID, fmt.Sprint(s.Events), fmt.Sprint(s.Denials), s.LastSeen.Local().Format(timeFormat)})
	}
	fmt.Fprintln(w, cli.Table([]string{"Session", "Events", "Denials", "Last seen"}, rows))
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	SessionID string           `json:"session_id"`
	Flags     []audit.Flag     `json:"flags"`
	Decisions []audit.Decision `json:"decisions"`
	Events    []audit.Event    `json:"events"`
}

func runDetailMode(w io.Writer, db *audit.Store, sessionID string, last int, jsonOut bool) error {
	out := detailOutput{SessionID: sessionID}
	var err error
	if out.Flags, err = db.ListFlags(sessionID, 0); err != nil {
		return err
	}
	if out.Decisions, err = db.ListDecisions(sessionID, 0); err != nil {
		return err
	}
	if out.Events, err = db.ListEvents(sessionID, 0); err != nil {
		return err
	}
	if len(out.Events) == 0 && len(out.Decisions) == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	out.Decisions = tail(out.Decisions, last)
	out.Events = tail(out.Events, last)

	if jsonOut {
		return cli.PrintJSON(w, out)
	}

	fmt.Fprintln(w, cli.Title.Render("Session "+sessionID))

	fmt.Fprintln(w, cli.Label.Render("\nThorough flags"))
	if len(out.Flags) == 0 {
		fmt.Fprintln(w, "  none")
	}
	for _, f := range out.Flags {
		fmt.Fprintf(w, "  prompt %d  %s  [%s]  %q\n",
			f.PromptNumber, f.Confidence, strings.Join(f.Indicators, ", "), review.Truncate(f.Prompt, 80))
	}

	fmt.Fprintln(w, cli.Label.Render("\nStop decisions"))
	rows := make([][]string, 0, len(out.Decisions))
	for _, d := range out.Decisions {
		attempt := "-"
		if d.Attempt > 0 {
			attempt = fmt.Sprint(d.Attempt)
		}
		failed := ""
		if d.FailedOpen {
			failed = cli.Warn.Render("failed open")
		}
		rows = append(rows, []string{d.CreatedAt.Local().Format(timeFormat), cli.Decision(d.Action), attempt, failed, d.Reason})
	}
	fmt.Fprintln(w, cli.Table([]string{"Time", "Action", "Attempt", "", "Reason"}, rows))

	fmt.Fprintln(w, cli.Label.Render("\nEvents"))
	for _, e := range out.Events {
		fmt.Fprintf(w, "  %s  %-20s %s\n", e.CreatedAt.Local().Format(timeFormat), e.Kind, review.Truncate(e.PayloadJSON, 80))
	}
	return nil
}

func tail[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

// #endregion detail-mode
