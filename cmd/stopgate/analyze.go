package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
	"github.com/danielpatrickdp/stopgate/internal/cli"
	"github.com/danielpatrickdp/stopgate/internal/config"
	"github.com/danielpatrickdp/stopgate/internal/extract"
	"github.com/danielpatrickdp/stopgate/internal/review"
)

type analyzeOutput struct {
	Extract  extract.Result   `json:"extract"`
	Analysis *analyzer.Result `json:"analysis,omitempty"`
	Review   string           `json:"review,omitempty"`
}

func newAnalyzeCmd(flags *rootFlags) *cobra.Command {
	var jsonOut, showReview bool
	cmd := &cobra.Command{
		Use:   "analyze [prompt]",
		Short: "Classify a prompt the way the gate would",
		Long:  "Classifies the prompt given as arguments, or read from stdin when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.LoadEnv(); err != nil {
				return err
			}
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(data)
			}

			a := analyzer.NewDefault()
			if cfg.Analyzer.LexiconPath != "" {
				if err := a.Reload(cfg.Analyzer.LexiconPath); err != nil {
					return fmt.Errorf("load lexicon: %w", err)
				}
			}

			out := analyzeOutput{Extract: extract.Extract(text, cfg.Extract.MaxWords)}
			if out.Extract.ShouldAnalyze {
				res := a.Analyze(out.Extract.Text)
				out.Analysis = &res
				if res.IsThorough && showReview {
					out.Review = review.Render(res)
				}
			}

			w := cmd.OutOrStdout()
			if jsonOut {
				return cli.PrintJSON(w, out)
			}
			printAnalysis(w, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&showReview, "review", false, "print the review prompt for thorough prompts")
	return cmd
}

func printAnalysis(w io.Writer, out analyzeOutput) {
	fmt.Fprintln(w, cli.Title.Render("Thoroughness analysis"))
	fmt.Fprintln(w, cli.Field("extract", string(out.Extract.Reason)))
	if out.Analysis == nil {
		fmt.Fprintln(w, cli.Warn.Render("prompt too long to analyze"))
		return
	}
	res := out.Analysis
	verdict := cli.Label.Render("not thorough")
	if res.IsThorough {
		verdict = cli.Good.Render("thorough")
	}
	fmt.Fprintln(w, cli.Field("verdict", verdict))
	fmt.Fprintln(w, cli.Field("confidence", string(res.Confidence)))
	fmt.Fprintln(w, cli.Field("indicators", review.Indicators(res.MatchedIndicators)))
	if out.Review != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, out.Review)
	}
}
