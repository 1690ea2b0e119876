package analyzer

import (
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAnalyzeExamples(t *testing.T) {
	tests := []struct {
		prompt     string
		confidence Confidence
		thorough   bool
	}{
		{"please do an exhaustive review", ConfidenceHigh, true},
		{"fix all the bugs", ConfidenceLow, false},
		{"make sure to fix all the bugs", ConfidenceMedium, true},
		{"make sure to check all the edge cases", ConfidenceMedium, true},
		{"that's all I need, quick fix", ConfidenceLow, false},
		{"rename this variable", ConfidenceLow, false},
		{"", ConfidenceLow, false},
		{"update every file and each test", ConfidenceMedium, true},
		{"you must update every file and each test", ConfidenceHigh, true},
		{"a thorough but simple pass", ConfidenceMedium, true},
		{"Do a DEEP DIVE into the parser", ConfidenceHigh, true},
		{"ensure it builds and verify the output", ConfidenceLow, false},
		{"it is critical that you verify the output", ConfidenceMedium, true},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			res := Analyze(tt.prompt)
			if res.Confidence != tt.confidence {
				t.Fatalf("confidence: want %s, got %s (indicators %v)", tt.confidence, res.Confidence, res.MatchedIndicators)
			}
			if res.IsThorough != tt.thorough {
				t.Fatalf("thorough: want %v, got %v", tt.thorough, res.IsThorough)
			}
			if res.OriginalPrompt != tt.prompt {
				t.Fatalf("original prompt not preserved: %q", res.OriginalPrompt)
			}
		})
	}
}

func TestExhaustiveIndicator(t *testing.T) {
	res := Analyze("please do an exhaustive review")
	if !slices.Contains(res.MatchedIndicators, "exhaustive") {
		t.Fatalf("expected exhaustive in %v", res.MatchedIndicators)
	}
}

func TestSingleMediumMatch(t *testing.T) {
	res := Analyze("fix all the bugs")
	if diff := cmp.Diff([]string{"all"}, res.MatchedIndicators); diff != "" {
		t.Fatalf("indicators mismatch (-want +got):\n%s", diff)
	}
}

func TestIndicatorsFollowTableOrder(t *testing.T) {
	res := Analyze("make sure every module is complete and thorough")
	want := []string{"thorough", "every", "complete", "make sure"}
	if diff := cmp.Diff(want, res.MatchedIndicators); diff != "" {
		t.Fatalf("indicators mismatch (-want +got):\n%s", diff)
	}
}

func TestShortTokensNeedWordBoundaries(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"call the function", false},
		{"small fix", false},
		{"all_tests", false},
		{"all tests", true},
		{"(all)", true},
		{"reach 100% coverage", true},
		{"reach 1100% coverage", false},
		{"eachother", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res := Analyze(tt.text)
			if got := len(res.MatchedIndicators) > 0; got != tt.want {
				t.Fatalf("want match=%v, got indicators %v", tt.want, res.MatchedIndicators)
			}
		})
	}
}

func TestLongMediumTokensMatchAsSubstrings(t *testing.T) {
	res := Analyze("incompletely done")
	if !slices.Contains(res.MatchedIndicators, "complete") {
		t.Fatalf("expected substring match, got %v", res.MatchedIndicators)
	}
}

func TestDiminisherKeepsLowAtLow(t *testing.T) {
	res := Analyze("just need a simple rename")
	if res.Confidence != ConfidenceLow || res.IsThorough {
		t.Fatalf("unexpected %+v", res)
	}
}

func TestConfidenceRank(t *testing.T) {
	if !(ConfidenceLow.Rank() < ConfidenceMedium.Rank() && ConfidenceMedium.Rank() < ConfidenceHigh.Rank()) {
		t.Fatal("ranks out of order")
	}
	if Confidence("extreme").Rank() >= ConfidenceLow.Rank() {
		t.Fatal("unknown confidence should rank below low")
	}
}

func TestAnalyzerSetLexicon(t *testing.T) {
	a := NewDefault()
	if a.Analyze("be diligent").IsThorough {
		t.Fatal("default lexicon should not know diligent")
	}
	lex := DefaultLexicon()
	lex.High = append(lex.High, "Diligent")
	a.SetLexicon(lex)
	if res := a.Analyze("be diligent"); res.Confidence != ConfidenceHigh {
		t.Fatalf("expected high after lexicon swap, got %s", res.Confidence)
	}
}

func TestAnalyzerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("high:\n  - scrupulous\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	a := NewDefault()
	if err := a.Reload(path); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if res := a.Analyze("be scrupulous"); res.Confidence != ConfidenceHigh {
		t.Fatalf("expected high, got %s", res.Confidence)
	}
	if res := a.Analyze("be exhaustive"); res.Confidence == ConfidenceHigh {
		t.Fatal("high list should have been replaced")
	}
	if res := a.Analyze("make sure to fix all the bugs"); res.Confidence != ConfidenceMedium {
		t.Fatalf("other categories should keep defaults, got %s", res.Confidence)
	}

	if err := a.Reload(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	if res := a.Analyze("be scrupulous"); res.Confidence != ConfidenceHigh {
		t.Fatal("failed reload should keep previous table")
	}
}

func TestParseLexiconRejectsBadYAML(t *testing.T) {
	if _, err := ParseLexicon([]byte("high: [unterminated")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAnalyzerConcurrentSwap(t *testing.T) {
	a := NewDefault()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Analyze("please do an exhaustive review")
			}
		}()
	}
	for i := 0; i < 10; i++ {
		a.SetLexicon(DefaultLexicon())
	}
	wg.Wait()
}
