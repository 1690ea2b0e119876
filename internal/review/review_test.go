package review

import (
	"strings"
	"testing"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
)

func TestRenderTruncatesPrompt(t *testing.T) {
	long := strings.Repeat("x", 600)
	out := Render(analyzer.Result{Confidence: analyzer.ConfidenceHigh, OriginalPrompt: long, MatchedIndicators: []string{"thorough"}})

	want := strings.Repeat("x", 500) + "..."
	if !strings.Contains(out, want) {
		t.Fatal("expected prompt truncated to 500 characters plus ellipsis")
	}
	if strings.Contains(out, strings.Repeat("x", 501)) {
		t.Fatal("prompt was not truncated")
	}
}

func TestRenderKeepsShortPrompt(t *testing.T) {
	exact := strings.Repeat("y", 500)
	out := Render(analyzer.Result{OriginalPrompt: exact})
	if strings.Contains(out, exact+"...") {
		t.Fatal("500 character prompt should not gain an ellipsis")
	}
}

func TestPromptQuotedVerbatim(t *testing.T) {
	prompt := "Do an exhaustive review of:\n- the \"parser\" module\n- the\tlexer"
	res := analyzer.Result{Confidence: analyzer.ConfidenceHigh, OriginalPrompt: prompt, MatchedIndicators: []string{"exhaustive"}}

	out := Render(res)
	if !strings.Contains(out, "Original request: \""+prompt+"\"") {
		t.Fatalf("review should quote the prompt as written: %s", out)
	}
	comp := CompactionStatus(res, 0, 3)
	if !strings.Contains(comp, "Request: \""+prompt+"\"") {
		t.Fatalf("compaction status should quote the prompt as written: %s", comp)
	}
	if strings.Contains(out, `\"parser\"`) || strings.Contains(comp, `\n`) {
		t.Fatal("prompt must not be escaped")
	}
}

func TestRenderLimitsIndicators(t *testing.T) {
	res := analyzer.Result{
		MatchedIndicators: []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"},
		OriginalPrompt:    "p",
	}
	out := Render(res)
	if !strings.Contains(out, "a1, a2, a3, a4, a5") {
		t.Fatalf("expected first five indicators, got:\n%s", out)
	}
	if strings.Contains(out, "a6") {
		t.Fatal("sixth indicator should be dropped")
	}
}

func TestRenderChecklist(t *testing.T) {
	out := Render(analyzer.Result{OriginalPrompt: "check every file", MatchedIndicators: []string{"every"}})
	for _, part := range []string{"Completeness check", "Quantifier verification", "Quality check"} {
		if !strings.Contains(out, part) {
			t.Errorf("missing %q", part)
		}
	}
	if Render(analyzer.Result{OriginalPrompt: "x"}) != Render(analyzer.Result{OriginalPrompt: "x"}) {
		t.Fatal("render must be deterministic")
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	s := strings.Repeat("é", 10)
	if got := Truncate(s, 4); got != "éééé..." {
		t.Fatalf("got %q", got)
	}
}

func TestDenialMessageEscalates(t *testing.T) {
	res := analyzer.Result{Confidence: analyzer.ConfidenceHigh, MatchedIndicators: []string{"exhaustive"}, OriginalPrompt: "exhaustive review"}

	first := DenialMessage(res, 1, 3)
	if strings.Contains(first, "Quantifier verification") {
		t.Fatal("first reminder should not carry the checklist")
	}
	if !strings.Contains(first, "exhaustive") {
		t.Fatal("first reminder should name the indicators")
	}

	second := DenialMessage(res, 2, 3)
	if !strings.Contains(second, "itemized confirmation") || !strings.Contains(second, "Quantifier verification") {
		t.Fatalf("second denial should demand itemized confirmation:\n%s", second)
	}

	third := DenialMessage(res, 3, 3)
	if !strings.Contains(third, "last chance") || !strings.Contains(third, "Quality check") {
		t.Fatalf("third denial should be framed as final:\n%s", third)
	}
}

func TestStatusBlocks(t *testing.T) {
	res := analyzer.Result{Confidence: analyzer.ConfidenceMedium, MatchedIndicators: []string{"all", "make sure"}, OriginalPrompt: strings.Repeat("z", 300)}

	sys := SystemStatus(res, 1, 3)
	for _, part := range []string{"medium", "all, make sure", "1/3"} {
		if !strings.Contains(sys, part) {
			t.Errorf("system status missing %q: %s", part, sys)
		}
	}

	comp := CompactionStatus(res, 2, 3)
	if !strings.Contains(comp, strings.Repeat("z", 200)+"...") {
		t.Fatalf("compaction status should truncate prompt: %s", comp)
	}
	if !strings.Contains(comp, "2/3") {
		t.Fatalf("compaction status missing denial count: %s", comp)
	}
}
