package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
)

func fixedStore() *Store {
	s := NewStore()
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func thorough(conf analyzer.Confidence, prompt string) analyzer.Result {
	return analyzer.Result{IsThorough: true, Confidence: conf, OriginalPrompt: prompt, MatchedIndicators: []string{"x"}}
}

func TestGetCreatesOnFirstAccess(t *testing.T) {
	s := fixedStore()
	st := s.Get("a")
	if st.PromptCount != 0 || st.Thorough() {
		t.Fatalf("expected empty state, got %+v", st)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", s.Len())
	}
}

func TestEmptyIDIsNoop(t *testing.T) {
	s := fixedStore()
	s.Init("")
	s.Get("")
	s.ObservePrompt("", thorough(analyzer.ConfidenceHigh, "p"))
	if s.Len() != 0 {
		t.Fatalf("empty id must not create a record, got %d", s.Len())
	}
}

func TestLookupMissing(t *testing.T) {
	s := fixedStore()
	if _, err := s.Lookup("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatal("lookup must not create")
	}
}

func TestInitKeepsExisting(t *testing.T) {
	s := fixedStore()
	s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "p"))
	s.Init("a")
	if !s.Get("a").Thorough() {
		t.Fatal("init should not reset an existing record")
	}
}

func TestObservePromptAdoption(t *testing.T) {
	s := fixedStore()

	st, adopted := s.ObservePrompt("a", analyzer.Result{Confidence: analyzer.ConfidenceLow})
	if adopted || st.PromptCount != 1 || st.Thorough() {
		t.Fatalf("non-thorough prompt should only count, got %+v", st)
	}

	st, adopted = s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "exhaustive"))
	if !adopted || st.ActivePrompt != "exhaustive" || st.AnalysisPromptNumber != 2 {
		t.Fatalf("expected adoption, got %+v", st)
	}

	s.Mutate("a", func(st *State) { st.StopDenialCount = 2 })

	st, adopted = s.ObservePrompt("a", thorough(analyzer.ConfidenceMedium, "all of it"))
	if adopted {
		t.Fatal("lower confidence must not replace a thorough analysis")
	}
	if st.ActivePrompt != "exhaustive" || st.StopDenialCount != 2 || st.PromptCount != 3 {
		t.Fatalf("unexpected state %+v", st)
	}

	st, adopted = s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "thorough again"))
	if !adopted || st.StopDenialCount != 0 || st.AnalysisPromptNumber != 4 {
		t.Fatalf("equal confidence should replace and reset denials, got %+v", st)
	}
	if len(st.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(st.History))
	}
}

func TestObservePromptAfterClearAcceptsLower(t *testing.T) {
	s := fixedStore()
	s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "p1"))
	s.Mutate("a", func(st *State) { st.ClearAnalysis() })
	if _, adopted := s.ObservePrompt("a", thorough(analyzer.ConfidenceMedium, "p2")); !adopted {
		t.Fatal("cleared analysis should accept any thorough result")
	}
}

func TestSessionIsolation(t *testing.T) {
	s := fixedStore()
	s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "p"))
	s.Mutate("a", func(st *State) { st.StopDenialCount = 2 })

	b := s.Get("b")
	if b.Thorough() || b.StopDenialCount != 0 || b.PromptCount != 0 {
		t.Fatalf("session b leaked state from a: %+v", b)
	}
	s.Clear("b")
	if a := s.Get("a"); a.StopDenialCount != 2 {
		t.Fatalf("clearing b changed a: %+v", a)
	}
}

func TestSnapshotsDoNotAlias(t *testing.T) {
	s := fixedStore()
	s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "p"))
	snap := s.Get("a")
	snap.Analysis.MatchedIndicators[0] = "mutated"
	snap.History[0].Indicators[0] = "mutated"
	again := s.Get("a")
	if again.Analysis.MatchedIndicators[0] != "x" || again.History[0].Indicators[0] != "x" {
		t.Fatal("snapshot mutation leaked into the store")
	}
}

func TestRevertDenialChecksGeneration(t *testing.T) {
	s := fixedStore()
	st, _ := s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "p"))
	s.Mutate("a", func(st *State) { st.StopDenialCount = 1 })

	if !s.RevertDenial("a", st.Generation, 1) {
		t.Fatal("expected revert")
	}
	if got := s.Get("a").StopDenialCount; got != 0 {
		t.Fatalf("expected 0 denials, got %d", got)
	}

	s.Mutate("a", func(st *State) { st.StopDenialCount = 1 })
	s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "newer"))
	if s.RevertDenial("a", st.Generation, 1) {
		t.Fatal("stale generation must not revert")
	}
}

func TestObserveToolOnlyCountsWhenThorough(t *testing.T) {
	s := fixedStore()
	s.ObserveTool("a")
	if s.Get("a").ToolCalls != 0 {
		t.Fatal("tool calls counted without an active analysis")
	}
	s.ObservePrompt("a", thorough(analyzer.ConfidenceHigh, "p"))
	s.ObserveTool("a")
	s.ObserveTool("a")
	if got := s.Get("a").ToolCalls; got != 2 {
		t.Fatalf("expected 2 tool calls, got %d", got)
	}
}

func TestConcurrentSessions(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("s-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.ObservePrompt(id, analyzer.Result{})
			}
		}()
	}
	wg.Wait()
	for _, id := range s.IDs() {
		if got := s.Get(id).PromptCount; got != 50 {
			t.Fatalf("%s: expected 50 prompts, got %d", id, got)
		}
	}
	if s.Len() != 20 {
		t.Fatalf("expected 20 sessions, got %d", s.Len())
	}
}

func TestUpdateDoesNotCreate(t *testing.T) {
	s := fixedStore()
	if _, ok := s.Update("a", func(st *State) { st.PromptCount++ }); ok {
		t.Fatal("update of a missing record should report false")
	}
	if s.Len() != 0 {
		t.Fatal("update must not create")
	}
	s.Init("a")
	st, ok := s.Update("a", func(st *State) { st.PromptCount++ })
	if !ok || st.PromptCount != 1 {
		t.Fatalf("expected update to apply, got %+v ok=%v", st, ok)
	}
}

func TestInjectedIsBoundedAndTrimmed(t *testing.T) {
	s := fixedStore()
	s.Mutate("a", func(st *State) {
		for i := 0; i < maxInjected+2; i++ {
			st.RememberInjected(fmt.Sprintf("review %d\n", i))
		}
	})
	st := s.Get("a")
	if len(st.Injected) != maxInjected {
		t.Fatalf("expected %d remembered prompts, got %d", maxInjected, len(st.Injected))
	}
	if s.IsInjected("a", "review 0") || s.IsInjected("a", "review 1") {
		t.Fatal("oldest prompts should be forgotten")
	}
	if !s.IsInjected("a", "  review 9") {
		t.Fatal("latest prompt should match after trimming")
	}
	if s.IsInjected("missing", "review 9") || s.Len() != 1 {
		t.Fatal("IsInjected must not create records")
	}
}
