package audit

import (
	"path/filepath"
	"testing"
	"time"
)

// #region helpers
func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// #endregion helpers

func TestNewStoreMemory(t *testing.T) {
	s, err := NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	if err := s.RecordEvent(Event{SessionID: "a", Kind: "stop"}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	events, err := s.ListEvents("a", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
}

func TestRecordAndListEvents(t *testing.T) {
	s := tempStore(t)
	for _, e := range []Event{
		{SessionID: "a", Kind: "session.created"},
		{SessionID: "b", Kind: "session.created"},
		{SessionID: "a", Kind: "message.updated", PayloadJSON: `{"text":"hi"}`},
	} {
		if err := s.RecordEvent(e); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
	}

	a, err := s.ListEvents("a", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(a) != 2 {
		t.Fatalf("expected 2 events for a, got %d", len(a))
	}
	if a[1].Kind != "message.updated" || a[1].PayloadJSON != `{"text":"hi"}` {
		t.Fatalf("unexpected event %+v", a[1])
	}
	if a[0].ID == "" || a[0].CreatedAt.IsZero() {
		t.Fatal("expected generated id and timestamp")
	}

	all, err := s.ListEvents("", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(all))
	}
}

func TestRecordFlagRoundTrip(t *testing.T) {
	s := tempStore(t)
	err := s.RecordFlag(Flag{SessionID: "a", PromptNumber: 3, Confidence: "high", Indicators: []string{"exhaustive", "all"}, Prompt: "p"})
	if err != nil {
		t.Fatalf("RecordFlag: %v", err)
	}
	flags, err := s.ListFlags("a", 0)
	if err != nil {
		t.Fatalf("ListFlags: %v", err)
	}
	if len(flags) != 1 {
		t.Fatalf("expected 1 flag, got %d", len(flags))
	}
	f := flags[0]
	if f.PromptNumber != 3 || f.Confidence != "high" || len(f.Indicators) != 2 || f.Indicators[1] != "all" {
		t.Fatalf("unexpected flag %+v", f)
	}
}

func TestRecordDecisionAndSessions(t *testing.T) {
	s := tempStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = s.RecordEvent(Event{SessionID: "a", Kind: "stop", CreatedAt: base})
	_ = s.RecordEvent(Event{SessionID: "b", Kind: "stop", CreatedAt: base.Add(time.Minute)})
	_ = s.RecordDecision(Decision{SessionID: "a", Action: "deny", Attempt: 1, Reason: "review 1 of 3"})
	_ = s.RecordDecision(Decision{SessionID: "a", Action: "allow", Allowed: true, FailedOpen: true})

	ds, err := s.ListDecisions("a", 0)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(ds) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(ds))
	}
	if ds[0].Action != "deny" || ds[0].Allowed || ds[0].Attempt != 1 {
		t.Fatalf("unexpected first decision %+v", ds[0])
	}
	if !ds[1].Allowed || !ds[1].FailedOpen || ds[1].Reason != "" {
		t.Fatalf("unexpected second decision %+v", ds[1])
	}

	sums, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sums))
	}
	if sums[0].SessionID != "b" {
		t.Fatalf("expected most recent session first, got %s", sums[0].SessionID)
	}
	if sums[1].Denials != 1 || sums[1].Events != 1 {
		t.Fatalf("unexpected summary %+v", sums[1])
	}
}
