package session

import (
	"errors"
	"strings"
	"time"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
)

// ErrSessionNotFound is returned by Lookup for ids with no record.
var ErrSessionNotFound = errors.New("session not found")

// #region state

// HistoryEntry records one adopted thorough classification.
type HistoryEntry struct {
	PromptNumber int                 `json:"prompt_number"`
	Timestamp    time.Time           `json:"timestamp"`
	Confidence   analyzer.Confidence `json:"confidence"`
	Indicators   []string            `json:"indicators"`
}

// State is the per-session policy record.
type State struct {
	ActivePrompt         string          `json:"active_prompt,omitempty"`
	Analysis             analyzer.Result `json:"analysis"`
	PromptCount          int             `json:"prompt_count"`
	StopDenialCount      int             `json:"stop_denial_count"`
	AnalysisPromptNumber int             `json:"analysis_prompt_number"`
	History              []HistoryEntry  `json:"history"`
	ToolCalls            int             `json:"tool_calls"`
	Generation           uint64          `json:"generation"`
	CreatedAt            time.Time       `json:"created_at"`
	// Injected holds the most recent review prompts sent to the session,
	// oldest first. Hosts echo them back as user turns.
	Injected []string `json:"injected,omitempty"`
}

// maxInjected bounds State.Injected.
const maxInjected = 8

// RememberInjected records text as a review prompt sent to the session.
func (s *State) RememberInjected(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.Injected = append(s.Injected, text)
	if n := len(s.Injected) - maxInjected; n > 0 {
		s.Injected = append([]string(nil), s.Injected[n:]...)
	}
}

// WasInjected reports whether text is one of the remembered review prompts.
func (s State) WasInjected(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, t := range s.Injected {
		if t == text {
			return true
		}
	}
	return false
}

// Thorough reports whether an adopted analysis is in force.
func (s State) Thorough() bool {
	return s.Analysis.IsThorough
}

// ClearAnalysis drops the adopted analysis and its denial count. Prompt
// count and history are kept.
func (s *State) ClearAnalysis() {
	s.ActivePrompt = ""
	s.Analysis = analyzer.Result{}
	s.AnalysisPromptNumber = 0
	s.StopDenialCount = 0
	s.ToolCalls = 0
	s.Generation++
}

// clone deep-copies the slices so callers never alias store memory.
func (s State) clone() State {
	if s.History != nil {
		h := make([]HistoryEntry, len(s.History))
		for i, e := range s.History {
			e.Indicators = append([]string(nil), e.Indicators...)
			h[i] = e
		}
		s.History = h
	}
	if s.Injected != nil {
		s.Injected = append([]string(nil), s.Injected...)
	}
	if s.Analysis.MatchedIndicators != nil {
		s.Analysis.MatchedIndicators = append([]string(nil), s.Analysis.MatchedIndicators...)
	}
	return s
}

// #endregion state
