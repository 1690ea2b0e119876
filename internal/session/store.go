package session

import (
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
)

// #region store

// Store holds one State per session id. Every method is a single critical
// section, so one event's read-modify-write never interleaves with another.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*State
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*State), now: time.Now}
}

// getLocked returns the record for id, creating it if absent.
func (s *Store) getLocked(id string) *State {
	st, ok := s.sessions[id]
	if !ok {
		st = &State{CreatedAt: s.now().UTC()}
		s.sessions[id] = st
	}
	return st
}

// Init creates an empty record for id. An existing record is kept.
func (s *Store) Init(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getLocked(id)
}

// Get returns a snapshot of the record for id, creating it on first access.
func (s *Store) Get(id string) State {
	if id == "" {
		return State{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id).clone()
}

// Lookup returns a snapshot without creating a record.
func (s *Store) Lookup(id string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return State{}, ErrSessionNotFound
	}
	return st.clone(), nil
}

// Update applies fn to an existing record for id. It reports false, and
// creates nothing, when id has no record.
func (s *Store) Update(id string, fn func(*State)) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return State{}, false
	}
	fn(st)
	return st.clone(), true
}

// Clear removes the record for id.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Mutate applies fn to the record for id under the store lock and returns
// the resulting snapshot. fn must not block.
func (s *Store) Mutate(id string, fn func(*State)) State {
	if id == "" {
		return State{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.getLocked(id)
	fn(st)
	return st.clone()
}

// #endregion store

// #region observe

// ObservePrompt counts a user turn and adopts res when it is thorough and at
// least as confident as the analysis already in force. It reports whether
// res was adopted.
func (s *Store) ObservePrompt(id string, res analyzer.Result) (State, bool) {
	var adopted bool
	st := s.Mutate(id, func(st *State) {
		st.PromptCount++
		if !res.IsThorough {
			return
		}
		if st.Analysis.IsThorough && res.Confidence.Rank() < st.Analysis.Confidence.Rank() {
			return
		}
		st.ActivePrompt = res.OriginalPrompt
		st.Analysis = res
		st.Analysis.MatchedIndicators = append([]string(nil), res.MatchedIndicators...)
		st.AnalysisPromptNumber = st.PromptCount
		st.StopDenialCount = 0
		st.ToolCalls = 0
		st.Generation++
		st.History = append(st.History, HistoryEntry{
			PromptNumber: st.PromptCount,
			Timestamp:    s.now().UTC(),
			Confidence:   res.Confidence,
			Indicators:   append([]string(nil), res.MatchedIndicators...),
		})
		adopted = true
	})
	return st, adopted
}

// IsInjected reports whether text is a review prompt the gate sent to id.
// It never creates a record.
func (s *Store) IsInjected(id, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	return ok && st.WasInjected(text)
}

// ObserveTool counts an agent tool execution against the active analysis.
func (s *Store) ObserveTool(id string) State {
	return s.Mutate(id, func(st *State) {
		if st.Analysis.IsThorough {
			st.ToolCalls++
		}
	})
}

// RevertDenial undoes the denial counted as attempt when the analysis in
// force is still the one at generation. It reports whether it reverted.
func (s *Store) RevertDenial(id string, generation uint64, attempt int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok || st.Generation != generation || st.StopDenialCount != attempt {
		return false
	}
	st.StopDenialCount--
	return true
}

// #endregion observe

// #region listing

// IDs returns the known session ids in sorted order.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// #endregion listing
