package replay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
	"github.com/danielpatrickdp/stopgate/internal/gate"
	"github.com/danielpatrickdp/stopgate/internal/hooks"
	"github.com/danielpatrickdp/stopgate/internal/logging"
	"github.com/danielpatrickdp/stopgate/internal/notify"
	"github.com/danielpatrickdp/stopgate/internal/session"
)

// #region types

// Step is one recorded hook invocation.
type Step struct {
	StepID string
	Hook   string
	Input  map[string]any
	Parts  []string
}

// ReplayConfig controls the components a replay runs against.
type ReplayConfig struct {
	Gate     gate.Config
	MaxWords int
	Lexicon  *analyzer.Lexicon
	// FailNotifier makes every injection fail so fail-open paths can be
	// exercised.
	FailNotifier bool
	Logger       *zap.Logger
}

// DefaultReplayConfig returns the production defaults.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{Gate: gate.DefaultConfig()}
}

// ReplayResult captures the plugin's answer to one step.
type ReplayResult struct {
	StepID   string
	Hook     string
	Decision string // "allow" | "block" | "" for non-stop hooks
	Reason   string
	Attempt  int
	Parts    []string
	// Injected is the number of prompts delivered to the step's session
	// during this step.
	Injected int
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps int
	Stops      int
	Blocks     int
	Allows     int
	Injections int
	Sessions   map[string]session.State
}

// #endregion types

// #region replay

var errInjectFailed = errors.New("injection disabled for replay")

const (
	replayDedupeEntries = 1 << 14
	replayDedupeTTL     = 24 * time.Hour
)

// Replay runs steps in order against a fresh in-memory plugin.
func Replay(steps []Step, config ReplayConfig) ([]ReplayResult, *session.Store) {
	store := session.NewStore()
	rec := &notify.Recorder{}
	if config.FailNotifier {
		rec.Fail(errInjectFailed)
	}
	if config.Gate.NotifyTimeout <= 0 {
		config.Gate.NotifyTimeout = time.Second
	}

	a := analyzer.NewDefault()
	if config.Lexicon != nil {
		a = analyzer.New(*config.Lexicon)
	}
	// recorded traffic carries the re-emitted message updates the live
	// plugin ignored
	dedupe, err := hooks.NewDedupe(replayDedupeEntries, replayDedupeTTL)
	if err != nil {
		logging.OrNop(config.Logger).Warn("replay without dedupe", zap.Error(err))
	}
	defer dedupe.Close()

	g := gate.NewGate(store, rec, config.Gate, gate.WithLogger(config.Logger))
	plugin := hooks.New(hooks.Deps{
		Store:    store,
		Analyzer: a,
		Gate:     g,
		Dedupe:   dedupe,
		Logger:   config.Logger,
		MaxWords: config.MaxWords,
	})

	ctx := context.Background()
	results := make([]ReplayResult, 0, len(steps))
	for _, s := range steps {
		input := s.Input
		if input == nil {
			input = map[string]any{}
		}
		sessionID := ""
		if ev, err := hooks.Normalize(s.Hook, input); err == nil {
			sessionID = ev.SessionID
		}
		before := len(rec.For(sessionID))
		buf := &hooks.Buffer{Parts: append([]string(nil), s.Parts...)}
		resp := plugin.Call(ctx, s.Hook, input, buf)
		results = append(results, ReplayResult{
			StepID:   s.StepID,
			Hook:     s.Hook,
			Decision: resp.Decision,
			Reason:   resp.Reason,
			Attempt:  resp.Attempt,
			Parts:    buf.Parts,
			Injected: len(rec.For(sessionID)) - before,
		})
	}
	return results, store
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, store *session.Store) ReplaySummary {
	s := ReplaySummary{TotalSteps: len(results), Sessions: map[string]session.State{}}
	for _, r := range results {
		s.Injections += r.Injected
		switch r.Decision {
		case hooks.DecisionBlock:
			s.Stops++
			s.Blocks++
		case hooks.DecisionAllow:
			s.Stops++
			s.Allows++
		}
	}
	if store != nil {
		for _, id := range store.IDs() {
			s.Sessions[id] = store.Get(id)
		}
	}
	return s
}

// #endregion replay
