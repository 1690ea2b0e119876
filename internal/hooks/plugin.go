// Package hooks adapts host plugin callbacks to the thoroughness policy.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/extract"
	"github.com/danielpatrickdp/stopgate/internal/gate"
	"github.com/danielpatrickdp/stopgate/internal/logging"
	"github.com/danielpatrickdp/stopgate/internal/metrics"
	"github.com/danielpatrickdp/stopgate/internal/review"
	"github.com/danielpatrickdp/stopgate/internal/session"
)

// #region contract

// Buffer is the host-provided output the system-prompt and compaction hooks
// append to.
type Buffer struct {
	Parts []string `json:"parts"`
}

// Append adds one part.
func (b *Buffer) Append(s string) {
	if b != nil {
		b.Parts = append(b.Parts, s)
	}
}

// Response tells a bridge what to report back to the host. Only the stop
// hook sets Decision.
type Response struct {
	Decision string `json:"decision,omitempty"` // "allow" | "block"
	Reason   string `json:"reason,omitempty"`
	Attempt  int    `json:"attempt,omitempty"`
}

const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// HookFunc is one entry in the plugin hook table. It never fails; problems
// are logged.
type HookFunc func(ctx context.Context, input map[string]any, out *Buffer) Response

// Recorder persists hook events and adopted classifications.
type Recorder interface {
	RecordEvent(e audit.Event) error
	RecordFlag(f audit.Flag) error
}

// #endregion contract

// #region plugin

// Deps wires a Plugin.
type Deps struct {
	Store    *session.Store
	Analyzer *analyzer.Analyzer
	Gate     *gate.Gate
	Dedupe   *Dedupe
	Logger   *zap.Logger
	Audit    Recorder
	Metrics  *metrics.Metrics
	MaxWords int
}

// Plugin dispatches normalized events to the policy components.
type Plugin struct {
	store    *session.Store
	analyzer *analyzer.Analyzer
	gate     *gate.Gate
	dedupe   *Dedupe
	log      *zap.Logger
	audit    Recorder
	metrics  *metrics.Metrics
	maxWords int
	table    map[string]HookFunc
}

// New builds a plugin. Store and Gate are required.
func New(d Deps) *Plugin {
	if d.Analyzer == nil {
		d.Analyzer = analyzer.NewDefault()
	}
	p := &Plugin{
		store:    d.Store,
		analyzer: d.Analyzer,
		gate:     d.Gate,
		dedupe:   d.Dedupe,
		log:      logging.OrNop(d.Logger),
		audit:    d.Audit,
		metrics:  d.Metrics,
		maxWords: d.MaxWords,
		table:    make(map[string]HookFunc),
	}
	for _, name := range []string{HookEvent, HookChatMessage, HookStop, HookSystemTransform, HookCompaction, HookToolExecuted} {
		p.table[name] = p.hook(name)
	}
	return p
}

// Hooks returns the table the host registers.
func (p *Plugin) Hooks() map[string]HookFunc {
	return p.table
}

// Call runs the named hook. Unknown names do nothing.
func (p *Plugin) Call(ctx context.Context, name string, input map[string]any, out *Buffer) Response {
	fn, ok := p.table[name]
	if !ok {
		p.log.Warn("unknown hook", zap.String("hook", name))
		return Response{}
	}
	return fn(ctx, input, out)
}

func (p *Plugin) hook(name string) HookFunc {
	return func(ctx context.Context, input map[string]any, out *Buffer) (resp Response) {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("hook panicked", zap.String("hook", name), zap.Any("panic", r))
				resp = Response{}
				if name == HookStop {
					resp = Response{Decision: DecisionAllow}
				}
			}
		}()

		ev, err := Normalize(name, input)
		if err != nil {
			p.metrics.Malformed(ctx)
			p.log.Warn("dropping event", zap.String("hook", name), zap.Error(err))
			if name == HookStop {
				return Response{Decision: DecisionAllow}
			}
			return Response{}
		}
		if ev.Kind == KindUnknown {
			return Response{}
		}
		return p.Dispatch(ctx, ev, out)
	}
}

// Dispatch applies one normalized event.
func (p *Plugin) Dispatch(ctx context.Context, ev Event, out *Buffer) Response {
	p.recordEvent(ev)

	switch ev.Kind {
	case KindSessionCreated:
		p.store.Init(ev.SessionID)
	case KindSessionDeleted:
		p.store.Clear(ev.SessionID)
	case KindMessageUpdated:
		p.observeMessage(ctx, ev)
	case KindStop:
		return p.stop(ctx, ev.SessionID)
	case KindSystemTransform:
		if st, ok := p.thorough(ev.SessionID); ok {
			out.Append(review.SystemStatus(st.Analysis, st.StopDenialCount, p.gate.Config().MaxDenials))
		}
	case KindCompacting:
		if st, ok := p.thorough(ev.SessionID); ok {
			out.Append(review.CompactionStatus(st.Analysis, st.StopDenialCount, p.gate.Config().MaxDenials))
		}
	case KindToolExecuted:
		p.store.ObserveTool(ev.SessionID)
		p.metrics.ToolCall(ctx)
	}
	return Response{}
}

// #endregion plugin

// #region handlers

func (p *Plugin) observeMessage(ctx context.Context, ev Event) {
	key := ""
	if ev.Payload.MessageID != "" {
		key = ev.SessionID + "/" + ev.Payload.MessageID
	}
	role := ev.Payload.Role
	if role != "" {
		p.dedupe.RememberRole(key, role)
	} else if known, ok := p.dedupe.Role(key); ok {
		role = known
	}
	if role != "" && role != "user" {
		return
	}
	// text may arrive in a later update for the same message
	if ev.Payload.Text == "" {
		return
	}
	if p.store.IsInjected(ev.SessionID, ev.Payload.Text) {
		p.log.Debug("skipping echoed review prompt", zap.String("session_id", ev.SessionID), zap.String("message_id", ev.Payload.MessageID))
		return
	}
	if p.dedupe.Seen(key) {
		p.log.Debug("duplicate message", zap.String("session_id", ev.SessionID), zap.String("message_id", ev.Payload.MessageID))
		return
	}

	ex := extract.Extract(ev.Payload.Text, p.maxWords)
	var res analyzer.Result
	if ex.ShouldAnalyze {
		res = p.analyzer.Analyze(ex.Text)
	}
	st, adopted := p.store.ObservePrompt(ev.SessionID, res)
	p.metrics.PromptAnalyzed(ctx, res.IsThorough)

	p.log.Debug("prompt observed",
		zap.String("session_id", ev.SessionID),
		zap.String("extract_reason", string(ex.Reason)),
		zap.String("confidence", string(res.Confidence)),
		zap.Strings("indicators", res.MatchedIndicators),
		zap.Bool("adopted", adopted))

	if !adopted {
		return
	}
	p.metrics.FlagAdopted(ctx, string(res.Confidence))
	if p.audit != nil {
		err := p.audit.RecordFlag(audit.Flag{
			SessionID:    ev.SessionID,
			PromptNumber: st.AnalysisPromptNumber,
			Confidence:   string(res.Confidence),
			Indicators:   res.MatchedIndicators,
			Prompt:       res.OriginalPrompt,
		})
		if err != nil {
			p.log.Warn("audit flag", zap.String("session_id", ev.SessionID), zap.Error(err))
		}
	}
}

func (p *Plugin) stop(ctx context.Context, sessionID string) Response {
	out := p.gate.Evaluate(ctx, sessionID)
	if out.Allowed {
		return Response{Decision: DecisionAllow, Reason: out.Decision.Reason}
	}
	return Response{Decision: DecisionBlock, Reason: out.Decision.Message, Attempt: out.Decision.Attempt}
}

func (p *Plugin) thorough(sessionID string) (session.State, bool) {
	st, err := p.store.Lookup(sessionID)
	if err != nil {
		if !errors.Is(err, session.ErrSessionNotFound) {
			p.log.Warn("session lookup", zap.String("session_id", sessionID), zap.Error(err))
		}
		return session.State{}, false
	}
	return st, st.Thorough()
}

func (p *Plugin) recordEvent(ev Event) {
	if p.audit == nil {
		return
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		p.log.Warn("audit event", zap.Error(fmt.Errorf("marshal payload: %w", err)))
		return
	}
	if string(payload) == "{}" {
		payload = nil
	}
	if err := p.audit.RecordEvent(audit.Event{SessionID: ev.SessionID, Kind: string(ev.Kind), PayloadJSON: string(payload)}); err != nil {
		p.log.Warn("audit event", zap.String("session_id", ev.SessionID), zap.Error(err))
	}
}

// #endregion handlers
