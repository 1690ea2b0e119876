package gate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/logging"
	"github.com/danielpatrickdp/stopgate/internal/metrics"
	"github.com/danielpatrickdp/stopgate/internal/notify"
	"github.com/danielpatrickdp/stopgate/internal/review"
	"github.com/danielpatrickdp/stopgate/internal/session"
)

// #region transition
// Transition decides a stop request. It is pure: the returned state replaces
// st and the decision says what, if anything, must be injected.
func Transition(st session.State, cfg Config) (session.State, Decision) {
	phase := PhaseOf(st, cfg)
	switch phase {
	case PhaseInactive:
		return st, Decision{Action: ActionAllow, Phase: phase, Reason: "no thorough request active"}
	case PhaseExhausted:
		st.ClearAnalysis()
		return st, Decision{
			Action: ActionAllowReset,
			Phase:  phase,
			Reason: fmt.Sprintf("review limit of %d reached", cfg.MaxDenials),
		}
	}

	st.StopDenialCount++
	attempt := st.StopDenialCount
	msg := review.DenialMessage(st.Analysis, attempt, cfg.MaxDenials)
	st.RememberInjected(msg)
	return st, Decision{
		Action:  ActionDeny,
		Phase:   phase,
		Attempt: attempt,
		Message: msg,
		Reason:  fmt.Sprintf("thoroughness review %d of %d", attempt, cfg.MaxDenials),
	}
}

// #endregion transition

// #region gate
// DecisionRecorder persists gate decisions.
type DecisionRecorder interface {
	RecordDecision(d audit.Decision) error
}

// Gate runs Transition against the session store and performs the
// notifier call for denials.
type Gate struct {
	store    *session.Store
	notifier notify.Notifier
	config   Config
	log      *zap.Logger
	audit    DecisionRecorder
	metrics  *metrics.Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(g *Gate) { g.log = l } }

// WithAudit records every decision to r.
func WithAudit(r DecisionRecorder) Option { return func(g *Gate) { g.audit = r } }

// WithMetrics counts decisions and notifier calls.
func WithMetrics(m *metrics.Metrics) Option { return func(g *Gate) { g.metrics = m } }

// NewGate creates a gate. The notifier is bounded by config.NotifyTimeout.
func NewGate(store *session.Store, n notify.Notifier, config Config, opts ...Option) *Gate {
	if config.MaxDenials < 1 {
		config.MaxDenials = DefaultConfig().MaxDenials
	}
	if n == nil {
		n = notify.Discard
	}
	g := &Gate{
		store:    store,
		notifier: notify.WithTimeout(n, config.NotifyTimeout),
		config:   config,
	}
	for _, o := range opts {
		o(g)
	}
	g.log = logging.OrNop(g.log)
	return g
}

// Config returns the active configuration.
func (g *Gate) Config() Config { return g.config }

// Evaluate decides a stop request for sessionID. A notifier failure rolls
// the denial back and lets the agent stop.
func (g *Gate) Evaluate(ctx context.Context, sessionID string) Outcome {
	if sessionID == "" {
		return Outcome{Allowed: true, Decision: Decision{Action: ActionAllow, Phase: PhaseInactive, Reason: "no session id"}}
	}

	// a stop for a deleted or unseen session must not recreate its record
	dec := Decision{Action: ActionAllow, Phase: PhaseInactive, Reason: "no session record"}
	var generation uint64
	g.store.Update(sessionID, func(st *session.State) {
		var next session.State
		next, dec = Transition(*st, g.config)
		*st = next
		generation = st.Generation
	})

	out := Outcome{Allowed: dec.Allows(), Decision: dec}
	if dec.Action == ActionDeny {
		start := time.Now()
		err := g.notifier.Notify(ctx, sessionID, dec.Message)
		g.metrics.NotifyDone(ctx, time.Since(start), err)
		if err != nil {
			reverted := g.store.RevertDenial(sessionID, generation, dec.Attempt)
			g.log.Warn("notifier failed, allowing stop",
				zap.String("session_id", sessionID),
				zap.Int("attempt", dec.Attempt),
				zap.Bool("reverted", reverted),
				zap.Error(err))
			out.Allowed = true
			out.FailedOpen = true
		}
	}

	g.log.Debug("stop decision",
		zap.String("session_id", sessionID),
		zap.String("action", string(dec.Action)),
		zap.String("phase", string(dec.Phase)),
		zap.Int("attempt", dec.Attempt),
		zap.Bool("allowed", out.Allowed))
	g.metrics.StopDecision(ctx, string(dec.Action))
	g.record(sessionID, out)
	return out
}

func (g *Gate) record(sessionID string, out Outcome) {
	if g.audit == nil {
		return
	}
	err := g.audit.RecordDecision(audit.Decision{
		SessionID:  sessionID,
		Action:     string(out.Decision.Action),
		Attempt:    out.Decision.Attempt,
		Allowed:    out.Allowed,
		FailedOpen: out.FailedOpen,
		Reason:     out.Decision.Reason,
	})
	if err != nil {
		g.log.Warn("audit decision", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// #endregion gate
