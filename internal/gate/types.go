package gate

import (
	"time"

	"github.com/danielpatrickdp/stopgate/internal/session"
)

// #region phase
// Phase is the stop-gate position for one session.
type Phase string

const (
	PhaseInactive  Phase = "inactive"
	PhaseActive    Phase = "active"
	PhaseExhausted Phase = "exhausted"
)

// PhaseOf derives the phase from stored state.
func PhaseOf(st session.State, cfg Config) Phase {
	switch {
	case !st.Thorough():
		return PhaseInactive
	case st.StopDenialCount >= cfg.MaxDenials:
		return PhaseExhausted
	default:
		return PhaseActive
	}
}

// #endregion phase

// #region action
// Action is what the gate does with a stop request.
type Action string

const (
	ActionAllow      Action = "allow"
	ActionAllowReset Action = "allow_reset"
	ActionDeny       Action = "deny"
)

// #endregion action

// #region gate-config
// Config holds the denial bound and notifier deadline.
type Config struct {
	MaxDenials    int
	NotifyTimeout time.Duration
}

// DefaultConfig returns three denials and a ten second notifier deadline.
func DefaultConfig() Config {
	return Config{
		MaxDenials:    3,
		NotifyTimeout: 10 * time.Second,
	}
}

// #endregion gate-config

// #region decision
// Decision is the output of Transition.
type Decision struct {
	Action  Action
	Phase   Phase  // phase before the transition
	Attempt int    // denial number for deny, 0 otherwise
	Message string // review prompt to inject, deny only
	Reason  string
}

// Allows reports whether the decision lets the agent stop.
func (d Decision) Allows() bool {
	return d.Action != ActionDeny
}

// Outcome is the result of Evaluate after side effects ran.
type Outcome struct {
	Allowed    bool
	Decision   Decision
	FailedOpen bool
}

// #endregion decision
