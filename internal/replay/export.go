package replay

import (
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/stopgate/internal/audit"
	"github.com/danielpatrickdp/stopgate/internal/gate"
	"github.com/danielpatrickdp/stopgate/internal/hooks"
)

// #region export

// AuditSource is the read side of the audit log.
type AuditSource interface {
	ListEvents(sessionID string, limit int) ([]audit.Event, error)
	ListDecisions(sessionID string, limit int) ([]audit.Decision, error)
}

// Export rebuilds a fixture from audited events for one session, or all
// sessions when sessionID is empty. Stop steps expect the decisions that
// were recorded for them, in order.
func Export(src AuditSource, sessionID string, maxDenials int) (*Fixture, error) {
	events, err := src.ListEvents(sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	decisions, err := src.ListDecisions(sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}

	// decisions queued per session, consumed by stop events in order
	pending := map[string][]audit.Decision{}
	for _, d := range decisions {
		pending[d.SessionID] = append(pending[d.SessionID], d)
	}

	f := &Fixture{
		Description: "exported from audit log",
		Config:      FixtureConfig{MaxDenials: maxDenials},
	}
	if sessionID != "" {
		f.Description = fmt.Sprintf("exported from audit log for session %s", sessionID)
	}
	for i, ev := range events {
		step, ok, err := stepFromEvent(ev)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		step.StepID = fmt.Sprintf("step-%03d", i+1)
		f.Steps = append(f.Steps, step)

		if hooks.Kind(ev.Kind) != hooks.KindStop {
			continue
		}
		queue := pending[ev.SessionID]
		if len(queue) == 0 {
			continue
		}
		d := queue[0]
		pending[ev.SessionID] = queue[1:]
		exp := FixtureExpectedResult{StepID: step.StepID, Decision: hooks.DecisionAllow}
		if !d.Allowed && d.Action == string(gate.ActionDeny) {
			exp.Decision = hooks.DecisionBlock
			exp.Attempt = d.Attempt
		}
		f.ExpectedResults = append(f.ExpectedResults, exp)
	}
	return f, nil
}

// stepFromEvent maps an audited event back to the hook call that produced
// it.
func stepFromEvent(ev audit.Event) (FixtureStep, bool, error) {
	var payload hooks.Payload
	if ev.PayloadJSON != "" {
		if err := json.Unmarshal([]byte(ev.PayloadJSON), &payload); err != nil {
			return FixtureStep{}, false, fmt.Errorf("event %s payload: %w", ev.ID, err)
		}
	}
	input := map[string]any{"sessionID": ev.SessionID}

	var hook string
	switch hooks.Kind(ev.Kind) {
	case hooks.KindSessionCreated, hooks.KindSessionDeleted:
		hook = hooks.HookEvent
		input = map[string]any{
			"type":       ev.Kind,
			"properties": map[string]any{"info": map[string]any{"id": ev.SessionID}},
		}
	case hooks.KindMessageUpdated:
		hook = hooks.HookChatMessage
		if payload.MessageID != "" {
			input["messageID"] = payload.MessageID
		}
		if payload.Role != "" {
			input["role"] = payload.Role
		}
		if payload.Text != "" {
			input["text"] = payload.Text
		}
	case hooks.KindStop:
		hook = hooks.HookStop
	case hooks.KindSystemTransform:
		hook = hooks.HookSystemTransform
	case hooks.KindCompacting:
		hook = hooks.HookCompaction
	case hooks.KindToolExecuted:
		hook = hooks.HookToolExecuted
		if payload.Tool != "" {
			input["tool"] = payload.Tool
		}
	default:
		return FixtureStep{}, false, nil
	}
	return FixtureStep{Hook: hook, Input: input}, true, nil
}

// #endregion export
