package hooks

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned when an envelope has no usable session id.
var ErrMalformedEvent = errors.New("malformed event")

// #region kinds

// Kind is the canonical event type.
type Kind string

const (
	KindUnknown         Kind = ""
	KindSessionCreated  Kind = "session.created"
	KindSessionDeleted  Kind = "session.deleted"
	KindMessageUpdated  Kind = "message.updated"
	KindStop            Kind = "stop"
	KindSystemTransform Kind = "system.transform"
	KindCompacting      Kind = "session.compacting"
	KindToolExecuted    Kind = "tool.execute.after"
)

// Hook names in the plugin table.
const (
	HookEvent           = "event"
	HookChatMessage     = "chat.message"
	HookStop            = "stop"
	HookSystemTransform = "system-prompt-transform"
	HookCompaction      = "compaction"
	HookToolExecuted    = "tool.execute.after"
)

// eventTypes maps host "event" types to kinds. Types not listed are ignored.
var eventTypes = map[string]Kind{
	"session.created":      KindSessionCreated,
	"session.deleted":      KindSessionDeleted,
	"message.updated":      KindMessageUpdated,
	"message.part.updated": KindMessageUpdated,
	"chat.message":         KindMessageUpdated,
	"session.idle":         KindStop,
	"stop":                 KindStop,
	"session.compacting":   KindCompacting,
	"tool.execute.after":   KindToolExecuted,
}

var hookKinds = map[string]Kind{
	HookChatMessage:     KindMessageUpdated,
	HookStop:            KindStop,
	HookSystemTransform: KindSystemTransform,
	HookCompaction:      KindCompacting,
	HookToolExecuted:    KindToolExecuted,
}

// #endregion kinds

// #region event

// Payload carries the fields business logic reads.
type Payload struct {
	MessageID string `json:"message_id,omitempty"`
	Role      string `json:"role,omitempty"`
	Text      string `json:"text,omitempty"`
	Tool      string `json:"tool,omitempty"`
}

// Event is a host envelope reduced to its canonical shape.
type Event struct {
	SessionID string  `json:"session_id"`
	Kind      Kind    `json:"kind"`
	Payload   Payload `json:"payload"`
}

// #endregion event

// #region normalize

// Normalize maps a raw envelope delivered to hook into an Event. Unknown
// event types come back as KindUnknown with no error.
func Normalize(hook string, raw map[string]any) (Event, error) {
	var kind Kind
	if hook == HookEvent {
		typ, _ := raw["type"].(string)
		kind = eventTypes[typ]
	} else {
		kind = hookKinds[hook]
	}
	if kind == KindUnknown {
		return Event{}, nil
	}

	ev := Event{Kind: kind, SessionID: sessionID(raw, kind)}
	if ev.SessionID == "" {
		return Event{}, fmt.Errorf("%w: %s has no session id", ErrMalformedEvent, hook)
	}

	switch kind {
	case KindMessageUpdated:
		ev.Payload.MessageID = firstString(raw,
			"messageID", "message_id", "properties.part.messageID", "properties.info.id", "id")
		ev.Payload.Role = strings.ToLower(firstString(raw,
			"role", "properties.role", "properties.info.role", "message.role"))
		ev.Payload.Text = messageText(raw)
	case KindToolExecuted:
		ev.Payload.Tool = firstString(raw, "tool", "properties.tool", "name")
	}
	return ev, nil
}

func sessionID(raw map[string]any, kind Kind) string {
	id := firstString(raw,
		"sessionID", "session_id",
		"properties.sessionID", "properties.session_id",
		"properties.info.sessionID", "properties.info.session_id",
		"properties.part.sessionID",
		"message.sessionID",
	)
	if id == "" && (kind == KindSessionCreated || kind == KindSessionDeleted) {
		id = firstString(raw, "properties.info.id")
	}
	return id
}

func messageText(raw map[string]any) string {
	if s := firstString(raw,
		"text", "prompt", "properties.text", "properties.part.text",
		"properties.info.text", "properties.info.content", "message.content",
	); s != "" {
		return s
	}
	for _, path := range []string{"parts", "properties.parts", "properties.info.parts", "output.parts"} {
		if s := joinTextParts(lookup(raw, path)); s != "" {
			return s
		}
	}
	return ""
}

// joinTextParts concatenates the text of {"type":"text","text":...} parts.
func joinTextParts(v any) string {
	parts, ok := v.([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, p := range parts {
		m, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if typ, _ := m["type"].(string); typ != "" && typ != "text" {
			continue
		}
		if s, _ := m["text"].(string); s != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}

func firstString(raw map[string]any, paths ...string) string {
	for _, p := range paths {
		if s, ok := lookup(raw, p).(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// lookup walks a dotted path through nested maps.
func lookup(raw map[string]any, path string) any {
	var cur any = raw
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// #endregion normalize
