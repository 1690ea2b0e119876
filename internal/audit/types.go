package audit

import "time"

// #region records

// Event is one normalized hook invocation.
type Event struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Kind        string    `json:"kind"`
	PayloadJSON string    `json:"payload_json,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Flag is one adopted thorough classification.
type Flag struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	PromptNumber int       `json:"prompt_number"`
	Confidence   string    `json:"confidence"`
	Indicators   []string  `json:"indicators"`
	Prompt       string    `json:"prompt,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Decision is one stop-gate outcome.
type Decision struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Action     string    `json:"action"` // "allow" | "allow_reset" | "deny"
	Attempt    int       `json:"attempt,omitempty"`
	Allowed    bool      `json:"allowed"`
	FailedOpen bool      `json:"failed_open,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SessionSummary aggregates audit rows per session.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	Events    int       `json:"events"`
	Denials   int       `json:"denials"`
	LastSeen  time.Time `json:"last_seen"`
}

// #endregion records
