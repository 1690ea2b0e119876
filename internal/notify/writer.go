package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// #region writer

// InjectLine is the JSON line a stdio host reads to append a turn.
type InjectLine struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
}

// Writer emits injection requests as JSON lines on a shared stream.
type Writer struct {
	mu *sync.Mutex
	w  io.Writer
}

// NewWriter writes to w, serializing with mu. Pass the same mutex that
// guards other writers of w.
func NewWriter(w io.Writer, mu *sync.Mutex) *Writer {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Writer{mu: mu, w: w}
}

// Notify writes one inject line.
func (w *Writer) Notify(ctx context.Context, sessionID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(InjectLine{Type: "inject", SessionID: sessionID, Role: "user", Text: text})
	if err != nil {
		return fmt.Errorf("encode inject line: %w", err)
	}
	data = append(data, '\n')
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("write inject line: %w", err)
	}
	return nil
}

// #endregion writer
