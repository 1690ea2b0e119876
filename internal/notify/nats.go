package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// #region publisher

// Publisher is the part of *nats.Conn the notifier uses.
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATS publishes injection requests for a host-side subscriber.
type NATS struct {
	pub    Publisher
	prefix string
}

// ConnectNATS dials url and returns a notifier publishing under prefix.
func ConnectNATS(url, prefix string) (*NATS, *nats.Conn, error) {
	nc, err := nats.Connect(url, nats.Name("stopgate"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	return NewNATS(nc, prefix), nc, nil
}

// NewNATS wraps an existing publisher.
func NewNATS(pub Publisher, prefix string) *NATS {
	if prefix == "" {
		prefix = "stopgate.inject"
	}
	return &NATS{pub: pub, prefix: prefix}
}

// Subject returns the subject used for sessionID.
func (n *NATS) Subject(sessionID string) string {
	return n.prefix + "." + sessionID
}

// Notify publishes the prompt and waits for the server to acknowledge the
// flush.
func (n *NATS) Notify(ctx context.Context, sessionID, text string) error {
	data, err := json.Marshal(InjectLine{Type: "inject", SessionID: sessionID, Role: "user", Text: text})
	if err != nil {
		return fmt.Errorf("encode inject message: %w", err)
	}
	subject := n.Subject(sessionID)
	if err := n.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	if err := n.pub.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	return nil
}

// #endregion publisher
