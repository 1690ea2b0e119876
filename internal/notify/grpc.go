package notify

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

// InjectPromptMethod is the host RPC that appends a turn to a session.
const InjectPromptMethod = "/stopgate.host.v1.Host/InjectPrompt"

// #region client

// GRPC injects prompts through the host's gRPC endpoint.
type GRPC struct {
	conn grpc.ClientConnInterface
	role string
}

// DialGRPC builds a client for addr. No network I/O happens until the first
// call.
func DialGRPC(addr string) (*GRPC, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    30 * time.Second,
			Timeout: 10 * time.Second,
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return NewGRPC(conn), conn, nil
}

// NewGRPC wraps an existing connection.
func NewGRPC(conn grpc.ClientConnInterface) *GRPC {
	return &GRPC{conn: conn, role: "user"}
}

// Notify calls InjectPrompt and checks the host accepted it.
func (g *GRPC) Notify(ctx context.Context, sessionID, text string) error {
	req, err := structpb.NewStruct(map[string]any{
		"session_id": sessionID,
		"role":       g.role,
		"text":       text,
	})
	if err != nil {
		return fmt.Errorf("encode inject request: %w", err)
	}
	resp := &structpb.Struct{}
	if err := g.conn.Invoke(ctx, InjectPromptMethod, req, resp); err != nil {
		return fmt.Errorf("inject prompt rpc: %w", err)
	}
	if v, ok := resp.GetFields()["accepted"]; ok && !v.GetBoolValue() {
		return fmt.Errorf("host rejected prompt for session %s", sessionID)
	}
	return nil
}

// #endregion client
