package grpcapi

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/stopgate/internal/hooks"
)

// #region client

// Client calls a remote plugin service. Hosts written in Go use it; the
// replay and test tooling do too.
type Client struct {
	conn grpc.ClientConnInterface
}

// Dial builds a client for addr.
func Dial(addr string) (*Client, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return NewClient(conn), conn, nil
}

// NewClient wraps conn.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call invokes rpc with input and the current buffer parts, returning the
// hook response and the updated parts.
func (c *Client) Call(ctx context.Context, rpc string, input map[string]any, parts []string) (hooks.Response, []string, error) {
	in := make([]any, len(parts))
	for i, p := range parts {
		in[i] = p
	}
	req, err := structpb.NewStruct(map[string]any{"input": input, "parts": in})
	if err != nil {
		return hooks.Response{}, nil, fmt.Errorf("encode request: %w", err)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, FullMethod(rpc), req, out); err != nil {
		return hooks.Response{}, nil, fmt.Errorf("%s rpc: %w", rpc, err)
	}

	fields := out.GetFields()
	var resp hooks.Response
	resp.Decision = fields["decision"].GetStringValue()
	resp.Reason = fields["reason"].GetStringValue()
	resp.Attempt = int(fields["attempt"].GetNumberValue())
	var got []string
	for _, v := range fields["parts"].GetListValue().GetValues() {
		got = append(got, v.GetStringValue())
	}
	return resp, got, nil
}

// #endregion client
