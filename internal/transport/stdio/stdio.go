// Package stdio serves the plugin hook table over newline-delimited JSON.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/stopgate/internal/hooks"
	"github.com/danielpatrickdp/stopgate/internal/logging"
)

const maxLineBytes = 4 << 20

// #region wire

// Request is one hook invocation from the host.
type Request struct {
	ID     string         `json:"id"`
	Hook   string         `json:"hook"`
	Input  map[string]any `json:"input"`
	Output *hooks.Buffer  `json:"output,omitempty"`
}

// Response answers one Request. Inject lines written by the notifier share
// the stream and carry "type":"inject" instead of an id.
type Response struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Output   *hooks.Buffer `json:"output,omitempty"`
	Decision string        `json:"decision,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Attempt  int           `json:"attempt,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// #endregion wire

// #region server

// Server reads requests from one stream and writes responses to another.
type Server struct {
	plugin *hooks.Plugin
	log    *zap.Logger
	mu     *sync.Mutex
	out    io.Writer
}

// NewServer writes to out, serializing with mu. Pass the same mutex to the
// stdio notifier so inject lines never interleave with responses.
func NewServer(p *hooks.Plugin, out io.Writer, mu *sync.Mutex, log *zap.Logger) *Server {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Server{plugin: p, log: logging.OrNop(log), mu: mu, out: out}
}

// Serve handles requests in order until in is exhausted or ctx is done.
func (s *Server) Serve(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := s.write(s.handle(ctx, line)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.log.Warn("bad request line", zap.Error(err))
		return Response{Type: "response", Error: "invalid json: " + err.Error()}
	}
	if req.Output == nil {
		req.Output = &hooks.Buffer{}
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}
	resp := s.plugin.Call(ctx, req.Hook, req.Input, req.Output)
	return Response{
		ID:       req.ID,
		Type:     "response",
		Output:   req.Output,
		Decision: resp.Decision,
		Reason:   resp.Reason,
		Attempt:  resp.Attempt,
	}
}

func (s *Server) write(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	data = append(data, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// #endregion server
