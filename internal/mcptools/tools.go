// Package mcptools exposes the analyzer and session state as MCP tools.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/danielpatrickdp/stopgate/internal/analyzer"
	"github.com/danielpatrickdp/stopgate/internal/extract"
	"github.com/danielpatrickdp/stopgate/internal/review"
	"github.com/danielpatrickdp/stopgate/internal/session"
)

// Version is reported in the MCP handshake.
var Version = "dev"

// Sessions is the read side of the session store.
type Sessions interface {
	IDs() []string
	Lookup(id string) (session.State, error)
}

// NewServer registers every tool on a fresh MCP server.
func NewServer(a *analyzer.Analyzer, sessions Sessions, maxWords, maxDenials int) *server.MCPServer {
	s := server.NewMCPServer("stopgate", Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	analyze := NewAnalyzeTool(a, maxWords)
	s.AddTool(analyze.Definition(), analyze.Handle)

	status := NewStatusTool(sessions, maxDenials)
	s.AddTool(status.Definition(), status.Handle)

	return s
}

// #region analyze

// AnalyzeTool handles thoroughness_analyze.
type AnalyzeTool struct {
	analyzer *analyzer.Analyzer
	maxWords int
}

// NewAnalyzeTool creates an AnalyzeTool.
func NewAnalyzeTool(a *analyzer.Analyzer, maxWords int) *AnalyzeTool {
	if a == nil {
		a = analyzer.NewDefault()
	}
	return &AnalyzeTool{analyzer: a, maxWords: maxWords}
}

// Definition returns the MCP tool definition.
func (t *AnalyzeTool) Definition() mcp.Tool {
	return mcp.NewTool("thoroughness_analyze",
		mcp.WithDescription(
			"Classify a prompt for thoroughness. Reports whether it demands exhaustive work, "+
				"the matched indicators, the confidence, and the review prompt that would be injected.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Prompt text as the user typed it"),
		),
	)
}

// Handle processes a thoroughness_analyze call.
func (t *AnalyzeTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if strings.TrimSpace(text) == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	ex := extract.Extract(text, t.maxWords)
	if !ex.ShouldAnalyze {
		return mcp.NewToolResultText(fmt.Sprintf("Not analyzed: %s.", ex.Reason)), nil
	}

	res := t.analyzer.Analyze(ex.Text)
	var b strings.Builder
	fmt.Fprintf(&b, "Thorough: %t\nConfidence: %s\n", res.IsThorough, res.Confidence)
	if len(res.MatchedIndicators) > 0 {
		fmt.Fprintf(&b, "Indicators: %s\n", strings.Join(res.MatchedIndicators, ", "))
	}
	if ex.Reason == extract.ReasonShortAfterSeparator {
		b.WriteString("Analyzed the text after the last separator line.\n")
	}
	if res.IsThorough {
		b.WriteString("\n")
		b.WriteString(review.Render(res))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// #endregion analyze

// #region status

// StatusTool handles thoroughness_status.
type StatusTool struct {
	sessions   Sessions
	maxDenials int
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(sessions Sessions, maxDenials int) *StatusTool {
	return &StatusTool{sessions: sessions, maxDenials: maxDenials}
}

// Definition returns the MCP tool definition.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("thoroughness_status",
		mcp.WithDescription(
			"Show the stop-gate state of a session, or list tracked sessions when no id is given.",
		),
		mcp.WithString("session_id",
			mcp.Description("Session to inspect"),
		),
	)
}

// Handle processes a thoroughness_status call.
func (t *StatusTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		ids := t.sessions.IDs()
		if len(ids) == 0 {
			return mcp.NewToolResultText("No sessions tracked."), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Tracking %d sessions:\n", len(ids))
		for _, sid := range ids {
			st, err := t.sessions.Lookup(sid)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "- %s thorough=%t denials=%d\n", sid, st.Thorough(), st.StopDenialCount)
		}
		return mcp.NewToolResultText(b.String()), nil
	}

	st, err := t.sessions.Lookup(id)
	if errors.Is(err, session.ErrSessionNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s\nPrompts: %d\nTool calls: %d\n", id, st.PromptCount, st.ToolCalls)
	if !st.Thorough() {
		b.WriteString("No thorough request active.\n")
	} else {
		b.WriteString(review.SystemStatus(st.Analysis, st.StopDenialCount, t.maxDenials))
		b.WriteString("\n")
	}
	for _, h := range st.History {
		fmt.Fprintf(&b, "- prompt %d: %s [%s]\n", h.PromptNumber, h.Confidence, strings.Join(h.Indicators, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}

// #endregion status
