package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/stopgate/internal/config"
	"github.com/danielpatrickdp/stopgate/internal/hooks"
	"github.com/danielpatrickdp/stopgate/internal/transport/grpcapi"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(t.TempDir(), "audit.db")
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewWiresAudit(t *testing.T) {
	a, err := New(testConfig(t), zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	a.Plugin.Call(ctx, hooks.HookChatMessage, map[string]any{"sessionID": "s", "text": "be thorough"}, &hooks.Buffer{})
	resp := a.Plugin.Call(ctx, hooks.HookStop, map[string]any{"sessionID": "s"}, &hooks.Buffer{})
	assert.Equal(t, hooks.DecisionBlock, resp.Decision)

	flags, err := a.Audit.ListFlags("s", 0)
	require.NoError(t, err)
	assert.Len(t, flags, 1)
	decisions, err := a.Audit.ListDecisions("s", 0)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, "deny", decisions[0].Action)

	snap, err := a.Provider.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, snap["stopgate.stop.decisions{action=deny}"])
}

func TestNewRejectsBadLexicon(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("high: [unterminated"), 0o644))
	cfg.Analyzer.LexiconPath = path

	_, err := New(cfg, nil, Options{})
	assert.ErrorContains(t, err, "load lexicon")
}

func TestLexiconOverride(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("high: [scrupulous]\n"), 0o644))
	cfg.Analyzer.LexiconPath = path

	a, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.True(t, a.Analyzer.Analyze("be scrupulous").IsThorough)
	assert.False(t, a.Analyzer.Analyze("be thorough").IsThorough)
}

func TestServeStdioUsesStdioNotifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifier.Kind = "stdio"
	var out bytes.Buffer
	a, err := New(cfg, nil, Options{Out: &out})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	in := `{"id":"1","hook":"chat.message","input":{"sessionID":"s","text":"review everything thoroughly"}}` + "\n" +
		`{"id":"2","hook":"stop","input":{"sessionID":"s"}}` + "\n"
	require.NoError(t, a.ServeStdio(context.Background(), strings.NewReader(in)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], `"type":"inject"`)
	assert.Contains(t, lines[2], `"decision":"block"`)
}

func TestServeNetwork(t *testing.T) {
	a, err := New(testConfig(t), nil, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	grpcLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	httpLis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.ServeNetwork(ctx, grpcLis, httpLis) }()

	client, conn, err := grpcapi.Dial(grpcLis.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	_, _, err = client.Call(callCtx, "ChatMessage", map[string]any{"sessionID": "s", "text": "check every test"}, nil)
	require.NoError(t, err)

	resp, err := http.Get("http://" + httpLis.Addr().String() + "/v1/sessions/s")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "s", body["id"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("ServeNetwork did not return after cancel")
	}
}
