package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/stopgate/internal/gate"
	"github.com/danielpatrickdp/stopgate/internal/hooks"
	"github.com/danielpatrickdp/stopgate/internal/notify"
	"github.com/danielpatrickdp/stopgate/internal/session"
)

func TestServeRoundTrip(t *testing.T) {
	var out bytes.Buffer
	var mu sync.Mutex
	store := session.NewStore()
	g := gate.NewGate(store, notify.NewWriter(&out, &mu), gate.Config{MaxDenials: 3, NotifyTimeout: time.Second})
	srv := NewServer(hooks.New(hooks.Deps{Store: store, Gate: g}), &out, &mu, nil)

	in := strings.Join([]string{
		`{"id":"1","hook":"chat.message","input":{"sessionID":"s1","text":"please do an exhaustive review"}}`,
		`{"id":"2","hook":"system-prompt-transform","input":{"sessionID":"s1"},"output":{"parts":["base"]}}`,
		`{"id":"3","hook":"stop","input":{"sessionID":"s1"}}`,
		`not json`,
		``,
	}, "\n")
	require.NoError(t, srv.Serve(context.Background(), strings.NewReader(in)))

	var lines []map[string]any
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 5)

	assert.Equal(t, "1", lines[0]["id"])

	parts := lines[1]["output"].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "base", parts[0])

	// the inject line is written before the stop response
	assert.Equal(t, "inject", lines[2]["type"])
	assert.Equal(t, "s1", lines[2]["session_id"])
	assert.Equal(t, "3", lines[3]["id"])
	assert.Equal(t, "block", lines[3]["decision"])

	assert.Contains(t, lines[4]["error"], "invalid json")
}

func TestServeStopsOnCanceledContext(t *testing.T) {
	var out bytes.Buffer
	store := session.NewStore()
	srv := NewServer(hooks.New(hooks.Deps{Store: store, Gate: gate.NewGate(store, nil, gate.DefaultConfig())}), &out, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := srv.Serve(ctx, strings.NewReader(`{"id":"1","hook":"stop","input":{"sessionID":"s"}}`+"\n"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}
