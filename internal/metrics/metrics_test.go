package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCountsByAttribute(t *testing.T) {
	p := NewProvider()
	defer p.Shutdown(context.Background())
	m, err := New(p)
	require.NoError(t, err)

	ctx := context.Background()
	m.StopDecision(ctx, "deny")
	m.StopDecision(ctx, "deny")
	m.StopDecision(ctx, "allow")
	m.PromptAnalyzed(ctx, true)
	m.ToolCall(ctx)
	m.NotifyDone(ctx, 10*time.Millisecond, errors.New("timeout"))
	m.NotifyDone(ctx, 5*time.Millisecond, nil)

	snap, err := p.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap["stopgate.stop.decisions{action=deny}"])
	assert.Equal(t, 1.0, snap["stopgate.stop.decisions{action=allow}"])
	assert.Equal(t, 1.0, snap["stopgate.prompts.analyzed{thorough=true}"])
	assert.Equal(t, 1.0, snap["stopgate.tool.calls"])
	assert.Equal(t, 1.0, snap["stopgate.notify.failures"])
	assert.Equal(t, 2.0, snap["stopgate.notify.duration_seconds.count"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.StopDecision(ctx, "deny")
	m.PromptAnalyzed(ctx, false)
	m.FlagAdopted(ctx, "high")
	m.NotifyDone(ctx, time.Second, nil)
	m.ToolCall(ctx)
	m.Malformed(ctx)
}
