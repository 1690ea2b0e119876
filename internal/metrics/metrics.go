// Package metrics counts classifier and stop-gate activity.
package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const meterName = "stopgate"

// #region instruments

// Metrics holds every instrument. A nil *Metrics records nothing.
type Metrics struct {
	PromptsAnalyzed metric.Int64Counter
	ThoroughFlags   metric.Int64Counter
	StopDecisions   metric.Int64Counter
	NotifyFailures  metric.Int64Counter
	ToolCalls       metric.Int64Counter
	MalformedEvents metric.Int64Counter
	NotifyLatency   metric.Float64Histogram
}

// New creates all instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PromptsAnalyzed, err = meter.Int64Counter("stopgate.prompts.analyzed",
		metric.WithDescription("User prompts run through the classifier"))
	if err != nil {
		return nil, err
	}

	m.ThoroughFlags, err = meter.Int64Counter("stopgate.prompts.thorough",
		metric.WithDescription("Thorough classifications adopted by a session"))
	if err != nil {
		return nil, err
	}

	m.StopDecisions, err = meter.Int64Counter("stopgate.stop.decisions",
		metric.WithDescription("Stop gate decisions by action"))
	if err != nil {
		return nil, err
	}

	m.NotifyFailures, err = meter.Int64Counter("stopgate.notify.failures",
		metric.WithDescription("Notifier calls that failed or timed out"))
	if err != nil {
		return nil, err
	}

	m.ToolCalls, err = meter.Int64Counter("stopgate.tool.calls",
		metric.WithDescription("Agent tool executions observed"))
	if err != nil {
		return nil, err
	}

	m.MalformedEvents, err = meter.Int64Counter("stopgate.events.malformed",
		metric.WithDescription("Host events dropped during normalization"))
	if err != nil {
		return nil, err
	}

	m.NotifyLatency, err = meter.Float64Histogram("stopgate.notify.duration_seconds",
		metric.WithDescription("Notifier call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// #endregion instruments

// #region recorders

func (m *Metrics) PromptAnalyzed(ctx context.Context, thorough bool) {
	if m == nil {
		return
	}
	m.PromptsAnalyzed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("thorough", thorough)))
}

func (m *Metrics) FlagAdopted(ctx context.Context, confidence string) {
	if m == nil {
		return
	}
	m.ThoroughFlags.Add(ctx, 1, metric.WithAttributes(attribute.String("confidence", confidence)))
}

func (m *Metrics) StopDecision(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.StopDecisions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *Metrics) NotifyDone(ctx context.Context, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.NotifyLatency.Record(ctx, elapsed.Seconds())
	if err != nil {
		m.NotifyFailures.Add(ctx, 1)
	}
}

func (m *Metrics) ToolCall(ctx context.Context) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1)
}

func (m *Metrics) Malformed(ctx context.Context) {
	if m == nil {
		return
	}
	m.MalformedEvents.Add(ctx, 1)
}

// #endregion recorders

// #region provider

// Provider is an in-process meter provider read on demand by the status API.
type Provider struct {
	*sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
}

// NewProvider returns a provider backed by a manual reader.
func NewProvider() *Provider {
	reader := sdkmetric.NewManualReader()
	return &Provider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		reader:        reader,
	}
}

// Snapshot collects current values keyed by instrument name plus sorted
// attributes, e.g. "stopgate.stop.decisions{action=deny}". Histograms report
// their observation count.
func (p *Provider) Snapshot(ctx context.Context) (map[string]float64, error) {
	var rm metricdata.ResourceMetrics
	if err := p.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name, dp.Attributes)] += float64(dp.Value)
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					out[seriesKey(m.Name+".count", dp.Attributes)] += float64(dp.Count)
				}
			}
		}
	}
	return out, nil
}

func seriesKey(name string, set attribute.Set) string {
	if set.Len() == 0 {
		return name
	}
	parts := make([]string, 0, set.Len())
	for _, kv := range set.ToSlice() {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	sort.Strings(parts)
	key := name + "{"
	for i, p := range parts {
		if i > 0 {
			key += ","
		}
		key += p
	}
	return key + "}"
}

// #endregion provider
