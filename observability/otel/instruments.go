// Package otel records engine activity through OpenTelemetry instruments.
package otel

import (
	"context"
	"time"

	gootel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ravynsoft/go-dispatch/core"
)

// meterName is the instrumentation scope name for dispatch metrics.
const meterName = "github.com/ravynsoft/go-dispatch"

// Instruments implements both core.Hook and core.Metrics.
//
// Instruments:
//   - dispatch.continuation.events (Int64Counter): instrumentation events,
//     with attributes: event, queue, kind
//   - dispatch.work.duration (Float64Histogram): work execution time in
//     seconds, with attributes: queue, qos
//   - dispatch.work.panics (Int64Counter): work items that panicked
//   - dispatch.queue.overrides (Int64Counter): override raises, with qos
//   - dispatch.work.discarded (Int64Counter): items dropped by teardown
type Instruments struct {
	events    metric.Int64Counter
	duration  metric.Float64Histogram
	panics    metric.Int64Counter
	overrides metric.Int64Counter
	discarded metric.Int64Counter
}

var (
	_ core.Hook    = (*Instruments)(nil)
	_ core.Metrics = (*Instruments)(nil)
)

// New creates instruments on the global MeterProvider. Without a configured
// provider they are no-ops.
func New() *Instruments {
	return NewWithMeter(gootel.Meter(meterName))
}

// NewWithMeter creates instruments on meter.
func NewWithMeter(meter metric.Meter) *Instruments {
	// on error the API returns no-op instruments
	events, _ := meter.Int64Counter(
		"dispatch.continuation.events",
		metric.WithDescription("Continuation lifecycle events"),
		metric.WithUnit("{event}"),
	)
	duration, _ := meter.Float64Histogram(
		"dispatch.work.duration",
		metric.WithDescription("Duration of work item execution in seconds"),
		metric.WithUnit("s"),
	)
	panics, _ := meter.Int64Counter(
		"dispatch.work.panics",
		metric.WithDescription("Work items that panicked"),
		metric.WithUnit("{item}"),
	)
	overrides, _ := meter.Int64Counter(
		"dispatch.queue.overrides",
		metric.WithDescription("Queue priority override raises"),
		metric.WithUnit("{override}"),
	)
	discarded, _ := meter.Int64Counter(
		"dispatch.work.discarded",
		metric.WithDescription("Work items discarded by queue teardown"),
		metric.WithUnit("{item}"),
	)
	return &Instruments{
		events:    events,
		duration:  duration,
		panics:    panics,
		overrides: overrides,
		discarded: discarded,
	}
}

// OnEvent implements core.Hook.
func (i *Instruments) OnEvent(ev core.Event) {
	i.events.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event", ev.Kind.String()),
		attribute.String("queue", ev.Queue),
		attribute.String("kind", ev.Continuation.String()),
	))
}

func (i *Instruments) RecordWorkDuration(queueLabel string, qos core.QoSClass, duration time.Duration) {
	i.duration.Record(context.Background(), duration.Seconds(), metric.WithAttributes(
		attribute.String("queue", queueLabel),
		attribute.String("qos", qos.String()),
	))
}

func (i *Instruments) RecordWorkPanic(queueLabel string, _ any) {
	i.panics.Add(context.Background(), 1, metric.WithAttributes(attribute.String("queue", queueLabel)))
}

func (i *Instruments) RecordOverride(queueLabel string, qos core.QoSClass) {
	i.overrides.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("queue", queueLabel),
		attribute.String("qos", qos.String()),
	))
}

func (i *Instruments) RecordDiscarded(queueLabel string, count int) {
	i.discarded.Add(context.Background(), int64(count), metric.WithAttributes(attribute.String("queue", queueLabel)))
}
