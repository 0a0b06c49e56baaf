package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ravynsoft/go-dispatch/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	workDurationSeconds *prom.HistogramVec
	workPanicTotal      *prom.CounterVec
	overrideTotal       *prom.CounterVec
	discardedTotal      *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers the collectors. Collectors that
// are already registered with reg are shared.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "dispatch"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.00001, 4, 10)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "work_duration_seconds",
		Help:      "Work item execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"queue", "qos"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "work_panic_total",
		Help:      "Total number of work items that panicked.",
	}, []string{"queue"})
	overrideVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "queue_override_total",
		Help:      "Total number of queue priority overrides, by the class raised to.",
	}, []string{"queue", "qos"})
	discardedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "work_discarded_total",
		Help:      "Total number of work items discarded by queue teardown.",
	}, []string{"queue"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if overrideVec, err = registerCollector(reg, overrideVec); err != nil {
		return nil, err
	}
	if discardedVec, err = registerCollector(reg, discardedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		workDurationSeconds: durationVec,
		workPanicTotal:      panicVec,
		overrideTotal:       overrideVec,
		discardedTotal:      discardedVec,
	}, nil
}

// RecordWorkDuration records work item execution duration.
func (m *MetricsExporter) RecordWorkDuration(queueLabel string, qos core.QoSClass, duration time.Duration) {
	if m == nil {
		return
	}
	m.workDurationSeconds.WithLabelValues(normalizeLabel(queueLabel, "unknown"), qosLabel(qos)).Observe(duration.Seconds())
}

// RecordWorkPanic records work item panics.
func (m *MetricsExporter) RecordWorkPanic(queueLabel string, panicInfo any) {
	if m == nil {
		return
	}
	m.workPanicTotal.WithLabelValues(normalizeLabel(queueLabel, "unknown")).Inc()
}

// RecordOverride records a raised queue override.
func (m *MetricsExporter) RecordOverride(queueLabel string, qos core.QoSClass) {
	if m == nil {
		return
	}
	m.overrideTotal.WithLabelValues(normalizeLabel(queueLabel, "unknown"), qosLabel(qos)).Inc()
}

// RecordDiscarded records items dropped by queue teardown.
func (m *MetricsExporter) RecordDiscarded(queueLabel string, count int) {
	if m == nil {
		return
	}
	m.discardedTotal.WithLabelValues(normalizeLabel(queueLabel, "unknown")).Add(float64(count))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// qosLabel maps a class to a label value; "user-interactive" becomes
// "user_interactive".
func qosLabel(qos core.QoSClass) string {
	switch qos {
	case core.QoSMaintenance:
		return "maintenance"
	case core.QoSBackground:
		return "background"
	case core.QoSUtility:
		return "utility"
	case core.QoSDefault:
		return "default"
	case core.QoSUserInitiated:
		return "user_initiated"
	case core.QoSUserInteractive:
		return "user_interactive"
	default:
		return "unspecified"
	}
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
