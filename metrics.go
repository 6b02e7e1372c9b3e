package webhooks

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector receives counters and timings from the delivery pipeline.
// Implementations must be safe for use from concurrent delivery goroutines.
type MetricsCollector interface {
	IncrementCounter(name string, tags map[string]string)
	RecordDuration(name string, duration time.Duration, tags map[string]string)
}

// NopMetricsCollector discards all metrics. Used as the default when no
// collector is configured.
type NopMetricsCollector struct{}

// NewNopMetricsCollector creates a new NopMetricsCollector.
func NewNopMetricsCollector() *NopMetricsCollector {
	return &NopMetricsCollector{}
}

// IncrementCounter implements the MetricsCollector interface.
func (m *NopMetricsCollector) IncrementCounter(name string, tags map[string]string) {}

// RecordDuration implements the MetricsCollector interface.
func (m *NopMetricsCollector) RecordDuration(name string, duration time.Duration, tags map[string]string) {
}

// OTelMetricsCollector reports metrics through the OpenTelemetry SDK.
// Instruments are created on first use and cached.
type OTelMetricsCollector struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOTelMetricsCollector creates a collector on the default meter.
func NewOTelMetricsCollector() *OTelMetricsCollector {
	return NewOTelMetricsCollectorWithMeter(otel.Meter("webhooks"))
}

// NewOTelMetricsCollectorWithMeter creates a collector on a specific meter.
func NewOTelMetricsCollectorWithMeter(meter metric.Meter) *OTelMetricsCollector {
	return &OTelMetricsCollector{
		meter:      meter,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// IncrementCounter implements the MetricsCollector interface.
func (m *OTelMetricsCollector) IncrementCounter(name string, tags map[string]string) {
	counter, err := m.counter(name)
	if err != nil {
		return
	}
	counter.Add(context.Background(), 1, metric.WithAttributes(tagsToAttributes(tags)...))
}

// RecordDuration implements the MetricsCollector interface.
func (m *OTelMetricsCollector) RecordDuration(name string, duration time.Duration, tags map[string]string) {
	histogram, err := m.histogram(name)
	if err != nil {
		return
	}
	histogram.Record(context.Background(), duration.Seconds(), metric.WithAttributes(tagsToAttributes(tags)...))
}

func (m *OTelMetricsCollector) counter(name string) (metric.Int64Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if counter, ok := m.counters[name]; ok {
		return counter, nil
	}
	counter, err := m.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	m.counters[name] = counter
	return counter, nil
}

func (m *OTelMetricsCollector) histogram(name string) (metric.Float64Histogram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, ok := m.histograms[name]; ok {
		return histogram, nil
	}
	histogram, err := m.meter.Float64Histogram(name, metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	m.histograms[name] = histogram
	return histogram, nil
}

func tagsToAttributes(tags map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(tags))
	for key, value := range tags {
		attrs = append(attrs, attribute.String(key, value))
	}
	return attrs
}
