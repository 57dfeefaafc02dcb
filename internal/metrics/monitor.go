// Package metrics records per-operation timings and computes summary
// statistics over a bounded in-memory log, mirroring each sample into
// OpenTelemetry instruments for export.
package metrics

import (
	"context"
	"math"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/charlesparmar/kenko/internal/telemetry"
)

// DefaultMaxSamples bounds the in-memory sample log.
const DefaultMaxSamples = 10000

// Sample is one recorded operation timing.
type Sample struct {
	Operation string         `json:"operation"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Statistics summarizes a slice of samples. Durations are milliseconds;
// SuccessRate is a 0-100 percentage.
type Statistics struct {
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_rate"`
	MeanMS      float64 `json:"mean_ms"`
	MedianMS    float64 `json:"median_ms"`
	MinMS       float64 `json:"min_ms"`
	MaxMS       float64 `json:"max_ms"`
	StdDevMS    float64 `json:"std_dev_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
}

// Monitor collects operation timings. Recording is cheap and never fails;
// when the log exceeds its bound the oldest samples are discarded.
type Monitor struct {
	mu         sync.Mutex
	samples    []Sample
	maxSamples int
	now        func() time.Time

	opCounter  metric.Int64Counter
	opDuration metric.Float64Histogram
}

// NewMonitor creates a Monitor keeping at most maxSamples recent samples
// (DefaultMaxSamples when <= 0).
func NewMonitor(maxSamples int) *Monitor {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	meter := telemetry.Meter("kenko/metrics")
	counter, _ := meter.Int64Counter("kenko.operation.count",
		metric.WithDescription("Operations recorded, by name and outcome"),
	)
	hist, _ := meter.Float64Histogram("kenko.operation.duration",
		metric.WithDescription("Operation duration (ms)"),
		metric.WithUnit("ms"),
	)
	return &Monitor{
		samples:    make([]Sample, 0, 256),
		maxSamples: maxSamples,
		now:        time.Now,
		opCounter:  counter,
		opDuration: hist,
	}
}

// Record appends one sample and mirrors it to the OTEL instruments.
func (m *Monitor) Record(ctx context.Context, operation string, duration time.Duration, success bool, metadata map[string]any) {
	m.mu.Lock()
	m.samples = append(m.samples, Sample{
		Operation: operation,
		Duration:  duration,
		Success:   success,
		Timestamp: m.now(),
		Metadata:  metadata,
	})
	if overflow := len(m.samples) - m.maxSamples; overflow > 0 {
		m.samples = slices.Delete(m.samples, 0, overflow)
	}
	m.mu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	)
	m.opCounter.Add(ctx, 1, attrs)
	m.opDuration.Record(ctx, float64(duration)/float64(time.Millisecond), attrs)
}

// Time runs fn and records its duration under operation, treating a non-nil
// error as failure. The error is returned unchanged.
func (m *Monitor) Time(ctx context.Context, operation string, fn func() error) error {
	start := m.now()
	err := fn()
	m.Record(ctx, operation, m.now().Sub(start), err == nil, nil)
	return err
}

// Stats computes statistics over recorded samples. operation filters by name
// ("" matches all); window keeps only samples newer than now-window (0 keeps
// everything). An empty selection yields a zero Statistics.
func (m *Monitor) Stats(operation string, window time.Duration) Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cutoff time.Time
	if window > 0 {
		cutoff = m.now().Add(-window)
	}

	durations := make([]float64, 0, len(m.samples))
	succeeded := 0
	for _, s := range m.samples {
		if operation != "" && s.Operation != operation {
			continue
		}
		if window > 0 && s.Timestamp.Before(cutoff) {
			continue
		}
		durations = append(durations, float64(s.Duration)/float64(time.Millisecond))
		if s.Success {
			succeeded++
		}
	}
	return summarize(durations, succeeded)
}

// Operations returns the distinct operation names seen so far.
func (m *Monitor) Operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{})
	var out []string
	for _, s := range m.samples {
		if _, ok := seen[s.Operation]; !ok {
			seen[s.Operation] = struct{}{}
			out = append(out, s.Operation)
		}
	}
	return out
}

// Len reports the number of retained samples.
func (m *Monitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

// Reset discards all retained samples.
func (m *Monitor) Reset() {
	m.mu.Lock()
	m.samples = m.samples[:0]
	m.mu.Unlock()
}

func summarize(durations []float64, succeeded int) Statistics {
	n := len(durations)
	if n == 0 {
		return Statistics{}
	}

	slices.Sort(durations)

	sum := 0.0
	for _, d := range durations {
		sum += d
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, d := range durations {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(n)

	return Statistics{
		Count:       n,
		SuccessRate: float64(succeeded) / float64(n) * 100,
		MeanMS:      mean,
		MedianMS:    percentile(durations, 50),
		MinMS:       durations[0],
		MaxMS:       durations[n-1],
		StdDevMS:    math.Sqrt(variance),
		P95MS:       percentile(durations, 95),
		P99MS:       percentile(durations, 99),
	}
}

// percentile reads the p-th percentile from an already-sorted slice using
// nearest-rank on the inclusive index.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
