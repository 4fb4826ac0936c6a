package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestDisabledMetricsIgnoreWrites(t *testing.T) {
	m := New(Config{Enabled: false})
	m.Inc(MetricLogout)
	if m.Value(MetricLogout) != 0 {
		t.Fatalf("disabled metrics must not count")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatalf("disabled snapshot must be empty")
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLogout)
	nilMetrics.Observe(MetricAuthenticateLatency, time.Millisecond)
	if nilMetrics.Enabled() {
		t.Fatalf("nil metrics must report disabled")
	}
}

func TestConcurrentIncrements(t *testing.T) {
	m := New(Config{Enabled: true})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricRefreshSuccess); got != 16000 {
		t.Fatalf("expected 16000, got %d", got)
	}
	if got := m.Snapshot().Counters[MetricRefreshSuccess]; got != 16000 {
		t.Fatalf("snapshot mismatch: %d", got)
	}
}

func TestLatencyBuckets(t *testing.T) {
	m := New(Config{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricAuthenticateLatency, 2*time.Millisecond)
	m.Observe(MetricAuthenticateLatency, 30*time.Millisecond)
	m.Observe(MetricAuthenticateLatency, 2*time.Second)
	m.Observe(MetricLogout, time.Millisecond)

	h := m.Snapshot().Histograms[MetricAuthenticateLatency]
	if len(h) != HistBucketCount {
		t.Fatalf("expected %d buckets, got %d", HistBucketCount, len(h))
	}
	if h[0] != 1 || h[3] != 1 || h[7] != 1 {
		t.Fatalf("unexpected bucket distribution: %v", h)
	}
	if _, ok := m.Snapshot().Histograms[MetricLogout]; ok {
		t.Fatalf("only the authenticate latency metric has a histogram")
	}
}
