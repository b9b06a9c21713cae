package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")

	m.RecordOperation("transfer", 1)
	m.RecordOperation("transfer", 2)
	m.RecordOperation("launch", 3)

	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("transfer")); got != 2 {
		t.Errorf("transfer ops = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LastSeq); got != 3 {
		t.Errorf("last seq = %v, want 3", got)
	}

	m.RecordSink("kafka", 0.01, nil)
	m.RecordSink("kafka", 0.02, errors.New("broker down"))
	if got := testutil.ToFloat64(m.SinkErrors.WithLabelValues("kafka")); got != 1 {
		t.Errorf("sink errors = %v, want 1", got)
	}

	m.UpdateLedger(50, 0.5, 4, true)
	if got := testutil.ToFloat64(m.Launched); got != 1 {
		t.Errorf("launched = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Holders); got != 4 {
		t.Errorf("holders = %v, want 4", got)
	}
}

func TestDefaultMetricsRegistered(t *testing.T) {
	if DefaultMetrics == nil {
		t.Fatal("DefaultMetrics is nil")
	}
	if Handler() == nil {
		t.Fatal("Handler is nil")
	}
}

func TestMetrics_TrackUptime(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.TrackUptime(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if got := testutil.ToFloat64(m.UptimeSeconds); got <= 0 {
		t.Errorf("uptime = %v, want > 0", got)
	}
}
