package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.ObserveStoreOp("add", nil)
	m.RecordTruncation()
	m.RecordSkipped()
	m.ObserveRecord("build_log_data", errors.New("boom"))
	m.RecordTrigger()
	m.ObserveSweep(3, 1, time.Second)

	if m.Registry() != nil {
		t.Error("Registry() on nil Metrics should be nil")
	}
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveStoreOp("add", nil)
	m.ObserveStoreOp("add", nil)
	m.ObserveStoreOp("add", errors.New("db down"))
	m.RecordTruncation()
	m.ObserveSweep(5, 2, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.StoreOperations.WithLabelValues("add", "ok")); got != 2 {
		t.Errorf("add/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.StoreOperations.WithLabelValues("add", "error")); got != 1 {
		t.Errorf("add/error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Truncations); got != 1 {
		t.Errorf("truncations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RetentionPruned); got != 5 {
		t.Errorf("pruned = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.RetentionFailures); got != 2 {
		t.Errorf("failures = %v, want 2", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RecordTrigger()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	if rr.Code != 200 {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "jenkins_memory_analysis_triggers_total 1") {
		t.Error("exposition output missing analysis trigger counter")
	}
}
