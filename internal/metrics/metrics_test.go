package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SetQueueDepth(3)
	m.TaskDone("message", ResultOK)
	m.NotifyDone("receive_message", false)
	m.SweepRow("message", ResultFailed)
	m.ObserveSweep(0.1)
	if m.Registry() != nil {
		t.Error("nil Metrics should have nil registry")
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New("main")
	m.SetQueueDepth(2)
	m.TaskDone("status", ResultFailed)
	m.NotifyDone("update_message", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	for _, want := range []string{
		`wpp_queue_depth{instance="main"} 2`,
		`wpp_queue_tasks_total{instance="main",kind="status",result="failed"} 1`,
		`wpp_notify_calls_total{instance="main",op="update_message",result="ok"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
