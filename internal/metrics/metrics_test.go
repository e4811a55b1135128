package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorderCountsJobs(t *testing.T) {
	rec := NewRecorder()
	rec.RecordJob("rating_update", "done", time.Millisecond)
	rec.RecordJob("rating_update", "skipped", time.Millisecond)
	rec.RecordJob("rating_update", "skipped", time.Millisecond)
	rec.RecordJobRetry("rating_update")

	if got := rec.JobCount("rating_update", "skipped"); got != 2 {
		t.Fatalf("expected 2 skipped, got %d", got)
	}
	snap := rec.Snapshot()
	if snap.JobRetries["rating_update"] != 1 {
		t.Fatalf("expected 1 retry, got %d", snap.JobRetries["rating_update"])
	}
}

func TestRecorderBroadcastAndSubscribers(t *testing.T) {
	rec := NewRecorder()
	rec.RecordBroadcast(0)
	rec.RecordBroadcast(2)
	rec.AddSubscribers(3)
	rec.AddSubscribers(-1)

	snap := rec.Snapshot()
	if snap.Published != 2 || snap.Dropped != 2 || snap.Subscribers != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var rec *Recorder
	rec.RecordJob("x", "done", 0)
	rec.RecordJobRetry("x")
	rec.RecordBroadcast(1)
	rec.AddSubscribers(1)
	rec.RecordHTTPRequest("GET", "/", 200, 0)
	if snap := rec.Snapshot(); snap.Published != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSetupDisabledReturnsInMemoryRecorder(t *testing.T) {
	rec, handler, shutdown, err := Setup(context.Background(), TelemetryConfig{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if rec == nil || handler != nil {
		t.Fatalf("expected recorder without handler, got %v %v", rec, handler)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupExposesPrometheusHandler(t *testing.T) {
	rec, handler, shutdown, err := Setup(context.Background(), TelemetryConfig{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer shutdown(context.Background())

	rec.RecordJob("stats_recompute", "done", 5*time.Millisecond)
	rec.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rr.Body)
	if !strings.Contains(string(body), "jobs_processed_total") {
		t.Fatalf("expected jobs counter in exposition, got %s", body)
	}
}
