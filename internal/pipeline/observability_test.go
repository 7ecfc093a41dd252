package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestExpvarRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatal("generated name is empty")
	}
	rec.Observe("draw_image", StatusSuccess, 20*time.Millisecond)
	rec.Observe("draw_image", StatusSuccess, 30*time.Millisecond)
	rec.Observe("draw_image", StatusRejected, 5*time.Millisecond)
	rec.Observe("", StatusError, time.Second) // ignored

	snap := rec.Snapshot()
	if snap.DurationsMS["draw_image"] != 55 {
		t.Fatalf("duration total = %v, want 55", snap.DurationsMS["draw_image"])
	}
	if snap.Results["draw_image"][StatusSuccess] != 2 {
		t.Fatalf("success count = %d", snap.Results["draw_image"][StatusSuccess])
	}
	if snap.Results["draw_image"][StatusRejected] != 1 {
		t.Fatalf("rejected count = %d", snap.Results["draw_image"][StatusRejected])
	}

	// snapshots are copies
	snap.DurationsMS["draw_image"] = 0
	if rec.Snapshot().DurationsMS["draw_image"] != 55 {
		t.Fatal("snapshot mutation leaked into the recorder")
	}
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("NewPrometheusMetricsRecorder: %v", err)
	}
	rec.Observe("draw_image", StatusSuccess, 10*time.Millisecond)
	rec.Observe("draw_image", StatusError, 10*time.Millisecond)
	rec.Observe("render_drizzle", StatusSuccess, 10*time.Millisecond)

	got := testutil.CollectAndCount(rec.results)
	if got != 3 {
		t.Fatalf("counter series = %d, want 3", got)
	}
	if v := testutil.ToFloat64(rec.results.WithLabelValues("draw_image", StatusSuccess)); v != 1 {
		t.Fatalf("draw_image success = %v", v)
	}

	// double registration against the same registry must fail
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestJSONTracerEmitsSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	span := tracer.Start("draw_image")
	span.End(StatusSuccess, nil)
	tracer.Start("render_drizzle").End(StatusError, errors.New("kernel mismatch"))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(entries))
	}
	if entries[0].Operation != "draw_image" || entries[0].Status != StatusSuccess {
		t.Fatalf("first span = %+v", entries[0])
	}
	if entries[1].Error != "kernel mismatch" {
		t.Fatalf("second span error = %q", entries[1].Error)
	}
	if entries[0].EndedAt.Before(entries[0].StartedAt) {
		t.Fatal("span ended before it started")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("emitted %d JSON lines, want 2", len(lines))
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode trace line: %v", err)
	}
	if decoded.Operation != "render_drizzle" || decoded.Error != "kernel mismatch" {
		t.Fatalf("decoded span = %+v", decoded)
	}
}

func TestJSONTracerNilWriter(t *testing.T) {
	tracer := NewJSONTracer(nil)
	tracer.Start("draw_image").End(StatusRejected, nil)
	if got := len(tracer.Entries()); got != 1 {
		t.Fatalf("recorded %d spans, want 1", got)
	}
}
