package main

import (
	"testing"

	"callpipe/internal/api"
	"callpipe/internal/metrics"
)

func TestFormatStatusLabel(t *testing.T) {
	cases := map[string]string{
		"transferring": "Transferring",
		"task_failed":  "Task Failed",
		"":             "",
	}
	for input, want := range cases {
		if got := formatStatusLabel(input); got != want {
			t.Fatalf("formatStatusLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestFormatETAAndTransfer(t *testing.T) {
	if got := formatETA(nil); got != "-" {
		t.Fatalf("expected dash for nil eta, got %q", got)
	}
	eta := 125.4
	if got := formatETA(&eta); got != "2m5s" {
		t.Fatalf("unexpected eta %q", got)
	}
	if got := formatTransfer(512*1024, 1024*1024); got != "512 KiB / 1.0 MiB" {
		t.Fatalf("unexpected transfer %q", got)
	}
	if got := formatTransfer(0, 0); got != "-" {
		t.Fatalf("expected dash for unknown size, got %q", got)
	}
}

func TestProgressBarBounds(t *testing.T) {
	if got := progressBar(50, 10); got != "[#####.....]" {
		t.Fatalf("unexpected bar %q", got)
	}
	if got := progressBar(150, 4); got != "[####]" {
		t.Fatalf("expected clamped bar, got %q", got)
	}
}

func TestResolveTaskID(t *testing.T) {
	tasks := []api.Task{{ID: "abc123"}, {ID: "abd456"}}
	if id, outcome := resolveTaskID(tasks, "abc"); outcome != outcomeDone || id != "abc123" {
		t.Fatalf("expected unique prefix match, got %q %s", id, outcome)
	}
	if _, outcome := resolveTaskID(tasks, "ab"); outcome != outcomeAmbiguous {
		t.Fatalf("expected ambiguous, got %s", outcome)
	}
	if _, outcome := resolveTaskID(tasks, "zz"); outcome != outcomeNotFound {
		t.Fatalf("expected not found, got %s", outcome)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("recording.mp3", 6); got != "recor…" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncate("a.mp3", 10); got != "a.mp3" {
		t.Fatalf("unexpected passthrough %q", got)
	}
}

func TestBuildMetricRows(t *testing.T) {
	rows := buildMetricRows([]metrics.Sample{
		{Name: "callpipe.tasks.submitted", Attributes: "destination=acme", Value: 3},
		{Name: "callpipe.task.duration_seconds.sum", Value: 1.25},
	})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "task.duration_seconds.sum" || rows[0][2] != "1.25" {
		t.Fatalf("unexpected first row %v", rows[0])
	}
	if rows[1][2] != "3" {
		t.Fatalf("unexpected value %q", rows[1][2])
	}
}
