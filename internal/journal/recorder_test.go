package journal_test

import (
	"context"
	"testing"
	"time"

	"callpipe/internal/journal"
	"callpipe/internal/logging"
	"callpipe/internal/queue"
	"callpipe/internal/testsupport"
	"callpipe/internal/workflow"
)

func TestRecorderStoresOnlyTerminalUpdates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	rec := journal.NewRecorder(store, logging.NewNop())

	now := time.Now()
	active := terminalTask("active", 1, queue.StatusTransferring, now)
	done := terminalTask("done", 1, queue.StatusCompleted, now)

	rec.Observe(workflow.Event{Kind: workflow.EventTaskUpdated, Task: active})
	rec.Observe(workflow.Event{Kind: workflow.EventTaskRemoved, Task: done})
	rec.Observe(workflow.Event{Kind: workflow.EventTaskUpdated, Task: done})
	rec.Close()
	rec.Close()

	rec.Observe(workflow.Event{Kind: workflow.EventTaskUpdated, Task: terminalTask("late", 1, queue.StatusFailed, now)})

	entries, err := store.List(context.Background(), journal.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].TaskID != "done" {
		t.Fatalf("unexpected entries %#v", entries)
	}
}

func TestRecorderWithManager(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	rec := journal.NewRecorder(store, logging.NewNop())

	mgr := workflow.NewManager(cfg, &testsupport.FakeUploader{FailFirst: 1}, testsupport.NewStatusSource(), logging.NewNop(),
		workflow.WithObserver(rec))
	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	ids, err := mgr.Submit(context.Background(), []queue.Artifact{testsupport.MemoryArtifact("call.mp3", 4096)},
		queue.Settings{Destination: "acme-calls"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	id := ids[0]
	testsupport.WaitFor(t, 3*time.Second, func() bool {
		task, _ := mgr.Get(id)
		return task.Status == queue.StatusFailed
	})
	if _, err := mgr.Retry(id); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	testsupport.WaitFor(t, 3*time.Second, func() bool {
		task, _ := mgr.Get(id)
		return task.Status == queue.StatusCompleted
	})
	mgr.Stop()
	rec.Close()

	entries, err := store.List(context.Background(), journal.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected one entry per attempt, got %#v", entries)
	}
	if entries[0].Attempt != 2 || entries[0].Status != queue.StatusCompleted {
		t.Fatalf("unexpected latest entry %#v", entries[0])
	}
	if entries[1].Attempt != 1 || entries[1].Status != queue.StatusFailed {
		t.Fatalf("unexpected first entry %#v", entries[1])
	}
}
