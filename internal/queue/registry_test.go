package queue_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"callpipe/internal/queue"
)

func newTask(id string, status queue.Status) queue.Task {
	return queue.Task{ID: id, Status: status, TotalBytes: 1000}
}

func TestRegistryPutGetList(t *testing.T) {
	reg := queue.NewRegistry()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := reg.Put(newTask(id, queue.StatusPending)); err != nil {
			t.Fatalf("Put(%s) failed: %v", id, err)
		}
	}
	if _, err := reg.Put(newTask("b", queue.StatusPending)); !errors.Is(err, queue.ErrDuplicateTask) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	got, ok := reg.Get("b")
	if !ok || got.ID != "b" || got.Version != 1 {
		t.Fatalf("unexpected task: %#v ok=%v", got, ok)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be stamped on put")
	}

	list := reg.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(list))
	}
	for i, id := range []string{"a", "b", "c"} {
		if list[i].ID != id {
			t.Fatalf("expected registration order, got %s at %d", list[i].ID, i)
		}
	}

	if _, ok := reg.Get("missing"); ok {
		t.Fatal("expected missing id to be absent")
	}
}

func TestRegistryUpdateAppliesAtomically(t *testing.T) {
	reg := queue.NewRegistry()
	if _, err := reg.Put(newTask("a", queue.StatusPending)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	updated, err := reg.Update("a", func(task *queue.Task) error {
		task.TransferredBytes = 10
		return task.Transition(queue.StatusTransferring, "start")
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != queue.StatusTransferring || updated.Version != 2 {
		t.Fatalf("unexpected updated task: %#v", updated)
	}

	current, err := reg.Update("a", func(task *queue.Task) error {
		task.TransferredBytes = 999
		return task.Transition(queue.StatusCompleted, "complete")
	})
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if current.TransferredBytes != 10 || current.Status != queue.StatusTransferring {
		t.Fatalf("expected failed mutation to leave task unchanged, got %#v", current)
	}
}

func TestRegistryRemovedIDStaysAbsent(t *testing.T) {
	reg := queue.NewRegistry()
	if _, err := reg.Put(newTask("a", queue.StatusTransferring)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !reg.Remove("a") {
		t.Fatal("expected remove to report presence")
	}
	if reg.Remove("a") {
		t.Fatal("expected second remove to report absence")
	}
	_, err := reg.Update("a", func(task *queue.Task) error {
		task.TransferredBytes = 500
		return nil
	})
	if !errors.Is(err, queue.ErrTaskNotFound) {
		t.Fatalf("expected not found for removed id, got %v", err)
	}
	if _, ok := reg.Get("a"); ok {
		t.Fatal("late update must not resurrect the task")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}

func TestRegistryRemoveWhere(t *testing.T) {
	reg := queue.NewRegistry()
	statuses := []queue.Status{queue.StatusCompleted, queue.StatusTransferring, queue.StatusCompleted, queue.StatusFailed}
	for i, status := range statuses {
		if _, err := reg.Put(newTask(fmt.Sprintf("t%d", i), status)); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	removed := reg.RemoveWhere(func(task queue.Task) bool { return task.Status == queue.StatusCompleted })
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed, got %d", len(removed))
	}
	counts := reg.Counts()
	if counts[queue.StatusCompleted] != 0 || counts[queue.StatusTransferring] != 1 || counts[queue.StatusFailed] != 1 {
		t.Fatalf("unexpected counts after removal: %v", counts)
	}
}

func TestRegistryConcurrentUpdatesSameIDNoLostWrites(t *testing.T) {
	reg := queue.NewRegistry()
	if _, err := reg.Put(newTask("a", queue.StatusTransferring)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := reg.Put(newTask("b", queue.StatusTransferring)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	const writers = 8
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		for _, id := range []string{"a", "b"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					if _, err := reg.Update(id, func(task *queue.Task) error {
						task.TransferredBytes++
						return nil
					}); err != nil {
						t.Errorf("Update failed: %v", err)
						return
					}
					_ = reg.List()
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range []string{"a", "b"} {
		task, _ := reg.Get(id)
		if task.TransferredBytes != writers*perWriter {
			t.Fatalf("task %s lost updates: got %d want %d", id, task.TransferredBytes, writers*perWriter)
		}
		if task.Version != uint64(writers*perWriter)+1 {
			t.Fatalf("task %s unexpected version %d", id, task.Version)
		}
	}
}

func TestRegistrySnapshotsAreIsolated(t *testing.T) {
	reg := queue.NewRegistry()
	if _, err := reg.Put(newTask("a", queue.StatusTransferring)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := reg.Update("a", func(task *queue.Task) error {
		task.ApplyTransferProgress(100, task.StartedAt.Add(1e9))
		return nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	snap, _ := reg.Get("a")
	if snap.ETA == nil {
		t.Fatal("expected ETA after progress")
	}
	*snap.ETA = 0
	again, _ := reg.Get("a")
	if *again.ETA == 0 {
		t.Fatal("mutating a snapshot must not affect the registry")
	}
}
