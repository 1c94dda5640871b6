package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type entry struct {
	mu      sync.Mutex
	seq     uint64
	task    Task
	removed bool
}

// Registry is an addressable collection of tasks keyed by id. Updates to one id
// are serialized through that entry's lock; different ids never contend beyond
// the brief map lookup.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
	now     func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry), now: time.Now}
}

// Put registers a new task. Re-registering an existing id is rejected so a
// live task can never be silently replaced.
func (r *Registry) Put(task Task) (Task, error) {
	if task.ID == "" {
		return Task{}, fmt.Errorf("put task: id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[task.ID]; ok {
		return Task{}, fmt.Errorf("put task %s: %w", task.ID, ErrDuplicateTask)
	}
	r.seq++
	now := r.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	task.Version = 1
	r.entries[task.ID] = &entry{seq: r.seq, task: task.Clone()}
	return task.Clone(), nil
}

// Get returns a snapshot of the task, or false when the id is absent.
func (r *Registry) Get(id string) (Task, bool) {
	e := r.lookup(id)
	if e == nil {
		return Task{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Task{}, false
	}
	return e.task.Clone(), true
}

// Update applies mutate to the task atomically. When mutate returns an error
// the stored task is unchanged and the current snapshot is returned alongside
// the error. Absent or removed ids yield ErrTaskNotFound.
func (r *Registry) Update(id string, mutate func(*Task) error) (Task, error) {
	e := r.lookup(id)
	if e == nil {
		return Task{}, fmt.Errorf("update task %s: %w", id, ErrTaskNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return Task{}, fmt.Errorf("update task %s: %w", id, ErrTaskNotFound)
	}
	working := e.task.Clone()
	if err := mutate(&working); err != nil {
		return e.task.Clone(), err
	}
	working.ID = e.task.ID
	working.Version = e.task.Version + 1
	working.UpdatedAt = r.now()
	e.task = working
	return working.Clone(), nil
}

// List returns a snapshot of every task in registration order.
func (r *Registry) List() []Task {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	tasks := make([]Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.removed {
			tasks = append(tasks, e.task.Clone())
		}
		e.mu.Unlock()
	}
	return tasks
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Remove discards a task. It reports whether the id was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	r.discard(id, e)
	return true
}

// RemoveWhere discards every task matching pred and returns the removed snapshots.
func (r *Registry) RemoveWhere(pred func(Task) bool) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []Task
	for id, e := range r.entries {
		e.mu.Lock()
		match := pred(e.task)
		if match {
			e.removed = true
			removed = append(removed, e.task.Clone())
		}
		e.mu.Unlock()
		if match {
			delete(r.entries, id)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].CreatedAt.Before(removed[j].CreatedAt) })
	return removed
}

// Counts returns the number of tasks per status.
func (r *Registry) Counts() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	for _, task := range r.List() {
		counts[task.Status]++
	}
	return counts
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}

// discard must be called with r.mu held.
func (r *Registry) discard(id string, e *entry) {
	e.mu.Lock()
	e.removed = true
	e.mu.Unlock()
	delete(r.entries, id)
}
