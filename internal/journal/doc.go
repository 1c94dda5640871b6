// Package journal persists the outcome of finished tasks in SQLite.
//
// The in-memory registry only describes the current session. The journal keeps
// one row per task attempt that reached a terminal status so operators can
// review past uploads after a restart. Rows are keyed by (task_id, attempt);
// re-recording the same attempt replaces the earlier row.
//
// The Recorder adapts a Store to the workflow observer contract. It receives
// events on task goroutines and writes them from a single background worker so
// slow disks never stall a transfer.
package journal
