package testsupport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"callpipe/internal/services"
	"callpipe/internal/services/processing"
	"callpipe/internal/services/storage"
)

// FakeUploader drains upload bodies in memory. Configure the exported fields
// before the first Upload call.
type FakeUploader struct {
	// Gate, when non-nil, blocks each upload until it receives or is closed.
	Gate chan struct{}
	// HoldAt and Hold pause the first upload once HoldAt bytes were read,
	// until Hold receives or is closed. Held is closed when the hold begins.
	HoldAt int64
	Hold   chan struct{}
	Held   chan struct{}
	// FailFirst fails that many uploads with a transient error after the body
	// was drained.
	FailFirst int

	mu       sync.Mutex
	calls    int
	held     bool
	received map[string]int64
}

// Upload implements storage.Uploader.
func (f *FakeUploader) Upload(ctx context.Context, req storage.UploadRequest) (storage.UploadResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return storage.UploadResult{}, ctx.Err()
		}
	}

	var read int64
	buf := make([]byte, 4096)
	for {
		n, err := req.Body.Read(buf)
		read += int64(n)
		f.addReceived(req.FileName, int64(n))
		if f.shouldHold(read) {
			if f.Held != nil {
				close(f.Held)
			}
			select {
			case <-f.Hold:
			case <-ctx.Done():
				return storage.UploadResult{}, ctx.Err()
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return storage.UploadResult{}, err
		}
	}
	if call <= f.FailFirst {
		return storage.UploadResult{}, services.Wrap(services.ErrTransient, "transfer", "upload", "storage unavailable", nil)
	}
	return storage.UploadResult{RemoteID: fmt.Sprintf("remote-%s-%d", req.FileName, call)}, nil
}

func (f *FakeUploader) shouldHold(read int64) bool {
	if f.Hold == nil || f.HoldAt <= 0 || read < f.HoldAt {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		return false
	}
	f.held = true
	return true
}

func (f *FakeUploader) addReceived(name string, n int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.received == nil {
		f.received = make(map[string]int64)
	}
	f.received[name] += n
}

// Calls returns how many uploads were started.
func (f *FakeUploader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Received returns the total bytes read for a file name across all uploads.
func (f *FakeUploader) Received(name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.received[name]
}

// StatusStep is one scripted reply of FakeStatusSource.
type StatusStep struct {
	Status processing.Status
	Err    error
}

// FakeStatusSource replays scripted status replies in order and repeats the
// last one once the script runs out. An empty script reports "processing".
type FakeStatusSource struct {
	mu    sync.Mutex
	steps []StatusStep
	calls int
}

// NewStatusSource builds a scripted status source.
func NewStatusSource(steps ...StatusStep) *FakeStatusSource {
	return &FakeStatusSource{steps: steps}
}

// GetStatus implements processing.StatusSource.
func (f *FakeStatusSource) GetStatus(ctx context.Context, remoteID string) (processing.Status, error) {
	if err := ctx.Err(); err != nil {
		return processing.Status{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.steps) == 0 {
		return processing.Status{Stage: processing.StageProcessing}, nil
	}
	idx := min(f.calls-1, len(f.steps)-1)
	step := f.steps[idx]
	return step.Status, step.Err
}

// Calls returns how many status queries were made.
func (f *FakeStatusSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Stage builds a scripted step for a remote stage with an optional percentage.
func Stage(stage string, percent ...float64) StatusStep {
	status := processing.Status{Stage: stage}
	if len(percent) > 0 {
		p := percent[0]
		status.Progress = &p
	}
	return StatusStep{Status: status}
}

// QueryError builds a scripted step that fails the query.
func QueryError(err error) StatusStep {
	return StatusStep{Err: err}
}

// WaitFor polls fn until it returns true or the duration elapses.
func WaitFor(t testing.TB, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

// BlockingStatusSource holds every query until Release, ignoring the query
// context, then answers with the configured reply. Tests use it to keep a
// status query in flight while the task is cancelled or cleared.
type BlockingStatusSource struct {
	reply   StatusStep
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	calls int
}

// NewBlockingStatusSource builds a source that answers reply once released.
func NewBlockingStatusSource(reply StatusStep) *BlockingStatusSource {
	return &BlockingStatusSource{reply: reply, release: make(chan struct{})}
}

// GetStatus implements processing.StatusSource.
func (b *BlockingStatusSource) GetStatus(ctx context.Context, remoteID string) (processing.Status, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return b.reply.Status, b.reply.Err
}

// Release lets every pending and future query return. Safe to call twice.
func (b *BlockingStatusSource) Release() {
	b.once.Do(func() { close(b.release) })
}

// Calls returns how many queries were started.
func (b *BlockingStatusSource) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// HangingStatusSource never answers; each query ends only when its context
// does.
type HangingStatusSource struct {
	mu    sync.Mutex
	calls int
}

// GetStatus implements processing.StatusSource.
func (h *HangingStatusSource) GetStatus(ctx context.Context, remoteID string) (processing.Status, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	<-ctx.Done()
	return processing.Status{}, ctx.Err()
}

// Calls returns how many queries were started.
func (h *HangingStatusSource) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}
