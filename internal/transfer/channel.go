package transfer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"callpipe/internal/queue"
	"callpipe/internal/services/storage"
)

// Progress is a byte-level progress event.
type Progress struct {
	BytesSent  int64
	TotalBytes int64
	Timestamp  time.Time
}

// OutcomeKind identifies how a transfer ended.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal result of a Channel run.
type Outcome struct {
	Kind     OutcomeKind
	RemoteID string
	Reason   string
	Err      error
}

// Request describes the artifact to send and where to send it.
type Request struct {
	Artifact    queue.Artifact
	Destination string
	Settings    queue.Settings
}

// Options configures a Channel.
type Options struct {
	Uploader storage.Uploader
	// Limiter bounds concurrent network uploads across channels. Nil means unbounded.
	Limiter   *semaphore.Weighted
	ChunkSize int
	Clock     func() time.Time
}

// ErrAlreadyStarted is returned in the Failure outcome of a second Run call.
var ErrAlreadyStarted = errors.New("transfer channel already started")

// Channel performs one upload.
type Channel struct {
	uploader  storage.Uploader
	chunkSize int
	now       func() time.Time
	gate      gate
	slot      slot

	mu        sync.Mutex
	started   bool
	cancelled bool
	cancel    context.CancelFunc

	emitMu sync.Mutex
	closed bool
}

// NewChannel constructs an idle channel.
func NewChannel(opts Options) *Channel {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Channel{
		uploader:  opts.Uploader,
		chunkSize: opts.ChunkSize,
		now:       now,
		slot:      slot{limiter: opts.Limiter},
	}
}

// Run performs the upload and blocks until it ends. onProgress is called from
// the upload goroutine and never after Run returns. Cancelling ctx ends the
// run with a Failure outcome carrying queue.DaemonStopReason; Cancel ends it
// with Cancelled.
func (c *Channel) Run(ctx context.Context, req Request, onProgress func(Progress)) Outcome {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return Outcome{Kind: OutcomeFailure, Reason: ErrAlreadyStarted.Error(), Err: ErrAlreadyStarted}
	}
	c.started = true
	if c.cancelled {
		c.mu.Unlock()
		c.close()
		return Outcome{Kind: OutcomeCancelled}
	}
	c.cancel = cancel
	c.mu.Unlock()
	defer c.close()

	if c.uploader == nil {
		return Outcome{Kind: OutcomeFailure, Reason: "no storage uploader configured"}
	}

	defer c.slot.close()
	if err := c.slot.acquire(runCtx); err != nil {
		return c.interrupted(ctx, err)
	}

	src, err := req.Artifact.Source.Open()
	if err != nil {
		return Outcome{Kind: OutcomeFailure, Reason: fmt.Sprintf("open %s: %v", req.Artifact.Name, err), Err: err}
	}
	defer src.Close()

	body := &progressReader{
		ctx:       runCtx,
		src:       src,
		gate:      &c.gate,
		slot:      &c.slot,
		chunkSize: c.chunkSize,
		total:     req.Artifact.Size,
		now:       c.now,
		emit: func(p Progress) bool {
			c.emitMu.Lock()
			defer c.emitMu.Unlock()
			if c.closed {
				return false
			}
			if onProgress != nil {
				onProgress(p)
			}
			return true
		},
	}

	result, err := c.uploader.Upload(runCtx, storage.UploadRequest{
		Destination: req.Destination,
		FileName:    req.Artifact.Name,
		ContentType: req.Artifact.ContentType,
		Size:        req.Artifact.Size,
		Body:        body,
		Fields:      settingsFields(req.Settings),
	})
	if err != nil {
		return c.interrupted(ctx, err)
	}
	if c.isCancelled() {
		return Outcome{Kind: OutcomeCancelled}
	}
	return Outcome{Kind: OutcomeSuccess, RemoteID: result.RemoteID}
}

// close stops progress delivery; it waits for an in-progress callback to finish.
func (c *Channel) close() {
	c.emitMu.Lock()
	c.closed = true
	c.emitMu.Unlock()
}

func (c *Channel) interrupted(parent context.Context, err error) Outcome {
	if c.isCancelled() {
		return Outcome{Kind: OutcomeCancelled}
	}
	if parent.Err() != nil {
		return Outcome{Kind: OutcomeFailure, Reason: queue.DaemonStopReason, Err: parent.Err()}
	}
	return Outcome{Kind: OutcomeFailure, Reason: err.Error(), Err: err}
}

// Cancel stops the transfer, or prevents it from starting. It is idempotent.
func (c *Channel) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pause halts byte transfer at the next read and hands the upload slot to
// waiting siblings. It reports whether the call changed the state.
func (c *Channel) Pause() bool {
	if !c.gate.pause() {
		return false
	}
	c.slot.release()
	return true
}

// Resume lets a paused transfer continue. It reports whether the call changed the state.
func (c *Channel) Resume() bool {
	return c.gate.release()
}

// HoldsSlot reports whether the channel currently occupies an upload slot.
func (c *Channel) HoldsSlot() bool {
	return c.slot.isHeld()
}

func (c *Channel) isCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func settingsFields(s queue.Settings) map[string]string {
	fields := map[string]string{
		"auto_process": strconv.FormatBool(s.AutoProcess),
	}
	if s.Checklist != "" {
		fields["checklist"] = s.Checklist
	}
	if s.Model != "" {
		fields["model"] = s.Model
	}
	return fields
}
