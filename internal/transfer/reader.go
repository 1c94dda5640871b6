package transfer

import (
	"context"
	"io"
	"time"
)

// progressReader counts bytes handed to the uploader. Between reads it blocks
// at the gate without holding an upload slot.
type progressReader struct {
	ctx       context.Context
	src       io.Reader
	gate      *gate
	slot      *slot
	chunkSize int
	total     int64
	sent      int64
	now       func() time.Time
	// emit reports progress and returns false once the run has ended.
	emit func(Progress) bool
}

func (r *progressReader) Read(p []byte) (int, error) {
	for {
		if r.gate.isPaused() {
			r.slot.release()
			if err := r.gate.wait(r.ctx); err != nil {
				return 0, err
			}
		}
		if err := r.slot.acquire(r.ctx); err != nil {
			return 0, err
		}
		// A pause that landed while waiting for a slot gives it straight back.
		if !r.gate.isPaused() {
			break
		}
	}
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if r.chunkSize > 0 && len(p) > r.chunkSize {
		p = p[:r.chunkSize]
	}
	n, err := r.src.Read(p)
	if n > 0 {
		r.sent += int64(n)
		if !r.emit(Progress{BytesSent: r.sent, TotalBytes: r.total, Timestamp: r.now()}) {
			return n, io.ErrClosedPipe
		}
	}
	return n, err
}
