package server

import (
	"sync"
	"time"

	"github.com/zot/ui-data/internal/config"
)

// FrameSender delivers frames to one client.
type FrameSender interface {
	Send(frame Frame) error
	SendBatch(frames []Frame) error
}

// OutgoingBatcher collects the frames of one connection and sends them
// together once events stop arriving for the debounce interval. A single
// pending frame goes out on its own; several go out as one JSON array.
type OutgoingBatcher struct {
	mu               sync.Mutex
	pending          []Frame
	debounceTimer    *time.Timer
	debounceInterval time.Duration
	sender           FrameSender
	config           *config.Config
	batchCount       int
	closed           bool
}

// NewOutgoingBatcher creates a batcher with the given frame sender.
func NewOutgoingBatcher(cfg *config.Config, sender FrameSender) *OutgoingBatcher {
	return &OutgoingBatcher{
		debounceInterval: 10 * time.Millisecond,
		sender:           sender,
		config:           cfg,
	}
}

// Queue adds a frame and starts the debounce timer if it is not running.
func (b *OutgoingBatcher) Queue(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.pending = append(b.pending, f)

	// the deadline runs from the first queued frame, so a steady stream still flushes
	if b.debounceTimer == nil {
		b.debounceTimer = time.AfterFunc(b.debounceInterval, b.flush)
	}
}

// FlushNow immediately sends all pending frames.
func (b *OutgoingBatcher) FlushNow() {
	b.mu.Lock()
	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.mu.Unlock()

	b.flush()
}

// flush sends pending frames (called by timer or FlushNow).
func (b *OutgoingBatcher) flush() {
	b.mu.Lock()
	b.debounceTimer = nil
	frames := b.pending
	b.pending = nil
	b.batchCount++
	count := b.batchCount
	b.mu.Unlock()

	if len(frames) == 0 {
		return
	}

	b.config.Log(4, "[OUT] BATCH %d (%d frames)", count, len(frames))
	var err error
	if len(frames) == 1 {
		err = b.sender.Send(frames[0])
	} else {
		err = b.sender.SendBatch(frames)
	}
	if err != nil {
		b.config.Log(2, "sending batch %d failed: %v", count, err)
	}
}

// Clear drops pending frames, stops the timer and ignores later frames.
// Called when the connection closes.
func (b *OutgoingBatcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.debounceTimer != nil {
		b.debounceTimer.Stop()
	}
	b.debounceTimer = nil
	b.pending = nil
	b.closed = true
}

// PendingCount returns the number of pending frames (for testing).
func (b *OutgoingBatcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
