package app

import (
	"time"

	"github.com/bft-labs/walminer/pkg/miner"
	"github.com/bft-labs/walminer/pkg/sink"
)

// Batcher collects changes until the batch is big or old enough to send.
type Batcher struct {
	batch         *sink.Batch
	maxBatchBytes int
	sendInterval  time.Duration
	lastSend      time.Time
}

// NewBatcher creates a new batcher. maxBatchBytes <= 0 disables the size
// trigger.
func NewBatcher(maxBatchBytes int, sendInterval time.Duration) *Batcher {
	return &Batcher{
		batch:         sink.NewBatch(),
		maxBatchBytes: maxBatchBytes,
		sendInterval:  sendInterval,
		lastSend:      time.Now(),
	}
}

// Fits reports whether a payload of n bytes can join the current batch.
// An empty batch takes any payload, so a single oversized change is sent
// alone.
func (b *Batcher) Fits(n int) bool {
	if b.maxBatchBytes <= 0 || b.batch.Empty() {
		return true
	}
	return b.batch.TotalBytes+n <= b.maxBatchBytes
}

// Add appends a change.
func (b *Batcher) Add(ch miner.Change, payload []byte) {
	b.batch.Add(ch, payload)
}

// ShouldSend reports whether the batch is full or the send interval has
// passed since the last send.
func (b *Batcher) ShouldSend() bool {
	if b.batch.Empty() {
		return false
	}
	if b.maxBatchBytes > 0 && b.batch.TotalBytes >= b.maxBatchBytes {
		return true
	}
	return time.Since(b.lastSend) >= b.sendInterval
}

// Batch returns the current batch.
func (b *Batcher) Batch() *sink.Batch {
	return b.batch
}

// Reset clears the batch and updates the last send time.
func (b *Batcher) Reset() {
	b.batch.Reset()
	b.lastSend = time.Now()
}

// HasPending returns true if there are changes waiting to be sent.
func (b *Batcher) HasPending() bool {
	return !b.batch.Empty()
}
