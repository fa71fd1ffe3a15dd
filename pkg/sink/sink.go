package sink

import (
	"context"
	"encoding/json"

	"github.com/bft-labs/walminer/pkg/miner"
)

// Sink delivers batches of changes.
type Sink interface {
	// Send delivers every change of b, in order. A nil error means the
	// whole batch was accepted; on error the caller retries the batch.
	Send(ctx context.Context, b *Batch, metadata Metadata) error
}

// Encode returns the JSON form of ch used by every sink.
func Encode(ch miner.Change) ([]byte, error) {
	return json.Marshal(ch)
}

// Batch is an ordered run of changes together with their encoded form.
// Changes and Payloads always have the same length.
type Batch struct {
	Changes  []miner.Change
	Payloads [][]byte

	// TotalBytes is the sum of the payload lengths.
	TotalBytes int
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{
		Changes:  make([]miner.Change, 0),
		Payloads: make([][]byte, 0),
	}
}

// Add appends a change and its encoded payload.
func (b *Batch) Add(ch miner.Change, payload []byte) {
	b.Changes = append(b.Changes, ch)
	b.Payloads = append(b.Payloads, payload)
	b.TotalBytes += len(payload)
}

// Size returns the number of changes.
func (b *Batch) Size() int {
	return len(b.Changes)
}

// Empty reports whether the batch holds no change.
func (b *Batch) Empty() bool {
	return len(b.Changes) == 0
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.Changes = b.Changes[:0]
	b.Payloads = b.Payloads[:0]
	b.TotalBytes = 0
}

// Last returns the last change, or nil if the batch is empty.
func (b *Batch) Last() *miner.Change {
	if len(b.Changes) == 0 {
		return nil
	}
	return &b.Changes[len(b.Changes)-1]
}
