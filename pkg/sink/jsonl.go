package sink

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// JSONLines writes one JSON object per line.
type JSONLines struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewJSONLines writes to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: bufio.NewWriter(w)}
}

// Send writes the batch and flushes.
func (j *JSONLines) Send(ctx context.Context, b *Batch, _ Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, p := range b.Payloads {
		if _, err := j.w.Write(p); err != nil {
			return err
		}
		if err := j.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return j.w.Flush()
}
